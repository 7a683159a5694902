package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates configuration comprehensively with clear error
// messages, fixing up startup failures before the first event ever reaches
// the Bus.
type Validator struct {
	cfg     *Config
	structs *validator.Validate
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg, structs: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at the
// first error).
func (v *Validator) ValidateAll() error {
	if err := v.validatePolicy(); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}
	if err := v.validateBus(); err != nil {
		return fmt.Errorf("bus validation failed: %w", err)
	}
	if err := v.validateSources(); err != nil {
		return fmt.Errorf("source validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}
	if err := v.validateOracles(); err != nil {
		return fmt.Errorf("oracles validation failed: %w", err)
	}
	if err := v.validateMasking(); err != nil {
		return fmt.Errorf("masking validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validatePolicy() error {
	p := v.cfg.Policy
	if p == nil {
		return fmt.Errorf("policy configuration is nil")
	}

	if !p.ActionPolicy.IsValid() {
		return NewValidationError("policy", "", "action_policy",
			fmt.Errorf("unknown action_policy %q", p.ActionPolicy))
	}

	if p.WarnThreshold < 0 || p.WarnThreshold > 100 {
		return NewValidationError("policy", "", "warn_threshold",
			fmt.Errorf("must be between 0 and 100, got %d", p.WarnThreshold))
	}
	if p.RemediateThreshold < 0 || p.RemediateThreshold > 100 {
		return NewValidationError("policy", "", "remediate_threshold",
			fmt.Errorf("must be between 0 and 100, got %d", p.RemediateThreshold))
	}

	// §4.10: a remediate_threshold at or below warn_threshold would let the
	// Deep-Analysis Gate's less severe band auto-remediate. Refuse to
	// start rather than run with an inverted policy.
	if p.RemediateThreshold <= p.WarnThreshold {
		return fmt.Errorf("%w: remediate_threshold (%d) must be greater than warn_threshold (%d)",
			ErrPolicyViolation, p.RemediateThreshold, p.WarnThreshold)
	}

	return nil
}

func (v *Validator) validateBus() error {
	b := v.cfg.Bus
	if b == nil {
		return fmt.Errorf("bus configuration is nil")
	}

	if b.Partitions < 1 {
		return NewValidationError("bus", "", "partitions",
			fmt.Errorf("must be at least 1, got %d", b.Partitions))
	}
	if b.PartitionCapacity < 1 {
		return NewValidationError("bus", "", "partition_capacity",
			fmt.Errorf("must be at least 1, got %d", b.PartitionCapacity))
	}
	if b.MaxConcurrentEvents < 1 {
		return NewValidationError("bus", "", "max_concurrent_events",
			fmt.Errorf("must be at least 1, got %d", b.MaxConcurrentEvents))
	}
	if b.OracleConcurrency < 1 {
		return NewValidationError("bus", "", "oracle_concurrency",
			fmt.Errorf("must be at least 1, got %d", b.OracleConcurrency))
	}
	if b.EffectorConcurrency < 1 {
		return NewValidationError("bus", "", "effector_concurrency",
			fmt.Errorf("must be at least 1, got %d", b.EffectorConcurrency))
	}
	if b.EventDeadline <= 0 {
		return NewValidationError("bus", "", "event_deadline",
			fmt.Errorf("must be positive, got %v", b.EventDeadline))
	}
	if b.NotifyDedupWindow < 0 {
		return NewValidationError("bus", "", "notify_dedup_window",
			fmt.Errorf("must be non-negative, got %v", b.NotifyDedupWindow))
	}
	if b.NotifyDedupCacheSize < 10_000 {
		return NewValidationError("bus", "", "notify_dedup_cache_size",
			fmt.Errorf("must be at least 10000 per the dedup cache sizing requirement, got %d", b.NotifyDedupCacheSize))
	}

	return nil
}

func (v *Validator) validateSources() error {
	for name, sc := range v.cfg.Sources {
		if sc.Multiplier < 0 {
			return NewValidationError("source", name, "multiplier",
				fmt.Errorf("must be non-negative, got %v", sc.Multiplier))
		}
		if sc.SeverityField == "" {
			continue
		}
		if !(sc.MediumAt <= sc.HighAt && sc.HighAt <= sc.CriticalAt) {
			return NewValidationError("source", name, "severity thresholds",
				fmt.Errorf("medium_at (%v) <= high_at (%v) <= critical_at (%v) must hold",
					sc.MediumAt, sc.HighAt, sc.CriticalAt))
		}
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.StoreTTL <= 0 {
		return NewValidationError("retention", "", "store_ttl",
			fmt.Errorf("must be positive, got %v", r.StoreTTL))
	}
	if r.DLQRetention <= 0 {
		return NewValidationError("retention", "", "dlq_retention",
			fmt.Errorf("must be positive, got %v", r.DLQRetention))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "", "cleanup_interval",
			fmt.Errorf("must be positive, got %v", r.CleanupInterval))
	}
	return nil
}

func (v *Validator) validateOracles() error {
	o := v.cfg.Oracles
	if o == nil {
		return fmt.Errorf("oracles configuration is nil")
	}
	if o.MLOracleURL == "" {
		return NewValidationError("oracles", "", "ml_oracle_url", fmt.Errorf("must not be empty"))
	}
	if o.LLMOracleURL == "" {
		return NewValidationError("oracles", "", "llm_oracle_url", fmt.Errorf("must not be empty"))
	}
	if o.EffectorURL == "" {
		return NewValidationError("oracles", "", "effector_url", fmt.Errorf("must not be empty"))
	}
	if o.MLDeadline <= 0 || o.LLMDeadline <= 0 || o.EffectorDeadline <= 0 || o.StoreDeadline <= 0 || o.EndToEndBudget <= 0 {
		return NewValidationError("oracles", "", "deadlines", fmt.Errorf("all stage deadlines must be positive"))
	}
	return nil
}

// validateMasking runs struct-tag validation (the `validate:"required"`
// tags on MaskingPattern) over every custom pattern, catching a YAML entry
// that dropped its pattern or replacement before it ever reaches the
// Normalizer's regex compiler.
func (v *Validator) validateMasking() error {
	m := v.cfg.Masking
	if m == nil {
		return nil
	}
	for i, p := range m.CustomPatterns {
		if err := v.structs.Struct(p); err != nil {
			return NewValidationError("masking", fmt.Sprintf("custom_patterns[%d]", i), "pattern/replacement", err)
		}
	}
	return nil
}

func (v *Validator) validateSlack() error {
	s := v.cfg.Slack
	if s == nil || !s.Enabled {
		return nil
	}
	if s.Channel == "" {
		return NewValidationError("slack", "", "channel",
			fmt.Errorf("channel is required when slack is enabled"))
	}
	return nil
}

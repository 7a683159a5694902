package config

// ActionPolicy controls how far the Orchestrator is allowed to carry an
// alert past the Deep-Analysis Gate. It is re-read at decision time by the
// Remediation Gate — never cached by the Orchestrator — so that lowering it
// takes effect on the next evaluation, not the next deploy.
type ActionPolicy string

const (
	ActionPolicyOff        ActionPolicy = "OFF"
	ActionPolicyNotifyOnly ActionPolicy = "NOTIFY_ONLY"
	ActionPolicyFull       ActionPolicy = "FULL"
)

// IsValid reports whether p is one of the known action policy values.
func (p ActionPolicy) IsValid() bool {
	switch p {
	case ActionPolicyOff, ActionPolicyNotifyOnly, ActionPolicyFull:
		return true
	default:
		return false
	}
}

// Policy is the live, re-readable view of the scoring thresholds and the
// action policy. The Remediation Gate reads it fresh on every decision
// (see the safety invariant in SPEC_FULL.md §4.6); it is never snapshotted
// onto an in-flight Alert.
type Policy struct {
	WarnThreshold      int          `yaml:"warn_threshold"`
	RemediateThreshold int          `yaml:"remediate_threshold"`
	ActionPolicy       ActionPolicy `yaml:"action_policy"`
}

// SourceConfig is the per-source configuration consulted by the Normalizer
// (severity band thresholds, SPEC_FULL.md §4.1) and the Triage stage
// (weighting multiplier, SPEC_FULL.md §4.4).
//
// SeverityField is a dotted path into the finding's raw JSON where the
// source's native numeric severity lives (e.g. "severity" for Detector-A,
// "Severity.Normalized" for Detector-B). MediumAt/HighAt/CriticalAt are the
// ascending lower bounds of the MEDIUM, HIGH, and CRITICAL bands; anything
// below MediumAt is LOW.
type SourceConfig struct {
	Multiplier    float64 `yaml:"multiplier"`
	SeverityField string  `yaml:"severity_field"`
	MediumAt      float64 `yaml:"medium_at"`
	HighAt        float64 `yaml:"high_at"`
	CriticalAt    float64 `yaml:"critical_at"`
}

// MaskingPattern is a single regex-based redaction rule.
type MaskingPattern struct {
	Pattern     string `yaml:"pattern" validate:"required"`
	Replacement string `yaml:"replacement" validate:"required"`
	Description string `yaml:"description,omitempty"`
}

// MaskingConfig controls Normalizer-time redaction of free-text fields
// inside a finding's raw payload (SPEC_FULL.md §4.11).
type MaskingConfig struct {
	Enabled        bool             `yaml:"enabled"`
	PatternGroups  []string         `yaml:"pattern_groups,omitempty"`
	CustomPatterns []MaskingPattern `yaml:"custom_patterns,omitempty"`
}

// SlackConfig controls the Notifier's Slack channel adapter.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

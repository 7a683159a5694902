package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// SentinelYAMLConfig represents the complete sentinel.yaml file structure:
// thresholds, action policy, bus/orchestrator sizing, retention, masking,
// and notification channels.
type SentinelYAMLConfig struct {
	Policy    *Policy           `yaml:"policy"`
	Bus       *BusConfig        `yaml:"bus"`
	Retention *RetentionConfig  `yaml:"retention"`
	Masking   *MaskingConfig    `yaml:"masking"`
	Oracles   *OraclesConfig    `yaml:"oracles"`
	System    *SystemYAMLConfig `yaml:"system"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	ConsoleURL string           `yaml:"console_url"`
	Slack      *SlackYAMLConfig `yaml:"slack"`
}

// SlackYAMLConfig holds Slack notification settings from YAML.
type SlackYAMLConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// SourcesYAMLConfig represents the complete sources.yaml file structure:
// the per-source severity mapping tables consulted by the Triage stage.
type SourcesYAMLConfig struct {
	Sources map[string]SourceConfig `yaml:"sources"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in defaults with user overrides (user wins)
//  5. Validate all configuration, enforcing the threshold-ordering
//     invariant as a PolicyViolation
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized successfully",
		"sources", stats.Sources,
		"action_policy", cfg.Policy.ActionPolicy,
		"warn_threshold", cfg.Policy.WarnThreshold,
		"remediate_threshold", cfg.Policy.RemediateThreshold)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	sentinelCfg, err := loader.loadSentinelYAML()
	if err != nil {
		return nil, NewLoadError("sentinel.yaml", err)
	}

	sources, err := loader.loadSourcesYAML()
	if err != nil {
		return nil, NewLoadError("sources.yaml", err)
	}

	sourcesMerged := mergeSources(sources)

	policy := DefaultPolicy()
	if sentinelCfg.Policy != nil {
		if err := mergo.Merge(policy, sentinelCfg.Policy, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge policy config: %w", err)
		}
	}

	bus := DefaultBusConfig()
	if sentinelCfg.Bus != nil {
		if err := mergo.Merge(bus, sentinelCfg.Bus, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge bus config: %w", err)
		}
	}

	retention := resolveRetentionConfig(sentinelCfg.Retention)
	masking := resolveMaskingConfig(sentinelCfg.Masking)
	slackCfg := resolveSlackConfig(sentinelCfg.System)
	consoleURL := resolveConsoleURL(sentinelCfg.System)

	oracles := DefaultOraclesConfig()
	if sentinelCfg.Oracles != nil {
		if err := mergo.Merge(oracles, sentinelCfg.Oracles, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge oracles config: %w", err)
		}
	}

	return &Config{
		configDir:  configDir,
		Policy:     policy,
		Sources:    sourcesMerged,
		Bus:        bus,
		Retention:  retention,
		Masking:    masking,
		Slack:      slackCfg,
		Oracles:    oracles,
		ConsoleURL: consoleURL,
	}, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

// mergeSources seeds the result with the built-in reference-source mapping
// table, then overlays sources.yaml entries on top (user config wins).
func mergeSources(raw map[string]SourceConfig) map[string]*SourceConfig {
	result := builtinSources()
	for name, sc := range raw {
		scCopy := sc
		if scCopy.Multiplier == 0 {
			scCopy.Multiplier = 1.0
		}
		result[name] = &scCopy
	}
	return result
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Note: ExpandEnv passes through original data on parse/execution
	// errors, allowing the YAML parser to fail with a clearer message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadSentinelYAML() (*SentinelYAMLConfig, error) {
	var cfg SentinelYAMLConfig
	if err := l.loadYAML("sentinel.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *configLoader) loadSourcesYAML() (map[string]SourceConfig, error) {
	var cfg SourcesYAMLConfig
	cfg.Sources = make(map[string]SourceConfig)
	if err := l.loadYAML("sources.yaml", &cfg); err != nil {
		return nil, err
	}
	return cfg.Sources, nil
}

// resolveRetentionConfig resolves retention configuration, applying
// built-in defaults for any unset duration.
func resolveRetentionConfig(r *RetentionConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()
	if r == nil {
		return cfg
	}
	if r.StoreTTL > 0 {
		cfg.StoreTTL = r.StoreTTL
	}
	if r.DLQRetention > 0 {
		cfg.DLQRetention = r.DLQRetention
	}
	if r.CleanupInterval > 0 {
		cfg.CleanupInterval = r.CleanupInterval
	}
	return cfg
}

// resolveMaskingConfig resolves masking configuration, applying built-in
// defaults when the user config omits the section entirely.
func resolveMaskingConfig(m *MaskingConfig) *MaskingConfig {
	if m == nil {
		return DefaultMaskingConfig()
	}
	if len(m.PatternGroups) == 0 && len(m.CustomPatterns) == 0 {
		m.PatternGroups = []string{"security"}
	}
	return m
}

// resolveSlackConfig resolves Slack configuration from system YAML,
// applying defaults.
func resolveSlackConfig(sys *SystemYAMLConfig) *SlackConfig {
	cfg := &SlackConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}

	if sys == nil || sys.Slack == nil {
		return cfg
	}

	s := sys.Slack
	if s.Enabled != nil {
		cfg.Enabled = *s.Enabled
	}
	if s.TokenEnv != "" {
		cfg.TokenEnv = s.TokenEnv
	}
	if s.Channel != "" {
		cfg.Channel = s.Channel
	}

	return cfg
}

// resolveConsoleURL resolves the operator console base URL (used by the
// Notifier to build alert links), applying a local default.
func resolveConsoleURL(sys *SystemYAMLConfig) string {
	if sys != nil && sys.ConsoleURL != "" {
		return sys.ConsoleURL
	}
	return "http://localhost:8080"
}

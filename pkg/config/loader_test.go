package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSentinelYAML = `
policy:
  warn_threshold: 70
  remediate_threshold: 90
  action_policy: NOTIFY_ONLY
bus:
  partitions: 8
  partition_capacity: 128
system:
  console_url: http://console.internal:9000
  slack:
    enabled: true
    channel: "#security-alerts"
`

const testSourcesYAML = `
sources:
  detector-a:
    multiplier: 1.2
    severity_field: severity
    medium_at: 2
    high_at: 5
    critical_at: 8
  detector-c:
    multiplier: 0.9
`

func setupTestConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentinel.yaml"), []byte(testSentinelYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yaml"), []byte(testSourcesYAML), 0644))
	return dir
}

func TestInitialize(t *testing.T) {
	configDir := setupTestConfigDir(t)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 70, cfg.Policy.WarnThreshold)
	assert.Equal(t, 90, cfg.Policy.RemediateThreshold)
	assert.Equal(t, ActionPolicyNotifyOnly, cfg.Policy.ActionPolicy)

	// bus.yaml overrides partitions/partition_capacity but leaves the rest
	// at built-in defaults, exercising the mergo partial-override merge.
	assert.Equal(t, 8, cfg.Bus.Partitions)
	assert.Equal(t, 128, cfg.Bus.PartitionCapacity)
	assert.Equal(t, 64, cfg.Bus.MaxConcurrentEvents)

	require.Contains(t, cfg.Sources, "detector-a")
	assert.Equal(t, 1.2, cfg.Sources["detector-a"].Multiplier)
	assert.Equal(t, "severity", cfg.Sources["detector-a"].SeverityField)
	assert.Equal(t, float64(8), cfg.Sources["detector-a"].CriticalAt)

	// detector-b isn't present in sources.yaml, so the built-in mapping
	// carries through untouched.
	require.Contains(t, cfg.Sources, "detector-b")
	assert.Equal(t, 1.1, cfg.Sources["detector-b"].Multiplier)
	assert.Equal(t, "Severity.Normalized", cfg.Sources["detector-b"].SeverityField)

	require.Contains(t, cfg.Sources, "detector-c")
	assert.Equal(t, 0.9, cfg.Sources["detector-c"].Multiplier)

	assert.Equal(t, "http://console.internal:9000", cfg.ConsoleURL)
	assert.True(t, cfg.Slack.Enabled)
	assert.Equal(t, "#security-alerts", cfg.Slack.Channel)

	stats := cfg.Stats()
	assert.Equal(t, 3, stats.Sources)
}

func TestInitializeConfigNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Initialize(ctx, "/nonexistent/directory")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeInvalidYAML(t *testing.T) {
	configDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(configDir, "sentinel.yaml"), []byte("{{{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "sources.yaml"), []byte("sources: {}"), 0644))

	ctx := context.Background()
	_, err := Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeRejectsPolicyViolation(t *testing.T) {
	configDir := t.TempDir()

	badSentinel := `
policy:
  warn_threshold: 90
  remediate_threshold: 70
  action_policy: FULL
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "sentinel.yaml"), []byte(badSentinel), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "sources.yaml"), []byte("sources: {}"), 0644))

	ctx := context.Background()
	_, err := Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestInitializeExpandsEnvVars(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("SENTINEL_SLACK_CHANNEL", "#from-env")

	sentinelYAML := `
policy:
  warn_threshold: 70
  remediate_threshold: 90
  action_policy: NOTIFY_ONLY
system:
  slack:
    enabled: true
    channel: "${SENTINEL_SLACK_CHANNEL}"
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "sentinel.yaml"), []byte(sentinelYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "sources.yaml"), []byte("sources: {}"), 0644))

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	assert.Equal(t, "#from-env", cfg.Slack.Channel)
}

func TestInitializeAppliesBuiltinDefaultsWhenSectionsOmitted(t *testing.T) {
	configDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(configDir, "sentinel.yaml"), []byte("policy:\n  warn_threshold: 70\n  remediate_threshold: 90\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "sources.yaml"), []byte("sources: {}"), 0644))

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	assert.Equal(t, DefaultBusConfig().Partitions, cfg.Bus.Partitions)
	assert.Equal(t, DefaultRetentionConfig().StoreTTL, cfg.Retention.StoreTTL)
	assert.True(t, cfg.Masking.Enabled)
	assert.False(t, cfg.Slack.Enabled)
}

package config

import "time"

// RetentionConfig controls Alert Store and persistent-DLQ retention and the
// background cleanup loop that enforces it (SPEC_FULL.md §4.13).
type RetentionConfig struct {
	// StoreTTL is the maximum age of an Alert Store row before the
	// cleanup loop expires it.
	StoreTTL time.Duration `yaml:"store_ttl"`

	// DLQRetention is the maximum age of a persistent-DLQ row before the
	// cleanup loop expires it. Kept independent of StoreTTL since DLQ
	// rows exist precisely because the normal pipeline failed them.
	DLQRetention time.Duration `yaml:"dlq_retention"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		StoreTTL:        30 * 24 * time.Hour,
		DLQRetention:    14 * 24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}

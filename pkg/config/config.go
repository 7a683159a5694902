package config

// Config is the umbrella configuration object produced by Initialize and
// threaded through every pipeline component at startup.
type Config struct {
	configDir string

	Policy     *Policy
	Sources    map[string]*SourceConfig
	Bus        *BusConfig
	Retention  *RetentionConfig
	Masking    *MaskingConfig
	Slack      *SlackConfig
	Oracles    *OraclesConfig
	ConsoleURL string
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// SourceFor returns the severity mapping for source, or the built-in
// default mapping if source has no entry in sources.yaml.
func (c *Config) SourceFor(source string) *SourceConfig {
	if sc, ok := c.Sources[source]; ok {
		return sc
	}
	return DefaultSourceConfig()
}

// ConfigStats summarizes loaded configuration for startup logging.
type ConfigStats struct {
	Sources int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{Sources: len(c.Sources)}
}

package config

import "time"

// OraclesConfig holds the endpoints and deadlines for the external ML,
// Deep-Analysis, and Remediation effector services (SPEC_FULL.md §4.3,
// §4.5, §4.6; recognized option `ml_model_version` from spec.md §6.4).
type OraclesConfig struct {
	MLOracleURL    string `yaml:"ml_oracle_url"`
	MLModelVersion string `yaml:"ml_model_version"`
	LLMOracleURL   string `yaml:"llm_oracle_url"`
	EffectorURL    string `yaml:"effector_url"`

	MLDeadline       time.Duration `yaml:"ml_deadline"`
	LLMDeadline      time.Duration `yaml:"llm_deadline"`
	EffectorDeadline time.Duration `yaml:"effector_deadline"`
	StoreDeadline    time.Duration `yaml:"store_deadline"`
	EndToEndBudget   time.Duration `yaml:"end_to_end_budget"`
}

// DefaultOraclesConfig returns built-in oracle endpoints and the stage
// deadlines fixed by spec.md §5 ("ML: 5s total, LLM: 15s, effector: 10s,
// store: 5s") and the 60s end-to-end budget.
func DefaultOraclesConfig() *OraclesConfig {
	return &OraclesConfig{
		MLOracleURL:      "http://ml-oracle.internal/v1/score",
		MLModelVersion:   "v1",
		LLMOracleURL:     "http://llm-oracle.internal/v1/analyze",
		EffectorURL:      "http://effector.internal/v1/remediate",
		MLDeadline:       5 * time.Second,
		LLMDeadline:      15 * time.Second,
		EffectorDeadline: 10 * time.Second,
		StoreDeadline:    5 * time.Second,
		EndToEndBudget:   60 * time.Second,
	}
}

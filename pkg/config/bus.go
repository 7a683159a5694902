package config

import "time"

// BusConfig contains Event Bus and Orchestrator sizing configuration.
// These values control partition count, per-partition buffering, and the
// concurrency caps the Orchestrator enforces on oracle and effector calls.
type BusConfig struct {
	// Partitions is the number of buffered channels the Bus hashes
	// event_id across. Ordering is guaranteed only within a partition.
	Partitions int `yaml:"partitions"`

	// PartitionCapacity is the buffer depth of each partition channel.
	// A full partition triggers Backpressure (SPEC_FULL.md §7).
	PartitionCapacity int `yaml:"partition_capacity"`

	// MaxConcurrentEvents is the global cap on events being processed by
	// the Orchestrator at once, across all partitions.
	MaxConcurrentEvents int `yaml:"max_concurrent_events"`

	// OracleConcurrency caps concurrent calls to the ML and Deep-Analysis
	// oracles, enforced by a weighted semaphore.
	OracleConcurrency int `yaml:"oracle_concurrency"`

	// EffectorConcurrency caps concurrent calls to the remediation
	// effector, enforced by a weighted semaphore.
	EffectorConcurrency int `yaml:"effector_concurrency"`

	// EventDeadline is the maximum wall-clock time an event may spend
	// between ingestion and a terminal status before it is force-failed.
	EventDeadline time.Duration `yaml:"event_deadline"`

	// NotifyDedupWindow is how long a (event_id, status) pair is
	// suppressed from re-notification after it has already fired.
	NotifyDedupWindow time.Duration `yaml:"notify_dedup_window"`

	// NotifyDedupCacheSize is the size of the Notifier's in-memory LRU
	// dedup cache. SPEC_FULL.md §4.7 requires at least 10,000 entries.
	NotifyDedupCacheSize int `yaml:"notify_dedup_cache_size"`

	// MessageRetention is the Bus's own retention bound (§4.2): a message
	// still queued past this age is dropped with bus_aged_out_total
	// incremented instead of delivered to a Scorer worker.
	MessageRetention time.Duration `yaml:"message_retention"`
}

// DefaultBusConfig returns the built-in Bus/Orchestrator sizing defaults.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		Partitions:           16,
		PartitionCapacity:    256,
		MaxConcurrentEvents:  64,
		OracleConcurrency:    8,
		EffectorConcurrency:  4,
		EventDeadline:        2 * time.Minute,
		NotifyDedupWindow:    10 * time.Minute,
		NotifyDedupCacheSize: 10_000,
		MessageRetention:     24 * time.Hour,
	}
}

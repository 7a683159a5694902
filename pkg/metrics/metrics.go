// Package metrics implements the Metrics component (C14): the concrete
// Prometheus registry backing every stage's narrow Metrics interface
// (SPEC_FULL.md §4.12). Registers against the default Prometheus
// registry so promhttp.Handler() in pkg/ingress exposes it without any
// extra wiring, the same registration model the pack's right-sizer
// operator metrics use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentinelpipe/sentinel/pkg/model"
)

// Registry holds every Prometheus collector the pipeline emits. Accessor
// methods (Normalizer(), Bus(), ...) return narrow adapters satisfying
// each stage package's own Metrics interface, since several stages
// declare identically-named methods (e.g. both Scorer and Analysis
// declare IncOracleFailure) that must update distinct counters.
type Registry struct {
	normalizerUnknownSeverity *prometheus.CounterVec
	normalizerMalformedSource *prometheus.CounterVec

	busAgedOut      prometheus.Counter
	busBackpressure prometheus.Counter
	busQueueDepth   prometheus.Gauge

	scorerOracleFailures prometheus.Counter
	scorerDegraded       prometheus.Counter

	analysisOracleFailures prometheus.Counter
	analysisParseFailed    prometheus.Counter

	remediationAttempts *prometheus.CounterVec

	notifierSuppressed prometheus.Counter

	storeWrites         prometheus.Counter
	storeConflictRetry  prometheus.Counter

	dlqDepth prometheus.Gauge

	sloViolations        prometheus.Counter
	storeUnavailable     prometheus.Counter
	orchestratorActive   prometheus.Gauge
	stageLatencySeconds  *prometheus.HistogramVec
}

// New creates and registers every pipeline collector. Safe to call more
// than once in a process (e.g. across table-driven tests): duplicate
// registration against the default registry is tolerated, matching the
// pack's safeRegister pattern.
func New() *Registry {
	r := &Registry{
		normalizerUnknownSeverity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_normalizer_unknown_severity_total",
			Help: "Findings normalized with an unresolved native severity field, by source.",
		}, []string{"source"}),
		normalizerMalformedSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_normalizer_malformed_source_total",
			Help: "Findings rejected as MalformedSource, by source.",
		}, []string{"source"}),

		busAgedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_bus_aged_out_total",
			Help: "Messages dropped from a bus partition after exceeding message_retention.",
		}),
		busBackpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_bus_backpressure_total",
			Help: "Enqueue calls rejected because the target partition buffer was full.",
		}),
		busQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_orchestrator_queue_depth",
			Help: "Total buffered messages across all bus partitions.",
		}),

		scorerOracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_scorer_oracle_failures_total",
			Help: "ML oracle calls that failed, permanently or after exhausting retries.",
		}),
		scorerDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_scorer_degraded_total",
			Help: "Events scored with a degraded (zeroed) ml result after retry exhaustion.",
		}),

		analysisOracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_analysis_oracle_failures_total",
			Help: "Deep-Analysis Gate invocations that degraded after exhausting retries.",
		}),
		analysisParseFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_analysis_parse_failed_total",
			Help: "LLM oracle responses that failed to parse as the expected JSON object.",
		}),

		remediationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_remediation_attempts_total",
			Help: "Remediation Gate attempts, by outcome.",
		}, []string{"outcome"}),

		notifierSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_notifier_suppressed_total",
			Help: "Notifications suppressed by the dedup window.",
		}),

		storeWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_store_writes_total",
			Help: "Alert Store upserts committed.",
		}),
		storeConflictRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_store_conflict_retries_total",
			Help: "Alert Store writes that retried a FOR UPDATE row conflict.",
		}),

		dlqDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_dlq_depth",
			Help: "Current number of live persistent-DLQ rows.",
		}),

		sloViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_slo_violation_total",
			Help: "Events that exceeded the end-to-end processing budget.",
		}),
		storeUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_store_unavailable_total",
			Help: "Alert Store writes that failed after exhausting their backoff budget.",
		}),
		orchestratorActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_orchestrator_active_sessions",
			Help: "Events currently owned by an in-flight Orchestrator task.",
		}),
		stageLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_stage_latency_seconds",
			Help:    "Per-stage processing latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	safeRegister(
		r.normalizerUnknownSeverity, r.normalizerMalformedSource,
		r.busAgedOut, r.busBackpressure, r.busQueueDepth,
		r.scorerOracleFailures, r.scorerDegraded,
		r.analysisOracleFailures, r.analysisParseFailed,
		r.remediationAttempts,
		r.notifierSuppressed,
		r.storeWrites, r.storeConflictRetry,
		r.dlqDepth,
		r.sloViolations, r.storeUnavailable, r.orchestratorActive, r.stageLatencySeconds,
	)

	return r
}

// safeRegister registers collectors against the default Prometheus
// registry, tolerating AlreadyRegisteredError so New can be called more
// than once in a process without panicking.
func safeRegister(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				continue
			}
		}
	}
}

// StageTimer observes the elapsed time for a named stage into
// stage_latency_seconds. Call via `defer r.StageTimer("scoring")()`.
func (r *Registry) StageTimer(stage string) func() {
	timer := prometheus.NewTimer(r.stageLatencySeconds.WithLabelValues(stage))
	return func() { timer.ObserveDuration() }
}

// QueueDepth records the current total bus queue depth, polled by the
// caller (typically from bus.Bus.Stats()) rather than pushed on every
// enqueue.
func (r *Registry) QueueDepth(n int) {
	r.busQueueDepth.Set(float64(n))
}

type normalizerAdapter struct{ r *Registry }

func (a normalizerAdapter) IncUnknownSeverity(source string) {
	a.r.normalizerUnknownSeverity.WithLabelValues(source).Inc()
}

func (a normalizerAdapter) IncMalformedSource(source string) {
	a.r.normalizerMalformedSource.WithLabelValues(source).Inc()
}

// Normalizer returns the normalizer.Metrics adapter.
func (r *Registry) Normalizer() normalizerAdapter { return normalizerAdapter{r} }

type busAdapter struct{ r *Registry }

func (a busAdapter) IncAgedOut()      { a.r.busAgedOut.Inc() }
func (a busAdapter) IncBackpressure() { a.r.busBackpressure.Inc() }

// Bus returns the bus.Metrics adapter.
func (r *Registry) Bus() busAdapter { return busAdapter{r} }

type scorerAdapter struct{ r *Registry }

func (a scorerAdapter) IncOracleFailure() { a.r.scorerOracleFailures.Inc() }
func (a scorerAdapter) IncDegraded()      { a.r.scorerDegraded.Inc() }

// Scorer returns the scorer.Metrics adapter.
func (r *Registry) Scorer() scorerAdapter { return scorerAdapter{r} }

type analysisAdapter struct{ r *Registry }

func (a analysisAdapter) IncOracleFailure() { a.r.analysisOracleFailures.Inc() }
func (a analysisAdapter) IncParseFailed()   { a.r.analysisParseFailed.Inc() }

// Analysis returns the analysis.Metrics adapter.
func (r *Registry) Analysis() analysisAdapter { return analysisAdapter{r} }

type remediationAdapter struct{ r *Registry }

func (a remediationAdapter) IncAttempt(outcome model.RemediationOutcome) {
	a.r.remediationAttempts.WithLabelValues(string(outcome)).Inc()
}

// Remediation returns the remediation.Metrics adapter.
func (r *Registry) Remediation() remediationAdapter { return remediationAdapter{r} }

type notifierAdapter struct{ r *Registry }

func (a notifierAdapter) IncSuppressed() { a.r.notifierSuppressed.Inc() }

// Notifier returns the notifier.Metrics adapter.
func (r *Registry) Notifier() notifierAdapter { return notifierAdapter{r} }

type storeAdapter struct{ r *Registry }

func (a storeAdapter) IncWrite()         { a.r.storeWrites.Inc() }
func (a storeAdapter) IncConflictRetry() { a.r.storeConflictRetry.Inc() }

// Store returns the store.Metrics adapter.
func (r *Registry) Store() storeAdapter { return storeAdapter{r} }

type dlqAdapter struct{ r *Registry }

func (a dlqAdapter) SetDepth(n int) { a.r.dlqDepth.Set(float64(n)) }

// DLQ returns the dlq.Metrics adapter.
func (r *Registry) DLQ() dlqAdapter { return dlqAdapter{r} }

type orchestratorAdapter struct{ r *Registry }

func (a orchestratorAdapter) IncSLOViolation()             { a.r.sloViolations.Inc() }
func (a orchestratorAdapter) IncStoreUnavailable()         { a.r.storeUnavailable.Inc() }
func (a orchestratorAdapter) SetActiveTasks(n int)         { a.r.orchestratorActive.Set(float64(n)) }
func (a orchestratorAdapter) StageTimer(stage string) func() { return a.r.StageTimer(stage) }

// Orchestrator returns the orchestrator.Metrics adapter.
func (r *Registry) Orchestrator() orchestratorAdapter { return orchestratorAdapter{r} }

// Package orchestrator implements the Orchestrator (C9): the state
// machine that carries one Event from BUFFERED through TRIAGED, the two
// optional gates, notification, and the Alert Store write. It is driven
// as the Event Bus's Handler — one goroutine per partition calls Run
// for each message in order, so events on different partitions progress
// in parallel while same-partition events stay strictly ordered.
//
// The Orchestrator itself never retries a stage; each stage already
// degrades or fails on its own terms (scorer, analysis and remediation
// clients all implement their own bounded retry policy). An unhandled
// stage error is caught here, logged with event_id and stage name, and
// routed to the persistent DLQ with status DEAD_LETTERED; the alert is
// still written to the Store with whatever enrichment was accumulated.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/sentinelpipe/sentinel/pkg/analysis"
	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/dlq"
	"github.com/sentinelpipe/sentinel/pkg/masking"
	"github.com/sentinelpipe/sentinel/pkg/model"
	"github.com/sentinelpipe/sentinel/pkg/notifier"
	"github.com/sentinelpipe/sentinel/pkg/remediation"
	"github.com/sentinelpipe/sentinel/pkg/scorer"
	"github.com/sentinelpipe/sentinel/pkg/store"
	"github.com/sentinelpipe/sentinel/pkg/triage"
)

// Metrics receives Orchestrator-observed counter/gauge updates.
// Implemented by pkg/metrics; nil is tolerated.
type Metrics interface {
	IncSLOViolation()
	IncStoreUnavailable()
	SetActiveTasks(n int)
	StageTimer(stage string) func()
}

type noopMetrics struct{}

func (noopMetrics) IncSLOViolation()              {}
func (noopMetrics) IncStoreUnavailable()          {}
func (noopMetrics) SetActiveTasks(int)            {}
func (noopMetrics) StageTimer(string) func()      { return func() {} }

// scorerClient is the narrow Scorer dependency, satisfied by *scorer.Client.
type scorerClient interface {
	Score(ctx context.Context, evt model.Event) (*model.MLResult, error)
}

// analysisClient is the narrow Deep-Analysis dependency, satisfied by
// *analysis.Client.
type analysisClient interface {
	Analyze(ctx context.Context, evt model.Event, ml *model.MLResult, triage *model.Triage, masker *masking.Service) *model.Analysis
}

// remediationClient is the narrow effector dependency, satisfied by
// *remediation.Client.
type remediationClient interface {
	Execute(ctx context.Context, evt model.Event) *model.Remediation
}

// alertNotifier is the narrow Notifier dependency, satisfied by
// *notifier.Notifier.
type alertNotifier interface {
	Notify(ctx context.Context, alert model.Alert)
}

// alertStore is the narrow Alert Store dependency, satisfied by *store.Store.
type alertStore interface {
	Put(ctx context.Context, alert model.Alert) error
}

// deadLetterQueue is the narrow persistent-DLQ dependency, satisfied by
// *dlq.DLQ.
type deadLetterQueue interface {
	Write(ctx context.Context, evt model.Event, enrichment model.Enrichment, stage, reason string) error
}

// Orchestrator drives one Event through Scorer output to a terminal
// Store write, under the concurrency and budget rules of SPEC_FULL.md
// §4.9 and §5.
type Orchestrator struct {
	cfg *config.Config

	scorer      scorerClient
	analysis    analysisClient
	remediation remediationClient
	notifier    alertNotifier
	store       alertStore
	dlq         deadLetterQueue
	masker      *masking.Service

	mx Metrics

	tasks    chan struct{}       // bounds concurrent Run calls (BusConfig.MaxConcurrentEvents)
	oracles  *semaphore.Weighted // bounds concurrent Scorer + Deep-Analysis calls
	effector *semaphore.Weighted // bounds concurrent effector calls
}

// New wires an Orchestrator from its stage clients. Any of analysisC,
// remediationC, or notify may legitimately be in active use even when the
// operator's action_policy disables their gates — ShouldFire is checked
// per event, not cached here.
func New(
	cfg *config.Config,
	scorerC *scorer.Client,
	analysisC *analysis.Client,
	remediationC *remediation.Client,
	notify *notifier.Notifier,
	st *store.Store,
	deadLetters *dlq.DLQ,
	masker *masking.Service,
	mx Metrics,
) *Orchestrator {
	if mx == nil {
		mx = noopMetrics{}
	}

	bus := cfg.Bus
	if bus == nil {
		bus = config.DefaultBusConfig()
	}

	return &Orchestrator{
		cfg:         cfg,
		scorer:      scorerC,
		analysis:    analysisC,
		remediation: remediationC,
		notifier:    notify,
		store:       st,
		dlq:         deadLetters,
		masker:      masker,
		mx:          mx,
		tasks:       make(chan struct{}, bus.MaxConcurrentEvents),
		oracles:     semaphore.NewWeighted(int64(bus.OracleConcurrency)),
		effector:    semaphore.NewWeighted(int64(bus.EffectorConcurrency)),
	}
}

// Run carries evt from SCORED through DONE or DEAD_LETTERED. Its
// signature matches bus.Handler, so *Orchestrator.Run is passed directly
// to bus.New as the Bus's handler.
func (o *Orchestrator) Run(ctx context.Context, evt model.Event) {
	o.tasks <- struct{}{}
	o.mx.SetActiveTasks(len(o.tasks))
	defer func() {
		<-o.tasks
		o.mx.SetActiveTasks(len(o.tasks))
	}()

	budget := o.cfg.Oracles.EndToEndBudget
	if budget <= 0 {
		budget = config.DefaultOraclesConfig().EndToEndBudget
	}
	deadline := evt.IngestedAt.Add(budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	enrichment, fatal := o.score(ctx, evt)
	if fatal != nil {
		o.deadLetter(context.WithoutCancel(ctx), evt, enrichment, "scoring", fatal)
		return
	}

	policy := o.cfg.Policy
	enrichment = o.triageAndGate(ctx, evt, enrichment, policy)

	if time.Now().After(deadline) {
		o.shortCircuit(ctx, evt, enrichment)
		return
	}

	alert := model.Alert{Event: evt, Enrichment: enrichment}
	o.putWithRetry(ctx, alert)
}

// score invokes the Scorer. A non-nil error return is a permanent oracle
// failure (schema mismatch); the caller routes the event to DLQ instead
// of continuing.
func (o *Orchestrator) score(ctx context.Context, evt model.Event) (model.Enrichment, error) {
	defer o.mx.StageTimer("scoring")()

	if err := o.oracles.Acquire(ctx, 1); err != nil {
		return model.Enrichment{}, fmt.Errorf("acquiring oracle slot: %w", err)
	}
	defer o.oracles.Release(1)

	ml, err := o.scorer.Score(ctx, evt)
	if err != nil {
		return model.Enrichment{}, err
	}
	return model.Enrichment{ML: ml, Status: model.StatusStoredOnly}, nil
}

// triageAndGate runs the pure Triage scorer and both optional gates,
// skipping whichever gates don't fire or whose start would already blow
// the end-to-end budget.
func (o *Orchestrator) triageAndGate(ctx context.Context, evt model.Event, enrichment model.Enrichment, policy *config.Policy) model.Enrichment {
	triageDone := o.mx.StageTimer("triage")
	sourceCfg := o.cfg.SourceFor(evt.Source)
	priority := triage.Score(evt, enrichment.ML, sourceCfg)
	enrichment.Triage = priority
	triageDone()

	if ctx.Err() != nil {
		return enrichment
	}

	if analysis.ShouldFire(priority, policy) {
		if err := o.oracles.Acquire(ctx, 1); err == nil {
			analysisDone := o.mx.StageTimer("analysis")
			enrichment.Analysis = o.analysis.Analyze(ctx, evt, enrichment.ML, priority, o.masker)
			o.oracles.Release(1)
			analysisDone()
		}
	}

	if ctx.Err() != nil {
		return enrichment
	}

	var remed *model.Remediation
	if remediation.ShouldFire(priority, policy) {
		if err := o.effector.Acquire(ctx, 1); err == nil {
			remediationDone := o.mx.StageTimer("remediation")
			remed = o.remediation.Execute(ctx, evt)
			o.effector.Release(1)
			remediationDone()
			enrichment.Remediation = remed
			if remed.Attempted {
				enrichment.Status = model.StatusRemediated
			}
		}
	}

	if notifier.ShouldFire(priority, remed, policy) {
		notifyDone := o.mx.StageTimer("notify")
		alert := model.Alert{Event: evt, Enrichment: enrichment}
		o.notifier.Notify(ctx, alert)
		notifyDone()
		if enrichment.Status != model.StatusRemediated {
			enrichment.Status = model.StatusNotified
		}
	}

	return enrichment
}

// shortCircuit handles DeadlineExceeded (spec.md §7): force STORED_ONLY,
// count the SLO violation, and still attempt a best-effort store write.
func (o *Orchestrator) shortCircuit(ctx context.Context, evt model.Event, enrichment model.Enrichment) {
	o.mx.IncSLOViolation()
	enrichment.Status = model.StatusStoredOnly
	slog.Warn("end-to-end budget exceeded, short-circuiting", "event_id", evt.EventID)
	o.putWithRetry(context.WithoutCancel(ctx), model.Alert{Event: evt, Enrichment: enrichment})
}

// putWithRetry writes alert to the Alert Store with the bounded backoff
// of SPEC_FULL.md §4.8 (store_deadline as the overall retry budget). On
// exhaustion this is StoreUnavailable: the alert is routed to the
// persistent DLQ instead, distinct from the DEAD_LETTERED path.
func (o *Orchestrator) putWithRetry(ctx context.Context, alert model.Alert) {
	defer o.mx.StageTimer("store")()

	deadline := o.cfg.Oracles.StoreDeadline
	if deadline <= 0 {
		deadline = config.DefaultOraclesConfig().StoreDeadline
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.Multiplier = 2
	eb.MaxElapsedTime = deadline
	retryCtx := context.WithoutCancel(ctx)

	err := backoff.Retry(func() error {
		return o.store.Put(retryCtx, alert)
	}, backoff.WithContext(eb, retryCtx))
	if err == nil {
		return
	}

	o.mx.IncStoreUnavailable()
	slog.Error("alert store unavailable after retry budget exhausted, routing to dlq",
		"event_id", alert.EventID, "error", err)
	if dlqErr := o.dlq.Write(retryCtx, alert.Event, alert.Enrichment, "store", fmt.Sprintf("store unavailable: %v", err)); dlqErr != nil {
		slog.Error("failed to persist store-unavailable event to dlq", "event_id", alert.EventID, "error", dlqErr)
	}
}

// deadLetter routes evt to the persistent DLQ with DEAD_LETTERED and
// still writes whatever enrichment was accumulated to the Store, per the
// Orchestrator's unhandled-error policy (spec.md §4.9).
func (o *Orchestrator) deadLetter(ctx context.Context, evt model.Event, enrichment model.Enrichment, stage string, cause error) {
	enrichment.Status = model.StatusDeadLettered
	slog.Error("stage failed permanently, dead-lettering event",
		"event_id", evt.EventID, "stage", stage, "error", cause)

	if err := o.dlq.Write(ctx, evt, enrichment, stage, cause.Error()); err != nil {
		slog.Error("failed to persist dead-lettered event to dlq", "event_id", evt.EventID, "error", err)
	}
	o.putWithRetry(ctx, model.Alert{Event: evt, Enrichment: enrichment})
}

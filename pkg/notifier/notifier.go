// Package notifier implements the Notifier (C7): fires on a high-priority
// alert or a failed remediation, deduplicating repeat notifications for
// the same event_id within a short window.
package notifier

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/model"
	"github.com/sentinelpipe/sentinel/pkg/slack"
)

// Metrics receives Notifier counter increments.
type Metrics interface {
	IncSuppressed()
}

type noopMetrics struct{}

func (noopMetrics) IncSuppressed() {}

// Slack is the narrow interface the Notifier depends on, satisfied by
// *slack.Service (nil-safe: NotifyAlert on a nil *Service is a no-op).
type Slack interface {
	NotifyAlert(ctx context.Context, alert model.Alert)
}

// Notifier dedupes and publishes alert notifications. The dedup cache is
// best-effort, not a correctness requirement (spec.md §4.7): a missed
// suppression merely sends a duplicate message, never drops one.
type Notifier struct {
	slack  Slack
	dedup  *lru.Cache[string, time.Time]
	window time.Duration
	mx     Metrics
}

// New creates a Notifier with an LRU dedup cache sized per cfg.Bus
// (validated at config load time to be at least 10,000 entries).
func New(cfg *config.Config, sl Slack, mx Metrics) (*Notifier, error) {
	if mx == nil {
		mx = noopMetrics{}
	}
	size := 10_000
	window := 5 * time.Minute
	if cfg != nil && cfg.Bus != nil {
		size = cfg.Bus.NotifyDedupCacheSize
		window = cfg.Bus.NotifyDedupWindow
	}
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &Notifier{slack: sl, dedup: cache, window: window, mx: mx}, nil
}

// ShouldFire reports whether the Notifier fires for this alert: priority
// strictly above warn_threshold, or a failed remediation (spec.md §4.7).
func ShouldFire(triage *model.Triage, remediation *model.Remediation, policy *config.Policy) bool {
	if remediation != nil && remediation.Outcome == model.RemediationFailed {
		return true
	}
	if triage == nil || policy == nil {
		return false
	}
	return triage.PriorityScore > float64(policy.WarnThreshold)
}

// Notify publishes alert unless a notification for the same event_id was
// already sent within the dedup window.
func (n *Notifier) Notify(ctx context.Context, alert model.Alert) {
	if last, ok := n.dedup.Get(alert.EventID); ok && time.Since(last) < n.window {
		n.mx.IncSuppressed()
		return
	}
	n.dedup.Add(alert.EventID, time.Now())
	n.slack.NotifyAlert(ctx, alert)
}

var _ Slack = (*slack.Service)(nil)

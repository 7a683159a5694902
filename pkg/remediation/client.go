package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sentinelpipe/sentinel/pkg/model"
)

// Metrics receives Remediation Gate counter increments, broken out per
// outcome per SPEC_FULL.md §4.12's remediation_attempts_total{outcome}.
type Metrics interface {
	IncAttempt(outcome model.RemediationOutcome)
}

type noopMetrics struct{}

func (noopMetrics) IncAttempt(model.RemediationOutcome) {}

// Client invokes the effector. The effector contract requires idempotency
// keyed by (event_id, action_kind) (spec.md §4.6); Client sends this as
// an Idempotency-Key header so a retried call is safe to repeat.
type Client struct {
	httpClient *http.Client
	url        string
	mx         Metrics
}

// NewClient creates an effector client bounded by deadline per call.
func NewClient(url string, deadline time.Duration, mx Metrics) *Client {
	if mx == nil {
		mx = noopMetrics{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: deadline},
		url:        url,
		mx:         mx,
	}
}

type effectorRequest struct {
	EventID    string            `json:"event_id"`
	ActionKind model.ActionKind  `json:"action_kind"`
	Target     map[string]string `json:"target"`
}

// Execute resolves the action for (evt.Source, evt.Kind). If the table
// returns ActionNone, the effector is never called and the outcome is
// SKIPPED. Otherwise the effector is invoked with a single retry on
// failure; exhausting that retry records outcome=FAILED with the error
// message rather than failing the pipeline (spec.md §4.6).
func (c *Client) Execute(ctx context.Context, evt model.Event) *model.Remediation {
	action := ActionFor(evt.Source, evt.Kind)
	now := time.Now().UTC()

	if action == model.ActionNone {
		c.mx.IncAttempt(model.RemediationSkipped)
		return &model.Remediation{
			Attempted:   false,
			ActionKind:  string(action),
			Outcome:     model.RemediationSkipped,
			AttemptedAt: now,
		}
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.callOnce(ctx, evt, action); err != nil {
			lastErr = err
			continue
		}
		c.mx.IncAttempt(model.RemediationSucceeded)
		return &model.Remediation{
			Attempted:   true,
			ActionKind:  string(action),
			Outcome:     model.RemediationSucceeded,
			AttemptedAt: now,
		}
	}

	slog.Warn("remediation action failed after retry", "event_id", evt.EventID, "action", action, "error", lastErr)
	c.mx.IncAttempt(model.RemediationFailed)
	return &model.Remediation{
		Attempted:   true,
		ActionKind:  string(action),
		Outcome:     model.RemediationFailed,
		Error:       lastErr.Error(),
		AttemptedAt: now,
	}
}

func (c *Client) callOnce(ctx context.Context, evt model.Event, action model.ActionKind) error {
	body, err := json.Marshal(effectorRequest{
		EventID:    evt.EventID,
		ActionKind: action,
		Target:     map[string]string{"account": evt.Account, "region": evt.Region},
	})
	if err != nil {
		return fmt.Errorf("marshal effector request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create effector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s:%s", evt.EventID, action))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call effector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("effector returned HTTP %d", resp.StatusCode)
	}
	return nil
}

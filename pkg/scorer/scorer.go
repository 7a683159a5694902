// Package scorer implements the ML Scorer (C3): deterministic feature
// extraction over a canonical Event, followed by an HTTP call to the ML
// oracle with a bounded retry/degrade policy.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/sentinelpipe/sentinel/pkg/model"
)

// featureSchemaVersion pins the named feature list below. Changing the
// list's shape requires bumping the oracle's model_version in lockstep
// (spec.md §4.3: "the list is part of model_version").
const featureSchemaVersion = "features-v1"

// Features is the deterministic, versioned feature vector sent to the ML
// oracle: typed numeric or binary (0/1) values keyed by feature name.
type Features map[string]float64

// boostTokens mirrors pkg/triage's fixed token set; a feature flag for
// "does kind look like a known attack pattern" is a reasonable signal for
// the oracle independent of Triage applying its own boost downstream.
var boostTokens = []string{"UnauthorizedAccess", "Recon", "Trojan", "Finding"}

// ExtractFeatures derives the fixed feature vector for evt. Pure and
// deterministic: the same Event always yields the same Features.
func ExtractFeatures(evt model.Event) Features {
	f := Features{
		"severity_low":      0,
		"severity_medium":   0,
		"severity_high":     0,
		"severity_critical": 0,
		"kind_length":       float64(len(evt.Kind)),
		"has_boost_token":   0,
		"raw_field_count":   float64(len(evt.Raw)),
	}

	switch evt.SeverityBand {
	case model.SeverityLow:
		f["severity_low"] = 1
	case model.SeverityMedium:
		f["severity_medium"] = 1
	case model.SeverityHigh:
		f["severity_high"] = 1
	case model.SeverityCritical:
		f["severity_critical"] = 1
	}

	for _, token := range boostTokens {
		if strings.Contains(evt.Kind, token) {
			f["has_boost_token"] = 1
			break
		}
	}

	return f
}

// Metrics receives Scorer-observed counter increments. Implemented by
// pkg/metrics; nil is tolerated.
type Metrics interface {
	IncOracleFailure()
	IncDegraded()
}

type noopMetrics struct{}

func (noopMetrics) IncOracleFailure() {}
func (noopMetrics) IncDegraded()      {}

// Client calls the ML oracle with the retry/degrade policy of spec.md
// §4.3: initial 200ms backoff, factor 2, max 4 attempts, 5s overall
// budget. Schema-mismatch responses are permanent failures, surfaced to
// the caller rather than degraded.
type Client struct {
	httpClient   *http.Client
	url          string
	modelVersion string
	mx           Metrics
	breaker      *gobreaker.CircuitBreaker
}

// NewClient creates an ML oracle client. deadline bounds each individual
// HTTP call; the retry budget below is bounded independently at 5s total.
// A circuit breaker sits in front of the HTTP call: once half of the last
// 10 requests fail, it trips open for 30s so a struggling oracle doesn't
// keep paying the full per-event retry budget on every single call.
func NewClient(url, modelVersion string, deadline time.Duration, mx Metrics) *Client {
	if mx == nil {
		mx = noopMetrics{}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ml-oracle",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})
	return &Client{
		httpClient:   &http.Client{Timeout: deadline},
		url:          url,
		modelVersion: modelVersion,
		mx:           mx,
		breaker:      breaker,
	}
}

type oracleRequest struct {
	ModelVersion string   `json:"model_version"`
	Features     Features `json:"features"`
}

type oracleResponse struct {
	ThreatScore float64 `json:"threat_score"`
	Confidence  float64 `json:"confidence"`
}

// Score extracts features from evt and invokes the ML oracle, retrying
// transient failures with exponential backoff. On retry exhaustion the
// event is NOT dropped: a degraded result (threat_score=0, confidence=0,
// ml.error set) is returned with a nil error so the pipeline continues.
// A non-nil error return means a permanent failure (schema mismatch);
// the caller routes the event to DLQ with status DEAD_LETTERED.
func (c *Client) Score(ctx context.Context, evt model.Event) (*model.MLResult, error) {
	features := ExtractFeatures(evt)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.Multiplier = 2
	eb.MaxElapsedTime = 5 * time.Second
	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(eb, 3), ctx)

	var resp *oracleResponse
	var lastErr error

	op := func() error {
		r, err := c.breaker.Execute(func() (interface{}, error) {
			return c.callOnce(ctx, features)
		})
		if err != nil {
			if err == ErrSchemaMismatch {
				return backoff.Permanent(err)
			}
			lastErr = err
			return err
		}
		resp = r.(*oracleResponse)
		return nil
	}

	err := backoff.Retry(op, retryPolicy)
	if err == nil {
		return &model.MLResult{
			ThreatScore:  resp.ThreatScore,
			Confidence:   resp.Confidence,
			ModelVersion: c.modelVersion,
			ScoredAt:     time.Now().UTC(),
		}, nil
	}

	if permanentErr, ok := err.(*backoff.PermanentError); ok {
		c.mx.IncOracleFailure()
		return nil, fmt.Errorf("scorer: permanent oracle failure for event %s: %w", evt.EventID, permanentErr.Unwrap())
	}

	// Retry budget exhausted on transient failures: degrade, don't drop.
	c.mx.IncOracleFailure()
	c.mx.IncDegraded()
	slog.Warn("ml oracle exhausted retries, degrading score", "event_id", evt.EventID, "error", lastErr)
	return &model.MLResult{
		ThreatScore:  0,
		Confidence:   0,
		ModelVersion: c.modelVersion,
		ScoredAt:     time.Now().UTC(),
		Error:        fmt.Sprintf("oracle unavailable: %v", lastErr),
	}, nil
}

func (c *Client) callOnce(ctx context.Context, features Features) (*oracleResponse, error) {
	body, err := json.Marshal(oracleRequest{ModelVersion: c.modelVersion, Features: features})
	if err != nil {
		return nil, ErrSchemaMismatch
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create ml oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ml oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, ErrSchemaMismatch
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("ml oracle returned HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ml oracle returned unexpected HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ml oracle response: %w", err)
	}

	var out oracleResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, ErrSchemaMismatch
	}
	return &out, nil
}

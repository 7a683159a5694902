package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sentinelpipe/sentinel/pkg/masking"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// Metrics receives Deep-Analysis Gate counter increments. Implemented by
// pkg/metrics; nil is tolerated.
type Metrics interface {
	IncOracleFailure()
	IncParseFailed()
}

type noopMetrics struct{}

func (noopMetrics) IncOracleFailure() {}
func (noopMetrics) IncParseFailed()   {}

// Client calls the LLM oracle with the one-retry policy of spec.md §4.5:
// a timeout or transport failure is retried once; a response that fails
// to parse as the expected JSON object is also retried once (a fresh
// oracle call, not a re-parse of the same text). Exhausting the retry
// degrades rather than failing the pipeline.
type Client struct {
	httpClient *http.Client
	url        string
	deadline   time.Duration
	mx         Metrics
}

// NewClient creates an LLM oracle client. deadline is the per-call budget
// (spec.md §4.5: 15s).
func NewClient(url string, deadline time.Duration, mx Metrics) *Client {
	if mx == nil {
		mx = noopMetrics{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: deadline},
		url:        url,
		deadline:   deadline,
		mx:         mx,
	}
}

type oracleRequest struct {
	Prompt string `json:"prompt"`
}

type oracleResponseEnvelope struct {
	Text string `json:"text"`
}

// analysisResponse is the structured report the prompt asks the oracle to
// return, embedded (possibly fenced) inside oracleResponseEnvelope.Text.
type analysisResponse struct {
	RiskScore          int      `json:"risk_score"`
	AttackVector       string   `json:"attack_vector"`
	RecommendedActions []string `json:"recommended_actions"`
	BusinessImpact     string   `json:"business_impact"`
	Confidence         float64  `json:"confidence"`
}

// Analyze builds the fixed prompt over (evt, ml, triage), invokes the LLM
// oracle, and parses its response. It never returns an error: on retry
// exhaustion it returns a degraded Analysis with risk_score=0,
// attack_vector="unknown", empty actions, confidence=0, and
// analysis.error annotated, per spec.md §4.5.
func (c *Client) Analyze(ctx context.Context, evt model.Event, ml *model.MLResult, triage *model.Triage, masker *masking.Service) *model.Analysis {
	prompt := buildPrompt(evt, ml, triage, masker)

	var lastErr error
	var lastWasParseFailure bool

	for attempt := 0; attempt < 2; attempt++ {
		text, err := c.callOnce(ctx, prompt)
		if err != nil {
			lastErr = err
			lastWasParseFailure = false
			continue
		}

		parsed, err := parseResponse(text)
		if err != nil {
			c.mx.IncParseFailed()
			lastErr = err
			lastWasParseFailure = true
			continue
		}

		return &model.Analysis{
			RiskScore:          parsed.RiskScore,
			AttackVector:       parsed.AttackVector,
			RecommendedActions: parsed.RecommendedActions,
			BusinessImpact:     parsed.BusinessImpact,
			Confidence:         parsed.Confidence,
			AnalyzedAt:         time.Now().UTC(),
		}
	}

	c.mx.IncOracleFailure()
	errTag := "oracle_unavailable"
	switch {
	case lastWasParseFailure:
		errTag = "parse_failed"
	case isTimeout(lastErr):
		errTag = "timeout"
	}
	slog.Warn("deep-analysis gate degraded", "event_id", evt.EventID, "reason", errTag, "error", lastErr)

	return &model.Analysis{
		RiskScore:          0,
		AttackVector:       "unknown",
		RecommendedActions: nil,
		BusinessImpact:     "",
		Confidence:         0,
		AnalyzedAt:         time.Now().UTC(),
		Error:              errTag,
	}
}

// isTimeout reports whether err stems from the oracle call missing its
// deadline, either the request context or the client's own Timeout,
// distinct from a refused connection or a non-2xx response.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) callOnce(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	body, err := json.Marshal(oracleRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal llm oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create llm oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call llm oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm oracle returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm oracle response: %w", err)
	}

	var env oracleResponseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode llm oracle envelope: %w", err)
	}
	return env.Text, nil
}

func parseResponse(text string) (*analysisResponse, error) {
	cleaned := stripCodeFence(text)
	obj, ok := extractFirstJSONObject(cleaned)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrParseFailed)
	}
	var out analysisResponse
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	return &out, nil
}

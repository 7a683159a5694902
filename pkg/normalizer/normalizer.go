// Package normalizer converts vendor-specific raw findings into the
// canonical Event type, deriving a severity band from each source's native
// severity field via a fixed per-source threshold table.
package normalizer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/masking"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// Metrics receives normalizer-observed counter increments. Implemented by
// pkg/metrics; a nil Metrics is tolerated (increments become no-ops) so
// tests don't need to wire a full registry.
type Metrics interface {
	IncUnknownSeverity(source string)
	IncMalformedSource(source string)
}

type noopMetrics struct{}

func (noopMetrics) IncUnknownSeverity(string) {}
func (noopMetrics) IncMalformedSource(string) {}

// Normalizer is a stateless, reusable converter: Normalize is a pure
// function of its arguments plus the configured source table, aside from
// the IngestedAt timestamp and metric counter side effects (SPEC_FULL.md
// §4.1, "side effects: none other than metric counters").
type Normalizer struct {
	cfg    *config.Config
	masker *masking.Service
	mx     Metrics
}

// New creates a Normalizer bound to the live (re-readable) configuration
// and a masking service used to redact free-text raw fields before the
// Event reaches the Bus.
func New(cfg *config.Config, masker *masking.Service, mx Metrics) *Normalizer {
	if mx == nil {
		mx = noopMetrics{}
	}
	return &Normalizer{cfg: cfg, masker: masker, mx: mx}
}

// Normalize converts a raw finding into a canonical Event. source selects
// the severity mapping and multiplier table from sources.yaml (falling
// back to config.DefaultSourceConfig when unknown). Returns a
// *MalformedSourceError when a required field cannot be extracted.
func (n *Normalizer) Normalize(raw map[string]any, source string) (model.Event, error) {
	eventID, err := requiredString(raw, "id")
	if err != nil {
		n.mx.IncMalformedSource(source)
		return model.Event{}, newMalformedSourceError(source, "id")
	}

	observedAt, err := requiredTime(raw, "time")
	if err != nil {
		n.mx.IncMalformedSource(source)
		return model.Event{}, newMalformedSourceError(source, "time")
	}

	account, err := requiredString(raw, "account")
	if err != nil {
		n.mx.IncMalformedSource(source)
		return model.Event{}, newMalformedSourceError(source, "account")
	}

	region, err := requiredString(raw, "region")
	if err != nil {
		n.mx.IncMalformedSource(source)
		return model.Event{}, newMalformedSourceError(source, "region")
	}

	kind, err := requiredString(raw, "kind")
	if err != nil {
		n.mx.IncMalformedSource(source)
		return model.Event{}, newMalformedSourceError(source, "kind")
	}

	sourceCfg := config.DefaultSourceConfig()
	if n.cfg != nil {
		sourceCfg = n.cfg.SourceFor(source)
	}

	band := n.severityBand(raw, source, sourceCfg)

	return model.Event{
		EventID:      eventID,
		ObservedAt:   observedAt,
		IngestedAt:   time.Now().UTC(),
		Source:       source,
		Account:      account,
		Region:       region,
		Kind:         kind,
		SeverityBand: band,
		Raw:          n.maskRaw(raw),
	}, nil
}

// severityBand derives the qualitative band from the source's native
// severity field, applying the fixed per-source threshold table
// (SPEC_FULL.md §4.1). Missing or unparseable severity falls back to
// MEDIUM with a counter increment rather than failing normalization.
func (n *Normalizer) severityBand(raw map[string]any, source string, sc *config.SourceConfig) model.SeverityBand {
	if sc.SeverityField == "" {
		n.mx.IncUnknownSeverity(source)
		return model.SeverityMedium
	}

	value, ok := lookupPath(raw, sc.SeverityField)
	if !ok {
		n.mx.IncUnknownSeverity(source)
		return model.SeverityMedium
	}

	num, ok := toFloat(value)
	if !ok {
		n.mx.IncUnknownSeverity(source)
		return model.SeverityMedium
	}

	switch {
	case num >= sc.CriticalAt:
		return model.SeverityCritical
	case num >= sc.HighAt:
		return model.SeverityHigh
	case num >= sc.MediumAt:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// maskRaw redacts free-text raw fields before the Event is handed to the
// Bus (SPEC_FULL.md §4.11). Fail-open: if marshaling or masking fails, the
// original raw map is returned unmasked rather than dropping the event.
func (n *Normalizer) maskRaw(raw map[string]any) map[string]any {
	if n.masker == nil {
		return raw
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		slog.Error("failed to marshal raw finding for masking, storing unmasked", "error", err)
		return raw
	}

	masked := n.masker.MaskRaw(string(encoded))

	var out map[string]any
	if err := json.Unmarshal([]byte(masked), &out); err != nil {
		slog.Error("failed to unmarshal masked raw finding, storing unmasked", "error", err)
		return raw
	}
	return out
}

func requiredString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q is not a non-empty string", key)
	}
	return s, nil
}

func requiredTime(raw map[string]any, key string) (time.Time, error) {
	v, ok := raw[key]
	if !ok {
		return time.Time{}, fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, fmt.Errorf("field %q is not a timestamp string", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q is not RFC 3339: %w", key, err)
	}
	return t, nil
}

// lookupPath resolves a dotted field path (e.g. "Severity.Normalized")
// against nested map[string]any values, the shape arbitrary vendor JSON
// decodes into.
func lookupPath(raw map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = raw
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

package analysis

import (
	"fmt"
	"strings"

	"github.com/sentinelpipe/sentinel/pkg/masking"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// promptTemplate is the fixed template over {event, ml, triage} spec.md
// §4.5 requires. Account, region and kind are masked before interpolation
// (fail-closed: masking.Service.MaskForPrompt drops the field rather than
// risk leaking raw content to the LLM oracle).
const promptTemplate = `You are a security analyst reviewing an automated detection.

Event:
  id: %s
  source: %s
  kind: %s
  account: %s
  region: %s
  severity_band: %s

ML Scorer:
  threat_score: %.2f
  confidence: %.2f

Triage:
  priority_score: %.2f
  priority_band: %s

Respond with a single JSON object with exactly these fields:
{"risk_score": <0-100 integer>, "attack_vector": <string>, "recommended_actions": [<string>, ...], "business_impact": <string>, "confidence": <0-1 float>}
`

func buildPrompt(evt model.Event, ml *model.MLResult, triage *model.Triage, masker *masking.Service) string {
	account := maskField(masker, evt.Account)
	region := maskField(masker, evt.Region)
	kind := maskField(masker, evt.Kind)

	var threatScore, confidence float64
	if ml != nil {
		threatScore = ml.ThreatScore
		confidence = ml.Confidence
	}

	return fmt.Sprintf(promptTemplate,
		evt.EventID, evt.Source, kind, account, region, evt.SeverityBand,
		threatScore, confidence,
		triage.PriorityScore, triage.PriorityBand,
	)
}

func maskField(masker *masking.Service, value string) string {
	if masker == nil {
		return value
	}
	return masker.MaskForPrompt(value)
}

// stripCodeFence removes a surrounding ```json ... ``` or ``` ... ```
// fence if present, then trims whitespace. Robust parsing per spec.md
// §4.5: oracle responses are frequently fenced even when asked not to be.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "json" || firstLine == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractFirstJSONObject scans s for the first balanced {...} span,
// tolerating leading/trailing prose the oracle sometimes adds around the
// JSON body.
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

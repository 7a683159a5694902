// Package triage computes the deterministic priority score and band for
// an already-scored Event (SPEC_FULL.md §4.4). Score returns pure results
// derived only from the Event, the severity band, the attached ml result,
// and the configured source-multiplier table — no I/O, no clock reads
// other than the returned TriagedAt stamp.
package triage

import (
	"strings"
	"time"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// severityWeight is the fixed w_sev table indexed by severity_band
// (spec.md §4.4), independent of any per-source configuration.
var severityWeight = map[model.SeverityBand]float64{
	model.SeverityLow:      10,
	model.SeverityMedium:   20,
	model.SeverityHigh:     30,
	model.SeverityCritical: 40,
}

// boostTokens is the fixed token set that triggers the 1.3x priority
// boost when any of them appears as a substring of Event.Kind.
var boostTokens = []string{"UnauthorizedAccess", "Recon", "Trojan", "Finding"}

const boostMultiplier = 1.3

// recommendedActions are the fixed, ordered action lists per priority
// band (spec.md §4.4, "published in §6" — this repository's concrete
// realization of that table).
var recommendedActions = map[model.SeverityBand][]string{
	model.SeverityLow:      {"monitor"},
	model.SeverityMedium:   {"monitor", "notify_on_call"},
	model.SeverityHigh:     {"notify_on_call", "escalate_to_tier2"},
	model.SeverityCritical: {"escalate_to_tier2", "engage_incident_commander"},
}

// Score computes triage.priority_score and triage.priority_band for evt,
// given its already-attached ml result. Returns nil if evt has no ml
// result attached (invariant 2: triage implies ml was attached — the
// caller is responsible for only invoking Score once Scorer has run).
func Score(evt model.Event, ml *model.MLResult, sourceCfg *config.SourceConfig) *model.Triage {
	if ml == nil {
		return nil
	}

	wSev := severityWeight[evt.SeverityBand]

	wSrc := 1.0
	if sourceCfg != nil {
		wSrc = sourceCfg.Multiplier
	}

	boost := 1.0
	for _, token := range boostTokens {
		if strings.Contains(evt.Kind, token) {
			boost = boostMultiplier
			break
		}
	}

	base := ml.ThreatScore*0.6 + wSev
	adjusted := base * wSrc * boost
	score := clamp(adjusted, 0, 100)
	band := bandFor(score)

	return &model.Triage{
		PriorityScore:      score,
		PriorityBand:       band,
		RecommendedActions: recommendedActions[band],
		TriagedAt:          time.Now().UTC(),
	}
}

// bandFor maps a priority score to its qualitative band (spec.md §4.4).
func bandFor(score float64) model.SeverityBand {
	switch {
	case score >= 90:
		return model.SeverityCritical
	case score >= 70:
		return model.SeverityHigh
	case score >= 40:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

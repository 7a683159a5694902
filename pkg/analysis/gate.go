package analysis

import (
	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// ShouldFire reports whether the Deep-Analysis Gate fires for this alert:
// priority_score strictly above warn_threshold, and the operator hasn't
// turned the pipeline off (spec.md §4.5). policy is read fresh by the
// caller on every decision — this package never caches it.
func ShouldFire(triage *model.Triage, policy *config.Policy) bool {
	if triage == nil || policy == nil {
		return false
	}
	if policy.ActionPolicy == config.ActionPolicyOff {
		return false
	}
	return triage.PriorityScore > float64(policy.WarnThreshold)
}

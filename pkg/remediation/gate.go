package remediation

import (
	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// ShouldFire reports whether the Remediation Gate fires: priority_score
// strictly above remediate_threshold, and action_policy is FULL. policy
// MUST be read fresh at decision time by the caller, never cached on an
// in-flight Alert, per the §4.6 safety invariant — this package never
// stores it itself.
func ShouldFire(triage *model.Triage, policy *config.Policy) bool {
	if triage == nil || policy == nil {
		return false
	}
	if policy.ActionPolicy != config.ActionPolicyFull {
		return false
	}
	return triage.PriorityScore > float64(policy.RemediateThreshold)
}

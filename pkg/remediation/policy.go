package remediation

import (
	"strings"

	"github.com/sentinelpipe/sentinel/pkg/model"
)

// actionRule matches a source and a substring of kind, in table order. The
// first matching rule wins; no match selects ActionNone (spec.md §4.6).
type actionRule struct {
	source       string // "" matches any source
	kindContains string
	action       model.ActionKind
}

// actionTable is the fixed, finite remediation policy (spec.md §4.6 leaves
// its concrete contents to the implementer — "a fixed policy table keyed
// by (source, kind)"). Ordered most-specific first.
var actionTable = []actionRule{
	{source: "detector-a", kindContains: "UnauthorizedAccess", action: model.ActionDisableCredential},
	{source: "detector-a", kindContains: "Recon", action: model.ActionRevokeNetworkIngress},
	{source: "detector-b", kindContains: "Trojan", action: model.ActionQuarantineInstance},
	{source: "", kindContains: "Finding:AccessKey", action: model.ActionRotateSecret},
	{source: "", kindContains: "Malicious", action: model.ActionBlockAddress},
}

// ActionFor resolves the remediation action for (source, kind). Returns
// ActionNone when nothing in the table matches.
func ActionFor(source, kind string) model.ActionKind {
	for _, rule := range actionTable {
		if rule.source != "" && rule.source != source {
			continue
		}
		if !strings.Contains(kind, rule.kindContains) {
			continue
		}
		return rule.action
	}
	return model.ActionNone
}

package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/sentinelpipe/sentinel/pkg/model"
)

var bandEmoji = map[model.SeverityBand]string{
	model.SeverityLow:      ":large_blue_circle:",
	model.SeverityMedium:   ":large_yellow_circle:",
	model.SeverityHigh:     ":large_orange_circle:",
	model.SeverityCritical: ":red_circle:",
}

func alertURL(dashboardURL, eventID string) string {
	return fmt.Sprintf("%s/alerts/%s", dashboardURL, eventID)
}

// BuildAlertMessage renders the Notifier's fixed message shape (spec.md
// §4.7): event_id, priority_band, priority_score, ml.threat_score,
// analysis.risk_score (if present), a one-line summary, and a link to the
// store record.
func BuildAlertMessage(alert model.Alert, dashboardURL string) []goslack.Block {
	var band model.SeverityBand
	if alert.Triage != nil {
		band = alert.Triage.PriorityBand
	}
	emoji := bandEmoji[band]
	if emoji == "" {
		emoji = ":white_circle:"
	}

	summary := fmt.Sprintf("%s *%s* detected on `%s` (%s / %s) — `event_id: %s`",
		emoji, alert.Kind, alert.Account, alert.Source, alert.Region, alert.EventID)

	var detail string
	if alert.Triage != nil {
		detail = fmt.Sprintf("priority: *%.1f* (%s)", alert.Triage.PriorityScore, alert.Triage.PriorityBand)
	}
	if alert.ML != nil {
		detail += fmt.Sprintf(" · threat_score: *%.1f*", alert.ML.ThreatScore)
	}
	if alert.Analysis != nil {
		detail += fmt.Sprintf(" · risk_score: *%d*", alert.Analysis.RiskScore)
	}
	if alert.Remediation != nil && alert.Remediation.Outcome == model.RemediationFailed {
		detail += fmt.Sprintf("\n:warning: remediation failed: %s", alert.Remediation.Error)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, summary, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, detail, false, false),
			nil, nil,
		),
	}

	url := alertURL(dashboardURL, alert.EventID)
	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Alert Record", false, false))
	btn.URL = url
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

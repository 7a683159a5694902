package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelpipe/sentinel/pkg/model"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service handles Slack delivery of alert notifications for the Notifier
// (C7). Nil-safe: all methods are no-ops when service is nil, so a
// deployment with Slack disabled needs no special-casing at call sites.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service. Returns nil if
// Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyAlert publishes the alert's Notifier message. If a message for
// this event_id was already posted (found via fingerprint search of
// recent channel history), a later update — most commonly a remediation
// failure discovered after the initial notification — is threaded under
// it rather than posted as a new top-level message. Fail-open: errors
// are logged, never returned, per the Notifier's best-effort contract
// (spec.md §4.7).
func (s *Service) NotifyAlert(ctx context.Context, alert model.Alert) {
	if s == nil {
		return
	}

	threadTS, err := s.client.FindMessageByFingerprint(ctx, alert.EventID)
	if err != nil {
		s.logger.Warn("failed to look up existing Slack thread", "event_id", alert.EventID, "error", err)
	}

	blocks := BuildAlertMessage(alert, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 5*time.Second); err != nil {
		s.logger.Error("failed to send Slack alert notification", "event_id", alert.EventID, "error", err)
	}
}

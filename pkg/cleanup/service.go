// Package cleanup implements the Retention/Cleanup loop (C15): a
// background loop that expires Alert Store rows past store_ttl and
// persistent-DLQ rows past dlq_retention. Idempotent and safe to run
// from multiple replicas — every run is a plain bounded DELETE.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelpipe/sentinel/pkg/config"
)

const expireAlertsSQL = `DELETE FROM alerts WHERE expires_at < $1`

// dlqExpirer is the narrow interface Service depends on, satisfied by
// *dlq.DLQ. Kept local to avoid an import cycle with pkg/dlq.
type dlqExpirer interface {
	ExpireOlderThan(ctx context.Context, now time.Time) (int64, error)
}

// Service periodically enforces Alert Store and DLQ retention.
type Service struct {
	config *config.RetentionConfig
	pool   *pgxpool.Pool
	dlq    dlqExpirer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service. pool is the same pgxpool.Pool the
// Store and DLQ use; dlq is typically *dlq.DLQ.
func NewService(cfg *config.RetentionConfig, pool *pgxpool.Pool, dlq dlqExpirer) *Service {
	if cfg == nil {
		cfg = config.DefaultRetentionConfig()
	}
	return &Service{config: cfg, pool: pool, dlq: dlq}
}

// Start launches the background cleanup loop, running once immediately
// and then on config.CleanupInterval.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"store_ttl", s.config.StoreTTL,
		"dlq_retention", s.config.DLQRetention,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.expireAlertStoreRows(ctx)
	s.expireDLQRows(ctx)
}

func (s *Service) expireAlertStoreRows(ctx context.Context) {
	tag, err := s.pool.Exec(ctx, expireAlertsSQL, time.Now())
	if err != nil {
		slog.Error("retention: alert store expiry failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("retention: expired alert store rows", "count", n)
	}
}

func (s *Service) expireDLQRows(ctx context.Context) {
	if s.dlq == nil {
		return
	}
	n, err := s.dlq.ExpireOlderThan(ctx, time.Now())
	if err != nil {
		slog.Error("retention: dlq expiry failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("retention: expired dlq rows", "count", n)
	}
}

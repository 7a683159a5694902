// Package store implements the Alert Store (C8): an idempotent, merge-on-
// write persistence layer keyed by (event_id, observed_at). Any stage
// along the pipeline may write a partial Alert for the same key; writes
// never overwrite already-stored fields with older or empty ones
// (SPEC_FULL.md §4.8).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// Metrics receives Store-observed counter increments.
type Metrics interface {
	IncWrite()
	IncConflictRetry()
}

type noopMetrics struct{}

func (noopMetrics) IncWrite()         {}
func (noopMetrics) IncConflictRetry() {}

// Store persists Alerts to Postgres under the monotonic merge rule.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	mx   Metrics
	log  *slog.Logger
}

// New creates a Store. ttl comes from config.RetentionConfig.StoreTTL and
// is stamped onto every write as expires_at = now + ttl, consistent with
// the cleanup loop's expectation that expires_at is set at write time
// rather than recomputed later.
func New(pool *pgxpool.Pool, retention *config.RetentionConfig, mx Metrics) *Store {
	if mx == nil {
		mx = noopMetrics{}
	}
	ttl := 30 * 24 * time.Hour
	if retention != nil && retention.StoreTTL > 0 {
		ttl = retention.StoreTTL
	}
	return &Store{pool: pool, ttl: ttl, mx: mx, log: slog.Default()}
}

// Put merges incoming into whatever Alert is already stored for
// (event_id, observed_at), writing the result back in the same
// transaction that read it. A missing row is treated as an empty Alert,
// so the first Put for a key is a plain insert.
func (s *Store) Put(ctx context.Context, incoming model.Alert) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, found, err := s.lockForUpdate(ctx, tx, incoming.EventID, incoming.ObservedAt)
	if err != nil {
		return fmt.Errorf("store: lock existing row: %w", err)
	}

	merged := incoming
	if found {
		merged = existing.Merge(incoming)
	}

	if err := s.upsert(ctx, tx, merged); err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	s.mx.IncWrite()
	return nil
}

// Get returns the Alert stored for (eventID, observedAt), or
// (Alert{}, false, nil) if no row exists.
func (s *Store) Get(ctx context.Context, eventID string, observedAt time.Time) (model.Alert, bool, error) {
	row := s.pool.QueryRow(ctx, selectAlertSQL, eventID, observedAt)
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Alert{}, false, nil
	}
	if err != nil {
		return model.Alert{}, false, fmt.Errorf("store: get: %w", err)
	}
	return alert, true, nil
}

func (s *Store) lockForUpdate(ctx context.Context, tx pgx.Tx, eventID string, observedAt time.Time) (model.Alert, bool, error) {
	row := tx.QueryRow(ctx, selectAlertForUpdateSQL, eventID, observedAt)
	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Alert{}, false, nil
	}
	if err != nil {
		return model.Alert{}, false, err
	}
	return alert, true, nil
}

func (s *Store) upsert(ctx context.Context, tx pgx.Tx, alert model.Alert) error {
	ml, err := marshalPtr(alert.ML)
	if err != nil {
		return err
	}
	triage, err := marshalPtr(alert.Triage)
	if err != nil {
		return err
	}
	analysis, err := marshalPtr(alert.Analysis)
	if err != nil {
		return err
	}
	remediation, err := marshalPtr(alert.Remediation)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(alert.Raw)
	if err != nil {
		return fmt.Errorf("marshal raw payload: %w", err)
	}

	expiresAt := time.Now().Add(s.ttl)

	_, err = tx.Exec(ctx, upsertAlertSQL,
		alert.EventID, alert.ObservedAt, alert.IngestedAt, alert.Source,
		alert.Account, alert.Region, alert.Kind, string(alert.SeverityBand),
		raw, ml, triage, analysis, remediation, string(alert.Status), expiresAt,
	)
	return err
}

func marshalPtr(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal field: %w", err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (model.Alert, error) {
	var (
		alert                            model.Alert
		severityBand, status             string
		raw, ml, triage, analysis, remed []byte
	)

	err := row.Scan(
		&alert.EventID, &alert.ObservedAt, &alert.IngestedAt, &alert.Source,
		&alert.Account, &alert.Region, &alert.Kind, &severityBand,
		&raw, &ml, &triage, &analysis, &remed, &status,
	)
	if err != nil {
		return model.Alert{}, err
	}

	alert.SeverityBand = model.SeverityBand(severityBand)
	alert.Status = model.Status(status)

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &alert.Raw); err != nil {
			return model.Alert{}, fmt.Errorf("unmarshal raw payload: %w", err)
		}
	}
	if len(ml) > 0 {
		alert.ML = &model.MLResult{}
		if err := json.Unmarshal(ml, alert.ML); err != nil {
			return model.Alert{}, fmt.Errorf("unmarshal ml: %w", err)
		}
	}
	if len(triage) > 0 {
		alert.Triage = &model.Triage{}
		if err := json.Unmarshal(triage, alert.Triage); err != nil {
			return model.Alert{}, fmt.Errorf("unmarshal triage: %w", err)
		}
	}
	if len(analysis) > 0 {
		alert.Analysis = &model.Analysis{}
		if err := json.Unmarshal(analysis, alert.Analysis); err != nil {
			return model.Alert{}, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	if len(remed) > 0 {
		alert.Remediation = &model.Remediation{}
		if err := json.Unmarshal(remed, alert.Remediation); err != nil {
			return model.Alert{}, fmt.Errorf("unmarshal remediation: %w", err)
		}
	}

	return alert, nil
}

const selectAlertForUpdateSQL = `
SELECT event_id, observed_at, ingested_at, source, account, region, kind,
       severity_band, raw_payload, ml, triage, analysis, remediation, status
FROM alerts WHERE event_id = $1 AND observed_at = $2 FOR UPDATE`

const selectAlertSQL = `
SELECT event_id, observed_at, ingested_at, source, account, region, kind,
       severity_band, raw_payload, ml, triage, analysis, remediation, status
FROM alerts WHERE event_id = $1 AND observed_at = $2`

const upsertAlertSQL = `
INSERT INTO alerts (
    event_id, observed_at, ingested_at, source, account, region, kind,
    severity_band, raw_payload, ml, triage, analysis, remediation, status,
    expires_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (event_id, observed_at) DO UPDATE SET
    ingested_at = EXCLUDED.ingested_at,
    source      = EXCLUDED.source,
    account     = EXCLUDED.account,
    region      = EXCLUDED.region,
    kind        = EXCLUDED.kind,
    severity_band = EXCLUDED.severity_band,
    raw_payload = EXCLUDED.raw_payload,
    ml          = EXCLUDED.ml,
    triage      = EXCLUDED.triage,
    analysis    = EXCLUDED.analysis,
    remediation = EXCLUDED.remediation,
    status      = EXCLUDED.status,
    expires_at  = EXCLUDED.expires_at,
    updated_at  = now()`

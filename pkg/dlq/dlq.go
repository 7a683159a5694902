// Package dlq implements the persistent DLQ (C16): a durable record of
// events the Orchestrator dead-lettered, or that the Alert Store could
// not accept after its retry budget was exhausted (SPEC_FULL.md §4.14).
// It is backed by its own table so a Store outage cannot also take down
// DLQ durability, and supports operator replay by handing a reconstructed
// Event back to the caller (Ingress, typically) to re-submit at INGESTED.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// Metrics receives DLQ-observed gauge/counter updates.
type Metrics interface {
	SetDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetDepth(int) {}

// Entry is a single persistent-DLQ row.
type Entry struct {
	ID         int64
	EventID    string
	Stage      string
	Reason     string
	Event      model.Event
	Enrichment *model.Enrichment
	FailedAt   time.Time
	ExpiresAt  time.Time
}

// DLQ persists dead-lettered events to Postgres.
type DLQ struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	mx   Metrics
}

// New creates a DLQ. ttl comes from config.RetentionConfig.DLQRetention.
func New(pool *pgxpool.Pool, retention *config.RetentionConfig, mx Metrics) *DLQ {
	if mx == nil {
		mx = noopMetrics{}
	}
	ttl := 14 * 24 * time.Hour
	if retention != nil && retention.DLQRetention > 0 {
		ttl = retention.DLQRetention
	}
	return &DLQ{pool: pool, ttl: ttl, mx: mx}
}

// Write appends a dead-letter record. enrichment may be the zero value
// when the failure happened before any enrichment was attached (e.g. a
// MalformedSource rejection at Ingress).
func (d *DLQ) Write(ctx context.Context, evt model.Event, enrichment model.Enrichment, stage, reason string) error {
	eventSnapshot, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("dlq: marshal event snapshot: %w", err)
	}
	enrichmentSnapshot, err := json.Marshal(enrichment)
	if err != nil {
		return fmt.Errorf("dlq: marshal enrichment snapshot: %w", err)
	}

	_, err = d.pool.Exec(ctx, insertEntrySQL,
		evt.EventID, stage, reason, enrichmentSnapshot, eventSnapshot, time.Now().Add(d.ttl),
	)
	if err != nil {
		return fmt.Errorf("dlq: insert: %w", err)
	}
	return nil
}

// Get returns a single DLQ entry by id, for operator inspection or replay.
func (d *DLQ) Get(ctx context.Context, id int64) (Entry, error) {
	row := d.pool.QueryRow(ctx, selectEntrySQL, id)
	return scanEntry(row)
}

// List returns DLQ entries ordered oldest-first, capped at limit, for an
// operator review surface.
func (d *DLQ) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx, listEntriesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("dlq: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("dlq: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes an entry, typically after a successful replay.
func (d *DLQ) Delete(ctx context.Context, id int64) error {
	_, err := d.pool.Exec(ctx, deleteEntrySQL, id)
	if err != nil {
		return fmt.Errorf("dlq: delete: %w", err)
	}
	return nil
}

// Depth reports the current number of live DLQ rows, for the dlq_depth
// gauge (SPEC_FULL.md §4.12).
func (d *DLQ) Depth(ctx context.Context) (int, error) {
	var n int
	if err := d.pool.QueryRow(ctx, countEntriesSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("dlq: depth: %w", err)
	}
	d.mx.SetDepth(n)
	return n, nil
}

// ExpireOlderThan deletes DLQ rows whose expires_at has passed, returning
// the number of rows removed. Called by the Retention/Cleanup loop (C15).
func (d *DLQ) ExpireOlderThan(ctx context.Context, now time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, expireEntriesSQL, now)
	if err != nil {
		return 0, fmt.Errorf("dlq: expire: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e                             Entry
		enrichmentSnapshot, eventSnap []byte
	)
	err := row.Scan(&e.ID, &e.EventID, &e.Stage, &e.Reason, &enrichmentSnapshot, &eventSnap, &e.FailedAt, &e.ExpiresAt)
	if err != nil {
		return Entry{}, err
	}

	if err := json.Unmarshal(eventSnap, &e.Event); err != nil {
		return Entry{}, fmt.Errorf("unmarshal event snapshot: %w", err)
	}
	if len(enrichmentSnapshot) > 0 {
		var enr model.Enrichment
		if err := json.Unmarshal(enrichmentSnapshot, &enr); err != nil {
			return Entry{}, fmt.Errorf("unmarshal enrichment snapshot: %w", err)
		}
		e.Enrichment = &enr
	}
	return e, nil
}

const insertEntrySQL = `
INSERT INTO dlq_entries (event_id, stage, reason, enrichment_snapshot, event_snapshot, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`

const selectEntrySQL = `
SELECT id, event_id, stage, reason, enrichment_snapshot, event_snapshot, failed_at, expires_at
FROM dlq_entries WHERE id = $1`

const listEntriesSQL = `
SELECT id, event_id, stage, reason, enrichment_snapshot, event_snapshot, failed_at, expires_at
FROM dlq_entries ORDER BY failed_at ASC LIMIT $1`

const deleteEntrySQL = `DELETE FROM dlq_entries WHERE id = $1`

const countEntriesSQL = `SELECT count(*) FROM dlq_entries`

const expireEntriesSQL = `DELETE FROM dlq_entries WHERE expires_at < $1`

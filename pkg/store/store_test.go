package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/database"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dbClient, err := database.NewClient(ctx, database.Config{
		Host: host, Port: port.Int(), User: "test", Password: "test",
		Database: "test", SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { dbClient.Close() })

	return New(dbClient.Pool, &config.RetentionConfig{StoreTTL: 30 * 24 * time.Hour}, nil)
}

func TestStorePutThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	observedAt := time.Now().Truncate(time.Microsecond)
	alert := model.Alert{
		Event: model.Event{
			EventID: "evt-1", ObservedAt: observedAt, IngestedAt: observedAt,
			Source: "guardduty", Kind: "UnauthorizedAccess:EC2",
			SeverityBand: model.SeverityHigh,
		},
		Enrichment: model.Enrichment{Status: model.StatusStoredOnly},
	}

	require.NoError(t, s.Put(ctx, alert))

	got, found, err := s.Get(ctx, "evt-1", observedAt)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "guardduty", got.Source)
	assert.Equal(t, model.StatusStoredOnly, got.Status)
	assert.Nil(t, got.ML)
}

func TestStorePutMergesFieldWiseAcrossWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	observedAt := time.Now().Truncate(time.Microsecond)
	base := model.Event{
		EventID: "evt-2", ObservedAt: observedAt, IngestedAt: observedAt,
		Source: "guardduty", Kind: "Recon:EC2",
	}

	require.NoError(t, s.Put(ctx, model.Alert{
		Event:      base,
		Enrichment: model.Enrichment{Status: model.StatusStoredOnly},
	}))

	require.NoError(t, s.Put(ctx, model.Alert{
		Event: model.Event{EventID: "evt-2", ObservedAt: observedAt},
		Enrichment: model.Enrichment{
			ML:     &model.MLResult{ThreatScore: 0.9, ModelVersion: "v1"},
			Status: model.StatusStoredOnly,
		},
	}))

	got, found, err := s.Get(ctx, "evt-2", observedAt)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "guardduty", got.Source, "event fields from the first write must survive a later partial write")
	require.NotNil(t, got.ML)
	assert.Equal(t, 0.9, got.ML.ThreatScore)
}

func TestStorePutNeverRegressesStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	observedAt := time.Now().Truncate(time.Microsecond)
	event := model.Event{EventID: "evt-3", ObservedAt: observedAt, Source: "guardduty", Kind: "Trojan:EC2"}

	require.NoError(t, s.Put(ctx, model.Alert{
		Event:      event,
		Enrichment: model.Enrichment{Status: model.StatusRemediated},
	}))
	require.NoError(t, s.Put(ctx, model.Alert{
		Event:      event,
		Enrichment: model.Enrichment{Status: model.StatusStoredOnly},
	}))

	got, found, err := s.Get(ctx, "evt-3", observedAt)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.StatusRemediated, got.Status)
}

func TestStoreGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "nope", time.Now())
	require.NoError(t, err)
	assert.False(t, found)
}

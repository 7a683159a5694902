// Package ingress implements the HTTP ingress surface (SPEC_FULL.md
// §6.6): a concrete realization of the abstract submit(source_tag,
// raw_finding) contract of spec.md §6.1, plus the operator-facing health,
// metrics, and DLQ-replay endpoints.
package ingress

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelpipe/sentinel/pkg/bus"
	"github.com/sentinelpipe/sentinel/pkg/dlq"
	"github.com/sentinelpipe/sentinel/pkg/model"
	"github.com/sentinelpipe/sentinel/pkg/version"
)

// normalizerFunc is the narrow Normalizer dependency, satisfied by
// *normalizer.Normalizer.
type normalizerFunc interface {
	Normalize(raw map[string]any, source string) (model.Event, error)
}

// eventBus is the narrow Bus dependency, satisfied by *bus.Bus.
type eventBus interface {
	Enqueue(evt model.Event) error
	Stats() bus.Health
}

// deadLetterStore is the narrow persistent-DLQ dependency used for the
// operator inspection and replay surface, satisfied by *dlq.DLQ.
type deadLetterStore interface {
	Get(ctx context.Context, id int64) (dlq.Entry, error)
	List(ctx context.Context, limit int) ([]dlq.Entry, error)
	Delete(ctx context.Context, id int64) error
	Depth(ctx context.Context) (int, error)
}

// Server is the HTTP adapter in front of the Normalizer and Bus.
type Server struct {
	router     *gin.Engine
	normalizer normalizerFunc
	bus        eventBus
	dlq        deadLetterStore
	draining   *bool
}

// New wires a Server. draining, when non-nil, is consulted before every
// submission so a graceful-shutdown Bus.Stop() surfaces as 503 rather
// than a backpressure 429.
func New(norm normalizerFunc, b eventBus, deadLetters deadLetterStore, draining *bool) *Server {
	if draining == nil {
		off := false
		draining = &off
	}
	s := &Server{
		router:     gin.New(),
		normalizer: norm,
		bus:        b,
		dlq:        deadLetters,
		draining:   draining,
	}
	s.router.Use(gin.Recovery())
	s.router.Use(requestID())
	s.routes()
	return s
}

// requestID assigns each inbound request a correlation ID, reusing an
// incoming X-Request-ID header when the caller already set one so a
// request can be traced across service boundaries. Echoed back on the
// response so the submitting detector can correlate a 202's event_id with
// the request that produced it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Handler returns the http.Handler to mount on an *http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.POST("/v1/findings/:source", s.submitFinding)
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/v1/dlq", s.listDLQ)
	s.router.GET("/v1/dlq/:id", s.getDLQ)
	s.router.POST("/v1/dlq/:id/replay", s.replayDLQ)
}

// submitFinding implements POST /v1/findings/{source} (SPEC_FULL.md
// §6.6): 202 on acceptance, 429+Retry-After on Backpressure, 503 on
// Draining, 400 on MalformedSource.
func (s *Server) submitFinding(c *gin.Context) {
	source := c.Param("source")

	if *s.draining {
		c.JSON(http.StatusServiceUnavailable, gin.H{"accepted": false, "reason": "Draining"})
		return
	}

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "reason": "MalformedSource", "error": err.Error()})
		return
	}

	evt, err := s.normalizer.Normalize(raw, source)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "reason": "MalformedSource", "error": err.Error()})
		return
	}

	if err := s.bus.Enqueue(evt); err != nil {
		switch {
		case errors.Is(err, bus.ErrBackpressure):
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{"accepted": false, "reason": "Backpressure"})
		case errors.Is(err, bus.ErrDraining):
			c.JSON(http.StatusServiceUnavailable, gin.H{"accepted": false, "reason": "Draining"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"accepted": false, "error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "event_id": evt.EventID})
}

// healthz implements GET /healthz (SPEC_FULL.md §6.6).
func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	busStats := s.bus.Stats()

	depth := 0
	if s.dlq != nil {
		if n, err := s.dlq.Depth(ctx); err == nil {
			depth = n
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ready":     !*s.draining,
		"version":   version.Full(),
		"in_flight": busStats.TotalDepth,
		"bus_depth": busStats.TotalDepth,
		"dlq_depth": depth,
	})
}

// listDLQ exposes persistent-DLQ rows for operator review.
func (s *Server) listDLQ(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.dlq.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// getDLQ exposes a single persistent-DLQ row by id.
func (s *Server) getDLQ(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	entry, err := s.dlq.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// replayDLQ re-submits a DLQ row's snapshotted Event through the same
// Normalizer → Bus path as a fresh finding, re-entering the pipeline at
// INGESTED (SPEC_FULL.md §4.14), then deletes the DLQ row on success.
func (s *Server) replayDLQ(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	entry, err := s.dlq.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if err := s.bus.Enqueue(entry.Event); err != nil {
		switch {
		case errors.Is(err, bus.ErrBackpressure):
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{"accepted": false, "reason": "Backpressure"})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"accepted": false, "error": err.Error()})
		}
		return
	}

	if err := s.dlq.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replayed but failed to delete dlq row: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "event_id": entry.Event.EventID})
}

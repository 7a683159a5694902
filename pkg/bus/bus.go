// Package bus implements the Event Bus (C2): a fixed set of buffered,
// partitioned channels that preserve per-event_id ordering while letting
// unrelated events flow concurrently across partitions.
package bus

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

// Metrics receives Bus-observed counter increments. Implemented by
// pkg/metrics; nil is tolerated.
type Metrics interface {
	IncAgedOut()
	IncBackpressure()
}

type noopMetrics struct{}

func (noopMetrics) IncAgedOut()      {}
func (noopMetrics) IncBackpressure() {}

// Handler processes one Event on behalf of a partition's dedicated
// goroutine. Handlers for the same partition run strictly one at a time,
// in enqueue order; handlers across partitions run concurrently.
type Handler func(ctx context.Context, evt model.Event)

type message struct {
	evt        model.Event
	enqueuedAt time.Time
}

// Bus is the partitioned, bounded channel set described in SPEC_FULL.md
// §4.2 and §5: one buffered Go channel per partition bucket, hashed from
// event_id, each drained by exactly one goroutine.
type Bus struct {
	cfg        *config.BusConfig
	handler    Handler
	mx         Metrics
	partitions []chan message

	wg       sync.WaitGroup
	closeMu  sync.RWMutex
	draining bool
}

// New creates a Bus with the configured partition count and per-partition
// buffer depth. handler is invoked for every message that is not dropped
// as aged-out.
func New(cfg *config.BusConfig, handler Handler, mx Metrics) *Bus {
	if cfg == nil {
		cfg = config.DefaultBusConfig()
	}
	if mx == nil {
		mx = noopMetrics{}
	}

	partitions := make([]chan message, cfg.Partitions)
	for i := range partitions {
		partitions[i] = make(chan message, cfg.PartitionCapacity)
	}

	return &Bus{
		cfg:        cfg,
		handler:    handler,
		mx:         mx,
		partitions: partitions,
	}
}

// Start spawns one consumer goroutine per partition. Safe to call once;
// the Bus is ready to accept Enqueue calls immediately after this returns.
func (b *Bus) Start(ctx context.Context) {
	for i, ch := range b.partitions {
		b.wg.Add(1)
		go b.consume(ctx, i, ch)
	}
	slog.Info("event bus started", "partitions", len(b.partitions), "partition_capacity", b.cfg.PartitionCapacity)
}

// Stop stops accepting new events and waits for every partition channel to
// drain the messages already buffered (the graceful-shutdown policy of
// spec.md §5: in-flight work runs to completion, new ingress is rejected).
func (b *Bus) Stop() {
	b.closeMu.Lock()
	b.draining = true
	for _, ch := range b.partitions {
		close(ch)
	}
	b.closeMu.Unlock()

	b.wg.Wait()
	slog.Info("event bus drained")
}

// Enqueue routes evt to the partition hashed from its EventID. Returns
// ErrBackpressure if that partition's buffer is full, or ErrDraining if
// Stop has already been called.
func (b *Bus) Enqueue(evt model.Event) error {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()

	if b.draining {
		return ErrDraining
	}

	idx := b.partitionFor(evt.EventID)
	select {
	case b.partitions[idx] <- message{evt: evt, enqueuedAt: time.Now()}:
		return nil
	default:
		b.mx.IncBackpressure()
		return ErrBackpressure
	}
}

func (b *Bus) partitionFor(eventID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(eventID))
	return int(h.Sum32() % uint32(len(b.partitions)))
}

func (b *Bus) consume(ctx context.Context, partition int, ch chan message) {
	defer b.wg.Done()

	for msg := range ch {
		if b.cfg.MessageRetention > 0 && time.Since(msg.enqueuedAt) > b.cfg.MessageRetention {
			b.mx.IncAgedOut()
			slog.Warn("event aged out of bus partition",
				"partition", partition, "event_id", msg.evt.EventID)
			continue
		}

		b.handler(ctx, msg.evt)
	}
}

// Health reports the current depth of each partition, used by the
// GET /healthz surface (SPEC_FULL.md §6.6) to report bus_depth.
type Health struct {
	Partitions   int
	TotalDepth   int
	PerPartition []int
}

// Stats returns a point-in-time snapshot of queue depth per partition.
func (b *Bus) Stats() Health {
	h := Health{Partitions: len(b.partitions), PerPartition: make([]int, len(b.partitions))}
	for i, ch := range b.partitions {
		d := len(ch)
		h.PerPartition[i] = d
		h.TotalDepth += d
	}
	return h
}

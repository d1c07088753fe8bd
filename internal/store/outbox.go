// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sentryd/sentryd/internal/logging"
	"github.com/sentryd/sentryd/internal/metrics"
)

const (
	outboxBackoffInitial = time.Second
	outboxBackoffCap     = 60 * time.Second
	outboxJitterFraction = 0.25
)

// Outbox is a multi-producer, single-consumer queue of BlockRecords waiting
// to be synced to the shared store. Push is non-blocking; the Run task
// owns all network I/O.
type Outbox struct {
	mu      sync.Mutex
	pending []BlockRecord

	batchSize    int
	batchTimeout time.Duration

	store   BlockStore
	metrics *metrics.Collector
	log     *logging.Logger
}

// NewOutbox builds an Outbox that flushes in batches of batchSize or after
// batchTimeout, whichever comes first.
func NewOutbox(s BlockStore, batchSize int, batchTimeout time.Duration) *Outbox {
	return &Outbox{
		store:        s,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		log:          logging.WithComponent("outbox"),
	}
}

// SetMetrics attaches a Collector that Run reports publish outcomes to.
// Optional; a nil Collector is never dereferenced.
func (o *Outbox) SetMetrics(c *metrics.Collector) { o.metrics = c }

// Push enqueues a record. Safe for concurrent use by multiple producers.
func (o *Outbox) Push(r BlockRecord) {
	o.mu.Lock()
	o.pending = append(o.pending, r)
	o.mu.Unlock()
}

// Len reports how many records are currently queued.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Outbox) take(max int) []BlockRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return nil
	}
	n := len(o.pending)
	if max > 0 && n > max {
		n = max
	}
	batch := o.pending[:n]
	o.pending = o.pending[n:]
	return batch
}

func (o *Outbox) requeue(batch []BlockRecord) {
	o.mu.Lock()
	o.pending = append(batch, o.pending...)
	o.mu.Unlock()
}

// Run drains the queue until ctx is canceled. On cancellation it spends up
// to gracefulTimeout flushing what remains, then drops anything left with a
// warn-level summary. A batch is emitted when batchSize entries are queued
// or batchTimeout has elapsed since the oldest queued entry, whichever
// comes first.
func (o *Outbox) Run(ctx context.Context, gracefulTimeout time.Duration) {
	pollInterval := o.batchTimeout / 10
	if pollInterval <= 0 || pollInterval > 200*time.Millisecond {
		pollInterval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var oldestQueuedAt time.Time

	for {
		select {
		case <-ctx.Done():
			o.drainOnShutdown(gracefulTimeout)
			return
		case <-ticker.C:
			n := o.Len()
			if n == 0 {
				oldestQueuedAt = time.Time{}
				continue
			}
			if oldestQueuedAt.IsZero() {
				oldestQueuedAt = time.Now()
			}
			if n >= o.batchSize || time.Since(oldestQueuedAt) >= o.batchTimeout {
				o.flushOnce(ctx)
				oldestQueuedAt = time.Time{}
			}
		}
	}
}

func (o *Outbox) flushOnce(ctx context.Context) {
	batch := o.take(o.batchSize)
	if len(batch) == 0 {
		return
	}

	backoff := outboxBackoffInitial
	for attempt := 0; ; attempt++ {
		err := o.store.UpsertBatch(ctx, batch)
		if err == nil {
			o.log.Debug("outbox flushed batch", "size", len(batch))
			if o.metrics != nil {
				o.metrics.ObserveOutboxPublished(len(batch))
			}
			return
		}
		o.log.WithError(err).Warn("outbox batch failed, retrying", "attempt", attempt, "backoff", backoff.String())
		if o.metrics != nil {
			o.metrics.ObserveOutboxFailure()
		}

		select {
		case <-ctx.Done():
			o.requeue(batch)
			return
		case <-time.After(jitter(backoff)):
		}

		backoff *= 2
		if backoff > outboxBackoffCap {
			backoff = outboxBackoffCap
		}
	}
}

func (o *Outbox) drainOnShutdown(gracefulTimeout time.Duration) {
	deadline := time.Now().Add(gracefulTimeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	for o.Len() > 0 && time.Now().Before(deadline) {
		o.flushOnce(ctx)
	}

	if dropped := o.drain(); len(dropped) > 0 {
		o.log.Warn("outbox dropped unsent records at shutdown", "count", len(dropped), "ips", dropped)
	}
}

// drain empties o.pending and returns the "ip/origin_host" keys of whatever
// was still queued, for the shutdown warn log.
func (o *Outbox) drain() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return nil
	}
	keys := make([]string, len(o.pending))
	for i, r := range o.pending {
		keys[i] = r.IP + "/" + r.OriginHost
	}
	o.pending = nil
	return keys
}

// jitter returns d adjusted by up to outboxJitterFraction in either
// direction, so retrying clients don't all wake up in lockstep.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * outboxJitterFraction
	delta := (rand.Float64()*2 - 1) * spread
	return d + time.Duration(delta)
}

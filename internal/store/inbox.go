// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"context"
	"time"

	"github.com/sentryd/sentryd/internal/logging"
	"github.com/sentryd/sentryd/internal/metrics"
)

// Inbox periodically pulls peer-originated blocks from the shared store so
// this node re-enforces blocks discovered by others. Each result is handed
// to Apply, which is expected to route it through the CIDR filter (so local
// never-block remains authoritative) before touching the firewall backend.
type Inbox struct {
	store        BlockStore
	thisHost     string
	pollInterval time.Duration
	lastCheck    time.Time

	metrics *metrics.Collector
	log     *logging.Logger
}

// SetMetrics attaches a Collector that pollOnce reports outcomes to.
// Optional; a nil Collector is never dereferenced.
func (in *Inbox) SetMetrics(c *metrics.Collector) { in.metrics = c }

// NewInbox builds an Inbox that re-hydrates from "now - blockDuration" on
// first poll, so a restarting node catches up on whatever peers enforced
// while it was down.
func NewInbox(s BlockStore, thisHost string, pollInterval, blockDuration time.Duration) *Inbox {
	return &Inbox{
		store:        s,
		thisHost:     thisHost,
		pollInterval: pollInterval,
		lastCheck:    time.Now().Add(-blockDuration),
		log:          logging.WithComponent("inbox"),
	}
}

// ApplyFunc is invoked once per peer-originated entry that has not yet
// expired. Implementations route it through C6 (CIDR filter) then C7
// (firewall backend); it never republishes through the Outbox.
type ApplyFunc func(ip string, ttl time.Duration)

// Run polls until ctx is canceled.
func (in *Inbox) Run(ctx context.Context, apply ApplyFunc) {
	ticker := time.NewTicker(in.pollInterval)
	defer ticker.Stop()

	in.pollOnce(ctx, apply)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.pollOnce(ctx, apply)
		}
	}
}

func (in *Inbox) pollOnce(ctx context.Context, apply ApplyFunc) {
	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	checkpoint := in.lastCheck
	results, err := in.store.PullSince(fetchCtx, in.thisHost, checkpoint)
	if err != nil {
		in.log.WithError(err).Warn("inbox pull failed, will retry next interval")
		if in.metrics != nil {
			in.metrics.ObserveInboxPollError()
		}
		return
	}

	now := time.Now()
	applied := 0
	for _, r := range results {
		if !r.ExpiresAt.After(now) {
			continue
		}
		apply(r.IP, r.ExpiresAt.Sub(now))
		applied++
	}
	in.lastCheck = now
	if applied > 0 {
		in.log.Info("inbox applied peer blocks", "count", applied)
		if in.metrics != nil {
			in.metrics.ObserveInboxApplied(applied)
		}
	}
}

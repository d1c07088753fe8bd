// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package daemon implements the Supervisor: the main tick loop that reads
// sources, matches patterns, filters by CIDR, enforces firewall blocks,
// and coordinates the Outbox, Inbox, and plugin tasks around it.
package daemon

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentryd/sentryd/internal/cidr"
	"github.com/sentryd/sentryd/internal/config"
	"github.com/sentryd/sentryd/internal/detector"
	"github.com/sentryd/sentryd/internal/discovery"
	"github.com/sentryd/sentryd/internal/kernel"
	"github.com/sentryd/sentryd/internal/ledger"
	"github.com/sentryd/sentryd/internal/logging"
	"github.com/sentryd/sentryd/internal/logsource"
	"github.com/sentryd/sentryd/internal/matcher"
	"github.com/sentryd/sentryd/internal/metrics"
	"github.com/sentryd/sentryd/internal/plugin"
	"github.com/sentryd/sentryd/internal/store"
)

// Supervisor owns the detection/enforcement/sync lifecycle described in the
// component design. Only Supervisor methods touch the Ledger; the tick loop,
// the Inbox's applyPeerBlock and the plugins' enqueuePluginIP all run in
// their own goroutines and serialize access through mu.
type Supervisor struct {
	cfgMgr   *config.Manager
	backend  kernel.Backend
	ledger   *ledger.Ledger
	reader   *logsource.Reader
	discover *discovery.Discoverer

	blockStore store.BlockStore
	outbox     *store.Outbox
	inbox      *store.Inbox
	plugins    []plugin.Plugin

	metrics *metrics.Collector

	reloadRequested   atomic.Bool
	shutdownRequested atomic.Bool

	sinceHeartbeat time.Time
	mu             sync.Mutex

	log *logging.Logger
}

// New wires a Supervisor from an already-loaded config Manager, firewall
// backend, and (optional; nil disables sync) BlockStore.
func New(cfgMgr *config.Manager, backend kernel.Backend, blockStore store.BlockStore) *Supervisor {
	snap := cfgMgr.Current()

	s := &Supervisor{
		cfgMgr:         cfgMgr,
		backend:        backend,
		ledger:         ledger.New(),
		reader:         logsource.NewReader(),
		discover:       discovery.New(),
		blockStore:     blockStore,
		metrics:        metrics.NewCollector(snap.Firewall),
		sinceHeartbeat: time.Now(),
		log:            logging.WithComponent("supervisor"),
	}

	if blockStore != nil {
		s.outbox = store.NewOutbox(blockStore, snap.Store.BatchSize, snap.Store.BatchTimeout)
		s.outbox.SetMetrics(s.metrics)
		s.inbox = store.NewInbox(blockStore, snap.Hostname, snap.SleepTime, snap.BlockDuration)
		s.inbox.SetMetrics(s.metrics)
	}

	for _, pc := range snap.Plugins {
		s.plugins = append(s.plugins, plugin.NewHTTPPlugin(pc))
	}

	return s
}

// Metrics returns the Supervisor's Prometheus collector for registration
// with an HTTP handler.
func (s *Supervisor) Metrics() *metrics.Collector { return s.metrics }

// RequestReload sets the reload flag; it takes effect at the top of the
// next tick.
func (s *Supervisor) RequestReload() { s.reloadRequested.Store(true) }

// RequestShutdown sets the shutdown flag; the current tick completes, then
// Run begins its graceful drain.
func (s *Supervisor) RequestShutdown() { s.shutdownRequested.Store(true) }

// Run executes RefreshStatic once up front, then loops at sleep_time until
// a shutdown is requested or ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	snap := s.cfgMgr.Current()
	if err := s.backend.RefreshStatic(snap.NeverBlockV4, snap.NeverBlockV6, snap.AlwaysBlockV4, snap.AlwaysBlockV6); err != nil {
		s.log.WithError(err).Error("initial RefreshStatic failed")
	}

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	g, gCtx := errgroup.WithContext(bgCtx)
	s.spawnBackground(g, gCtx, snap)

	ticker := time.NewTicker(snap.SleepTime)
	defer ticker.Stop()

	for {
		if s.shutdownRequested.Load() {
			break
		}
		select {
		case <-ctx.Done():
			s.shutdownRequested.Store(true)
		case <-ticker.C:
			s.tick(ctx)
		}
		if s.shutdownRequested.Load() {
			break
		}
	}

	s.log.Info("shutdown requested, draining background tasks")
	cancelBg()
	_ = g.Wait()
	return nil
}

func (s *Supervisor) spawnBackground(g *errgroup.Group, ctx context.Context, snap *config.Snapshot) {
	if s.outbox != nil {
		g.Go(func() error {
			s.outbox.Run(ctx, snap.GracefulTimeout)
			return nil
		})
	}
	if s.inbox != nil {
		g.Go(func() error {
			s.inbox.Run(ctx, s.applyPeerBlock)
			return nil
		})
	}
	for _, p := range s.plugins {
		p := p
		g.Go(func() error {
			p.Run(ctx, s.enqueuePluginIP)
			return nil
		})
	}
}

// tick runs one full iteration of the detection/enforcement pipeline.
func (s *Supervisor) tick(ctx context.Context) {
	if s.reloadRequested.Load() {
		s.handleReload(ctx)
	}

	snap := s.cfgMgr.Current()
	reg := detector.Build(snap)
	cidrSet := cidr.NewSet(append(snap.NeverBlockV4, snap.NeverBlockV6...), append(snap.AlwaysBlockV4, snap.AlwaysBlockV6...))

	sources := s.discover.Discover(ctx, reg, snap.ExcludeUnits)
	groups := s.reader.Read(ctx, sources, snap.InitialLookback, snap.MaxFileTailLines, "scp", time.Minute, "")

	hits := matcher.Match(groups, snap.CompiledPatterns, reg, snap.Hostname, time.Now())
	hits = matcher.DedupByIP(hits)

	for _, h := range hits {
		s.metrics.ObserveHit(h.Detector)
		s.processCandidate(h.IP, snap.BlockDuration, cidrSet, h)
	}

	s.mu.Lock()
	swept := s.ledger.SweepExpired(time.Now())
	ledgerLen := s.ledger.Len()
	s.mu.Unlock()
	s.metrics.SetLedgerSize(ledgerLen)
	if s.outbox != nil {
		s.metrics.SetOutboxQueued(s.outbox.Len())
	}
	if swept > 0 {
		s.log.Debug("swept expired ledger entries", "count", swept)
	}

	if time.Since(s.sinceHeartbeat) >= snap.Heartbeat {
		s.heartbeat(ctx)
	}
}

// processCandidate runs one IP through the filter and, if eligible,
// enforces it and pushes it onto the Outbox.
func (s *Supervisor) processCandidate(ipStr string, ttl time.Duration, cidrSet *cidr.Set, h matcher.Hit) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return
	}

	s.mu.Lock()
	verdict := cidr.Classify(ipStr, cidrSet, s.ledger)
	s.mu.Unlock()

	switch verdict {
	case cidr.NeverBlock:
		s.metrics.ObserveNeverBlocked()
		return
	case cidr.AlreadyEnforced:
		s.metrics.ObserveAlreadyEnforced()
		return
	}

	res := s.backend.Block(ip, ttl)
	if res.Kind != kernel.Applied {
		s.metrics.ObserveRejected(h.Detector)
		s.log.Warn("firewall rejected block, will retry next tick", "ip", ipStr, "reason", res.Reason)
		return
	}
	s.metrics.ObserveBlock(h.Detector)

	s.mu.Lock()
	s.ledger.Put(ip, res.ExpiresAt)
	s.mu.Unlock()

	if s.outbox != nil {
		s.outbox.Push(store.BlockRecord{
			IP:             ipStr,
			OriginHost:     h.OriginHost,
			Service:        h.Service,
			Detector:       h.Detector,
			Pattern:        h.Pattern,
			Sample:         h.Sample,
			FirstBlockedAt: time.Now(),
			LastSeenAt:     time.Now(),
			ExpiresAt:      res.ExpiresAt,
			Count:          1,
		})
	}
}

// applyPeerBlock is the Inbox's ApplyFunc: it must pass through C6 so local
// never-block stays authoritative, and never republishes through Outbox.
func (s *Supervisor) applyPeerBlock(ipStr string, ttl time.Duration) {
	snap := s.cfgMgr.Current()
	cidrSet := cidr.NewSet(append(snap.NeverBlockV4, snap.NeverBlockV6...), append(snap.AlwaysBlockV4, snap.AlwaysBlockV6...))

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return
	}

	s.mu.Lock()
	verdict := cidr.Classify(ipStr, cidrSet, s.ledger)
	s.mu.Unlock()
	if verdict != cidr.Candidate {
		return
	}

	res := s.backend.Block(ip, ttl)
	if res.Kind != kernel.Applied {
		s.metrics.ObserveRejected("peer")
		s.log.Warn("firewall rejected peer block", "ip", ipStr, "reason", res.Reason)
		return
	}
	s.metrics.ObserveBlock("peer")
	s.mu.Lock()
	s.ledger.Put(ip, res.ExpiresAt)
	s.mu.Unlock()
}

// enqueuePluginIP is the EnqueueFunc handed to every Plugin: it re-enters
// the pipeline exactly like a locally matched Hit.
func (s *Supervisor) enqueuePluginIP(ipStr, source, detectorName string) {
	snap := s.cfgMgr.Current()
	cidrSet := cidr.NewSet(append(snap.NeverBlockV4, snap.NeverBlockV6...), append(snap.AlwaysBlockV4, snap.AlwaysBlockV6...))
	h := matcher.Hit{
		IP:         ipStr,
		Detector:   detectorName,
		Service:    source,
		Pattern:    "",
		Sample:     "",
		FirstSeen:  time.Now(),
		LastSeen:   time.Now(),
		OriginHost: snap.Hostname,
	}
	s.processCandidate(ipStr, snap.BlockDuration, cidrSet, h)
}

func (s *Supervisor) handleReload(ctx context.Context) {
	s.reloadRequested.Store(false)
	snap, warnings, err := s.cfgMgr.Reload()
	if err != nil {
		s.log.WithError(err).Error("reload rejected, continuing with previous config")
		s.metrics.ObserveReload("rejected")
		return
	}
	for _, w := range warnings {
		s.log.Warn("config warning", "detail", w.String())
	}
	if err := s.backend.RefreshStatic(snap.NeverBlockV4, snap.NeverBlockV6, snap.AlwaysBlockV4, snap.AlwaysBlockV6); err != nil {
		s.log.WithError(err).Error("RefreshStatic after reload failed")
	}
	s.metrics.ObserveReload("success")
}

func (s *Supervisor) heartbeat(ctx context.Context) {
	fresh, err := s.backend.Snapshot()
	if err != nil {
		s.log.WithError(err).Warn("heartbeat snapshot failed, ledger left as-is")
		return
	}
	s.mu.Lock()
	s.ledger.Reconcile(fresh)
	n := s.ledger.Len()
	s.mu.Unlock()

	s.metrics.SetLedgerSize(n)
	s.metrics.ObserveHeartbeat()
	s.sinceHeartbeat = time.Now()
	s.log.Info("heartbeat", "enforced", n)
}

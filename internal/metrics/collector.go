// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes sentryd's internal state as Prometheus metrics:
// dynamic/static set sizes read directly from the kernel packet filter,
// ledger size, per-tick hit/block counters, and outbox/inbox sync counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentryd/sentryd/internal/config"
)

// Collector implements prometheus.Collector for the daemon's live state.
// The set-size gauges are collected on demand (native netlink read) rather
// than cached, so a scrape always reflects the kernel's current sets.
type Collector struct {
	tableFamily string
	tableName   string
	setNames    map[string]string // logical name -> nftables set name

	ledgerSize prometheus.Gauge

	hitsTotal      *prometheus.CounterVec
	blocksTotal    *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	neverBlocked   prometheus.Counter
	alreadyBlocked prometheus.Counter

	outboxQueued  prometheus.Gauge
	outboxPushed  prometheus.Counter
	outboxFailed  prometheus.Counter
	inboxApplied  prometheus.Counter
	inboxPollErrs prometheus.Counter

	heartbeats prometheus.Counter
	reloads    *prometheus.CounterVec

	setSize *prometheus.GaugeVec
}

// NewCollector builds a Collector bound to the firewall config naming the
// sets to report on each scrape.
func NewCollector(fw config.FirewallConfig) *Collector {
	return &Collector{
		tableFamily: fw.TableFamily,
		tableName:   fw.TableName,
		setNames: map[string]string{
			"dynamic_v4": fw.DynamicSetV4,
			"dynamic_v6": fw.DynamicSetV6,
			"never_v4":   fw.NeverSetV4,
			"never_v6":   fw.NeverSetV6,
			"always_v4":  fw.AlwaysSetV4,
			"always_v6":  fw.AlwaysSetV6,
		},

		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentryd_ledger_entries",
			Help: "Number of IPs the in-memory ledger believes are currently enforced.",
		}),

		hitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentryd_pattern_hits_total",
			Help: "Total pattern matches, by detector.",
		}, []string{"detector"}),

		blocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentryd_blocks_applied_total",
			Help: "Total IPs successfully blocked, by detector.",
		}, []string{"detector"}),

		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentryd_blocks_rejected_total",
			Help: "Total block attempts the kernel backend rejected, by detector.",
		}, []string{"detector"}),

		neverBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_never_block_skipped_total",
			Help: "Total candidates skipped because they matched the never-block set.",
		}),

		alreadyBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_already_enforced_skipped_total",
			Help: "Total candidates skipped because the ledger already enforces them.",
		}),

		outboxQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentryd_outbox_queued",
			Help: "Block records waiting to be published to the shared store.",
		}),

		outboxPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_outbox_published_total",
			Help: "Total block records successfully published to the shared store.",
		}),

		outboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_outbox_publish_failures_total",
			Help: "Total outbox publish attempts that failed and were requeued.",
		}),

		inboxApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_inbox_applied_total",
			Help: "Total peer-origin blocks pulled from the shared store and enforced locally.",
		}),

		inboxPollErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_inbox_poll_errors_total",
			Help: "Total inbox poll attempts that failed.",
		}),

		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_heartbeats_total",
			Help: "Total ledger/kernel reconciliation heartbeats performed.",
		}),

		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentryd_config_reloads_total",
			Help: "Total config reload attempts, by outcome.",
		}, []string{"outcome"}),

		setSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentryd_set_elements",
			Help: "Element count of each nftables set sentryd manages.",
		}, []string{"set"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ledgerSize.Describe(ch)
	c.hitsTotal.Describe(ch)
	c.blocksTotal.Describe(ch)
	c.rejectedTotal.Describe(ch)
	c.neverBlocked.Describe(ch)
	c.alreadyBlocked.Describe(ch)
	c.outboxQueued.Describe(ch)
	c.outboxPushed.Describe(ch)
	c.outboxFailed.Describe(ch)
	c.inboxApplied.Describe(ch)
	c.inboxPollErrs.Describe(ch)
	c.heartbeats.Describe(ch)
	c.reloads.Describe(ch)
	c.setSize.Describe(ch)
}

// Collect implements prometheus.Collector. The set gauges are refreshed
// here via a live netlink read; every other metric reports its accumulated
// value.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	names := make([]string, 0, len(c.setNames))
	logical := make([]string, 0, len(c.setNames))
	for logicalName, setName := range c.setNames {
		if setName == "" {
			continue
		}
		names = append(names, setName)
		logical = append(logical, logicalName)
	}

	if stats, err := collectSetStats(c.tableFamily, c.tableName, names); err == nil {
		for i, setName := range names {
			c.setSize.WithLabelValues(logical[i]).Set(float64(stats.Counts[setName]))
		}
	}

	c.ledgerSize.Collect(ch)
	c.hitsTotal.Collect(ch)
	c.blocksTotal.Collect(ch)
	c.rejectedTotal.Collect(ch)
	c.neverBlocked.Collect(ch)
	c.alreadyBlocked.Collect(ch)
	c.outboxQueued.Collect(ch)
	c.outboxPushed.Collect(ch)
	c.outboxFailed.Collect(ch)
	c.inboxApplied.Collect(ch)
	c.inboxPollErrs.Collect(ch)
	c.heartbeats.Collect(ch)
	c.reloads.Collect(ch)
	c.setSize.Collect(ch)
}

// SetLedgerSize updates the ledger-size gauge; the supervisor calls this
// after each sweep and heartbeat.
func (c *Collector) SetLedgerSize(n int) { c.ledgerSize.Set(float64(n)) }

// ObserveHit increments the per-detector hit counter.
func (c *Collector) ObserveHit(detector string) { c.hitsTotal.WithLabelValues(detector).Inc() }

// ObserveBlock increments the per-detector applied-block counter.
func (c *Collector) ObserveBlock(detector string) { c.blocksTotal.WithLabelValues(detector).Inc() }

// ObserveRejected increments the per-detector rejected-block counter.
func (c *Collector) ObserveRejected(detector string) {
	c.rejectedTotal.WithLabelValues(detector).Inc()
}

// ObserveNeverBlocked increments the never-block skip counter.
func (c *Collector) ObserveNeverBlocked() { c.neverBlocked.Inc() }

// ObserveAlreadyEnforced increments the already-enforced skip counter.
func (c *Collector) ObserveAlreadyEnforced() { c.alreadyBlocked.Inc() }

// SetOutboxQueued updates the outbox queue-depth gauge.
func (c *Collector) SetOutboxQueued(n int) { c.outboxQueued.Set(float64(n)) }

// ObserveOutboxPublished increments the outbox success counter by n.
func (c *Collector) ObserveOutboxPublished(n int) { c.outboxPushed.Add(float64(n)) }

// ObserveOutboxFailure increments the outbox failure counter.
func (c *Collector) ObserveOutboxFailure() { c.outboxFailed.Inc() }

// ObserveInboxApplied increments the inbox applied counter by n.
func (c *Collector) ObserveInboxApplied(n int) { c.inboxApplied.Add(float64(n)) }

// ObserveInboxPollError increments the inbox poll-error counter.
func (c *Collector) ObserveInboxPollError() { c.inboxPollErrs.Inc() }

// ObserveHeartbeat increments the heartbeat counter.
func (c *Collector) ObserveHeartbeat() { c.heartbeats.Inc() }

// ObserveReload increments the reload counter for the given outcome
// ("success" or "rejected").
func (c *Collector) ObserveReload(outcome string) { c.reloads.WithLabelValues(outcome).Inc() }

// Register registers the collector with the default Prometheus registry.
func (c *Collector) Register() error { return prometheus.Register(c) }

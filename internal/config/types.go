// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads and validates sentryd's INI configuration into an
// immutable Snapshot. A Snapshot is built once by Load and never mutated;
// reload produces a brand new Snapshot that the supervisor swaps in
// atomically.
package config

import (
	"regexp"
	"time"
)

// Pattern is a compiled detection regex that keeps its original source text
// around for diagnostics (log lines, --test-config output).
type Pattern struct {
	Source   string
	Compiled *regexp.Regexp
}

// Detector describes one named attack-pattern source, local or remote.
type Detector struct {
	Name    string
	Service string // logical service label for BlockRecord.Service; defaults to Name
	Host    string // empty => local
	Units   []string
	Files   []string
	// RemoteFiles are scp-like paths on Host, pulled into a local cache by
	// the log source fetcher.
	RemoteFiles []string
	Patterns    []Pattern

	RemoteUser      string
	RemotePort      int
	RemoteJournald  bool
	FetchMethod     string
	FetchInterval   time.Duration
	CacheDir        string
	MaxThreshold    int
	TimeWindow      time.Duration
}

// Key returns the detector's registry key: "name" for local detectors,
// "name@host" for remote ones.
func (d Detector) Key() string {
	if d.Host == "" {
		return d.Name
	}
	return d.Name + "@" + d.Host
}

// Plugin describes one configured public-blocklist plugin.
type Plugin struct {
	Name          string
	Active        bool
	URL           string
	FetchInterval time.Duration
	CacheDir      string
	IncludeIPv6   bool
}

// StoreConfig describes the shared relational BlockStore connection.
type StoreConfig struct {
	DSN          string
	BatchSize    int
	BatchTimeout time.Duration
}

// FirewallConfig names the kernel packet-filter table and sets sentryd
// mutates. sentryd never creates or destroys tables/chains; these must
// already exist.
type FirewallConfig struct {
	TableFamily string // "ip", "ip6", or "inet"
	TableName   string

	DynamicSetV4 string
	DynamicSetV6 string

	NeverSetV4  string
	NeverSetV6  string
	AlwaysSetV4 string
	AlwaysSetV6 string

	DryRun bool
}

// Snapshot is the fully resolved, validated configuration in effect for one
// tick (or one reload epoch). It is never mutated after Load returns it.
type Snapshot struct {
	// Timing
	BlockDuration    time.Duration
	SleepTime        time.Duration
	Heartbeat        time.Duration
	InitialLookback  time.Duration
	GracefulTimeout  time.Duration
	CleanupInterval  time.Duration

	// Filter sets
	NeverBlockV4  []string
	NeverBlockV6  []string
	AlwaysBlockV4 []string
	AlwaysBlockV6 []string

	Firewall FirewallConfig
	Store    StoreConfig

	// Discovery
	AutoMode        bool
	ExcludeUnits    []string
	MaxFileTailLines int

	// Derived
	Detectors        []Detector
	CompiledPatterns []Pattern // union of all detectors' patterns + bad_conn_patterns

	Hostname string

	// MetricsListen is the address the Prometheus handler binds to.
	// Empty disables the metrics endpoint entirely.
	MetricsListen string

	// Raw plugin configs, parsed verbatim.
	Plugins []Plugin
}

// Warning is a non-fatal condition surfaced by Load (e.g. an empty
// never_block_v4, a pattern that failed to compile).
type Warning struct {
	Detector string
	Message  string
}

func (w Warning) String() string {
	if w.Detector == "" {
		return w.Message
	}
	return w.Detector + ": " + w.Message
}

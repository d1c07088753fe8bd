// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package kernel

import (
	"net"
	"time"

	"github.com/sentryd/sentryd/internal/ledger"
	"github.com/sentryd/sentryd/internal/logging"
)

// DryRunBackend decorates a real Backend, logging every mutating call
// instead of issuing it and manufacturing a synthetic Applied result. Reads
// (Snapshot) pass through untouched, so --dry-run still reports whatever
// the kernel already enforces. This lets the same binary validate a config
// deployment without changing kernel state.
type DryRunBackend struct {
	inner Backend
	log   *logging.Logger
}

// NewDryRunBackend wraps inner for dry-run operation.
func NewDryRunBackend(inner Backend) *DryRunBackend {
	return &DryRunBackend{inner: inner, log: logging.WithComponent("kernel.dryrun")}
}

func (b *DryRunBackend) Block(ip net.IP, ttl time.Duration) Result {
	expires := time.Now().Add(ttl)
	b.log.Info("dry-run: would block", "ip", ip.String(), "ttl", ttl.String())
	return Result{Kind: Applied, ExpiresAt: expires}
}

func (b *DryRunBackend) RefreshStatic(neverV4, neverV6, alwaysV4, alwaysV6 []string) error {
	b.log.Info("dry-run: would refresh static sets",
		"never_v4", len(neverV4), "never_v6", len(neverV6),
		"always_v4", len(alwaysV4), "always_v6", len(alwaysV6))
	return nil
}

func (b *DryRunBackend) Snapshot() ([]ledger.EnforcedEntry, error) {
	return b.inner.Snapshot()
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package kernel abstracts the Linux kernel packet filter (nftables) sets
// sentryd enforces against. On Linux it wraps real netlink/nftables calls;
// elsewhere a stub satisfies the interface so the rest of the core still
// builds and tests cleanly.
package kernel

import (
	"fmt"
	"net"
	"time"

	"github.com/sentryd/sentryd/internal/ledger"
)

// Backend is the wire contract the core depends on. sentryd never creates
// or destroys tables or chains; the two dynamic and four static named sets
// must already exist.
type Backend interface {
	// Block inserts ip with the given TTL into the dynamic set matching
	// ip's address family.
	Block(ip net.IP, ttl time.Duration) Result

	// RefreshStatic flushes and repopulates the four static sets exactly.
	RefreshStatic(neverV4, neverV6, alwaysV4, alwaysV6 []string) error

	// Snapshot returns the dynamic sets' current contents with residual
	// TTLs converted to absolute expiry times.
	Snapshot() ([]ledger.EnforcedEntry, error)
}

// ResultKind discriminates the Result sum type.
type ResultKind int

const (
	Applied ResultKind = iota
	Rejected
)

// Result is the outcome of a Block call: either Applied (with the entry's
// expiry) or Rejected (with a reason and the backend's raw return code).
type Result struct {
	Kind      ResultKind
	ExpiresAt time.Time // valid when Kind == Applied
	Reason    string    // valid when Kind == Rejected
	RC        int       // backend-specific return code, for diagnostics
}

func (r Result) String() string {
	if r.Kind == Applied {
		return fmt.Sprintf("applied(expires_at=%s)", r.ExpiresAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("rejected(reason=%s, rc=%d)", r.Reason, r.RC)
}

// familyOf reports "v4" or "v6" for ip, or "" if ip is unparsable.
func familyOf(ip net.IP) string {
	if ip == nil {
		return ""
	}
	if ip.To4() != nil {
		return "v4"
	}
	return "v6"
}

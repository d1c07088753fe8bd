// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cidr classifies candidate IP addresses against the configured
// never-block and always-block CIDR sets using longest-prefix matching.
package cidr

import (
	"net"
	"sort"
)

// Verdict is the outcome of classifying one candidate IP.
type Verdict int

const (
	// Candidate means the IP is eligible for enforcement.
	Candidate Verdict = iota
	// NeverBlock means the IP (or a covering prefix) is in the never-block
	// set and must not reach the firewall backend under any circumstance,
	// including IPs arriving through the Inbox from a peer host.
	NeverBlock
	// AlreadyEnforced means the ledger already holds an active block for
	// this IP; no further action is needed this tick.
	AlreadyEnforced
)

func (v Verdict) String() string {
	switch v {
	case NeverBlock:
		return "never-block"
	case AlreadyEnforced:
		return "already-enforced"
	default:
		return "candidate"
	}
}

// Set holds parsed never-block and always-block networks for one address
// family grouping (the caller keeps separate Sets for v4 and v6, or relies
// on net.IPNet to discriminate; Classify handles both transparently).
type Set struct {
	never  []*net.IPNet
	always []*net.IPNet
}

// LedgerLookup reports whether ip currently has an active enforced block.
// internal/ledger.Ledger satisfies this.
type LedgerLookup interface {
	IsEnforced(ip net.IP) bool
}

// NewSet parses never/always CIDR or bare-address strings. A bare address
// "1.2.3.4" is treated as a /32 (or /128 for IPv6). Unparsable entries are
// skipped silently; config load does not check them either.
func NewSet(never, always []string) *Set {
	return &Set{
		never:  parseAll(never),
		always: parseAll(always),
	}
}

func parseAll(raw []string) []*net.IPNet {
	var out []*net.IPNet
	for _, s := range raw {
		if _, ipnet, err := net.ParseCIDR(s); err == nil {
			out = append(out, ipnet)
			continue
		}
		if ip := net.ParseIP(s); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	// Longest prefix first so the first match found is the most specific.
	sort.Slice(out, func(i, j int) bool {
		si, _ := out[i].Mask.Size()
		sj, _ := out[j].Mask.Size()
		return si > sj
	})
	return out
}

// contains reports whether any network in nets covers ip.
func contains(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// InAlways reports whether ip matches the always-block set.
func (s *Set) InAlways(ip net.IP) bool {
	return contains(s.always, ip)
}

// InNever reports whether ip matches the never-block set.
func (s *Set) InNever(ip net.IP) bool {
	return contains(s.never, ip)
}

// Classify applies the precedence order never-block > already-enforced >
// candidate. always-block is surfaced via InAlways and handled by the
// caller as an immediate-candidate shortcut (it still must pass never-block
// first, since never-block always wins per invariant F-1).
func Classify(raw string, s *Set, ledger LedgerLookup) Verdict {
	ip := net.ParseIP(raw)
	if ip == nil {
		return NeverBlock // unparsable input is never actionable
	}
	if s.InNever(ip) {
		return NeverBlock
	}
	if ledger != nil && ledger.IsEnforced(ip) {
		return AlreadyEnforced
	}
	return Candidate
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package kernel

import (
	"net"
	"sync"
	"time"

	"github.com/sentryd/sentryd/internal/ledger"
)

// StubBackend is an in-memory Backend used on non-Linux platforms (and in
// tests) where netlink is unavailable. It never touches real kernel state
// but otherwise honors the Backend contract faithfully, including
// idempotent overlapping Block calls.
type StubBackend struct {
	mu      sync.Mutex
	dynamic map[string]time.Time
	never   []string
	always  []string
}

// NewStubBackend returns an empty in-memory backend.
func NewStubBackend() *StubBackend {
	return &StubBackend{dynamic: make(map[string]time.Time)}
}

func (b *StubBackend) Block(ip net.IP, ttl time.Duration) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	expires := time.Now().Add(ttl)
	b.dynamic[ip.String()] = expires
	return Result{Kind: Applied, ExpiresAt: expires}
}

func (b *StubBackend) RefreshStatic(neverV4, neverV6, alwaysV4, alwaysV6 []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.never = append(append([]string{}, neverV4...), neverV6...)
	b.always = append(append([]string{}, alwaysV4...), alwaysV6...)
	return nil
}

func (b *StubBackend) Snapshot() ([]ledger.EnforcedEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ledger.EnforcedEntry, 0, len(b.dynamic))
	for ipStr, exp := range b.dynamic {
		out = append(out, ledger.EnforcedEntry{IP: net.ParseIP(ipStr), ExpiresAt: exp})
	}
	return out, nil
}

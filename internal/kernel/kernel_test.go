// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package kernel

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sentryd/sentryd/internal/ledger"
)

// fakeBackend is a minimal in-memory Backend used only by this package's own
// tests, independent of platform build tags.
type fakeBackend struct {
	snapshot []ledger.EnforcedEntry
	refreshed bool
	blocked   bool
}

func (f *fakeBackend) Block(ip net.IP, ttl time.Duration) Result {
	f.blocked = true
	return Result{Kind: Applied, ExpiresAt: time.Now().Add(ttl)}
}

func (f *fakeBackend) RefreshStatic(neverV4, neverV6, alwaysV4, alwaysV6 []string) error {
	f.refreshed = true
	return nil
}

func (f *fakeBackend) Snapshot() ([]ledger.EnforcedEntry, error) {
	return f.snapshot, nil
}

func TestIsBenignOverlap(t *testing.T) {
	assert.True(t, isBenignOverlap(errors.New("file exists")))
	assert.True(t, isBenignOverlap(errors.New("interval overlaps with an existing one")))
	assert.False(t, isBenignOverlap(errors.New("operation not permitted")))
	assert.False(t, isBenignOverlap(nil))
}

func TestDryRunBackend_BlockNeverTouchesInner(t *testing.T) {
	inner := &fakeBackend{}
	dr := NewDryRunBackend(inner)

	res := dr.Block(net.ParseIP("203.0.113.9"), time.Minute)
	assert.Equal(t, Applied, res.Kind)
	assert.False(t, inner.blocked, "dry-run must not forward Block to the inner backend")
	assert.False(t, inner.refreshed)
}

func TestDryRunBackend_RefreshStaticIsNoop(t *testing.T) {
	inner := &fakeBackend{}
	dr := NewDryRunBackend(inner)

	err := dr.RefreshStatic([]string{"10.0.0.0/8"}, nil, nil, nil)
	assert.NoError(t, err)
	assert.False(t, inner.refreshed, "dry-run must not forward RefreshStatic to the inner backend")
}

func TestDryRunBackend_SnapshotPassesThrough(t *testing.T) {
	want := []ledger.EnforcedEntry{{IP: net.ParseIP("198.51.100.1"), ExpiresAt: time.Now()}}
	inner := &fakeBackend{snapshot: want}
	dr := NewDryRunBackend(inner)

	got, err := dr.Snapshot()
	assert.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResult_String(t *testing.T) {
	applied := Result{Kind: Applied, ExpiresAt: time.Now()}
	assert.Contains(t, applied.String(), "applied")

	rejected := Result{Kind: Rejected, Reason: "bad", RC: 2}
	assert.Contains(t, rejected.String(), "rejected")
}

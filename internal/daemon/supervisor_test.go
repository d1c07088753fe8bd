// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package daemon

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryd/sentryd/internal/cidr"
	"github.com/sentryd/sentryd/internal/config"
	"github.com/sentryd/sentryd/internal/kernel"
	"github.com/sentryd/sentryd/internal/ledger"
	"github.com/sentryd/sentryd/internal/matcher"
	"github.com/sentryd/sentryd/internal/store"
)

type fakeBackend struct {
	blocked map[string]time.Duration
}

func (f *fakeBackend) Block(ip net.IP, ttl time.Duration) kernel.Result {
	if f.blocked == nil {
		f.blocked = make(map[string]time.Duration)
	}
	f.blocked[ip.String()] = ttl
	return kernel.Result{Kind: kernel.Applied, ExpiresAt: time.Now().Add(ttl)}
}

func (f *fakeBackend) RefreshStatic(neverV4, neverV6, alwaysV4, alwaysV6 []string) error { return nil }

func (f *fakeBackend) Snapshot() ([]ledger.EnforcedEntry, error) { return nil, nil }

type fakeStore struct {
	pushed []store.BlockRecord
}

func (f *fakeStore) UpsertBatch(ctx context.Context, records []store.BlockRecord) error {
	f.pushed = append(f.pushed, records...)
	return nil
}

func (f *fakeStore) PullSince(ctx context.Context, thisHost string, since time.Time) ([]store.PullResult, error) {
	return nil, nil
}

func testSnapshot() *config.Snapshot {
	return &config.Snapshot{
		BlockDuration:   10 * time.Minute,
		SleepTime:       time.Second,
		Heartbeat:       time.Minute,
		GracefulTimeout: time.Second,
		Store:           config.StoreConfig{BatchSize: 10, BatchTimeout: time.Second},
		Hostname:        "node-a",
	}
}

func newTestSupervisor(backend kernel.Backend, blockStore store.BlockStore) *Supervisor {
	mgr := config.NewManagerWithSnapshot(testSnapshot(), "", "")
	return New(mgr, backend, blockStore)
}

// drainOutbox publishes whatever the Outbox has queued: Push only queues, so
// the records reach the store through Run's shutdown flush.
func drainOutbox(s *Supervisor) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.outbox.Run(ctx, time.Second)
}

func TestProcessCandidate_NeverBlockSkipsEverything(t *testing.T) {
	backend := &fakeBackend{}
	st := &fakeStore{}
	s := newTestSupervisor(backend, st)

	cidrSet := cidr.NewSet([]string{"10.0.0.0/8"}, nil)
	s.processCandidate("10.1.2.3", time.Minute, cidrSet, matcher.Hit{IP: "10.1.2.3"})

	assert.Empty(t, backend.blocked)
	assert.Empty(t, st.pushed)
}

func TestProcessCandidate_AppliesAndPublishes(t *testing.T) {
	backend := &fakeBackend{}
	st := &fakeStore{}
	s := newTestSupervisor(backend, st)

	cidrSet := cidr.NewSet(nil, nil)
	s.processCandidate("203.0.113.9", time.Minute, cidrSet, matcher.Hit{IP: "203.0.113.9", OriginHost: "node-a"})
	drainOutbox(s)

	assert.Contains(t, backend.blocked, "203.0.113.9")
	require.Len(t, st.pushed, 1)
	assert.Equal(t, "203.0.113.9", st.pushed[0].IP)
}

func TestProcessCandidate_AlreadyEnforcedSkipsPublish(t *testing.T) {
	backend := &fakeBackend{}
	st := &fakeStore{}
	s := newTestSupervisor(backend, st)

	cidrSet := cidr.NewSet(nil, nil)
	s.ledger.Put(net.ParseIP("203.0.113.9"), time.Now().Add(time.Hour))

	s.processCandidate("203.0.113.9", time.Minute, cidrSet, matcher.Hit{IP: "203.0.113.9"})

	assert.Empty(t, backend.blocked, "already-enforced candidates must not re-invoke the firewall backend")
	assert.Empty(t, st.pushed)
}

func TestApplyPeerBlock_NeverPublishesToOutbox(t *testing.T) {
	backend := &fakeBackend{}
	st := &fakeStore{}
	s := newTestSupervisor(backend, st)

	s.applyPeerBlock("198.51.100.77", time.Hour)

	assert.Contains(t, backend.blocked, "198.51.100.77")
	assert.Empty(t, st.pushed, "peer-origin blocks must never be republished through the outbox")
}

func TestApplyPeerBlock_NeverBlockStaysAuthoritative(t *testing.T) {
	mgr := config.NewManagerWithSnapshot(&config.Snapshot{
		BlockDuration: 10 * time.Minute,
		SleepTime:     time.Second,
		Heartbeat:     time.Minute,
		Store:         config.StoreConfig{BatchSize: 10, BatchTimeout: time.Second},
		Hostname:      "node-a",
		NeverBlockV4:  []string{"198.51.100.0/24"},
	}, "", "")

	backend := &fakeBackend{}
	s := New(mgr, backend, nil)

	s.applyPeerBlock("198.51.100.77", time.Hour)

	assert.Empty(t, backend.blocked, "a peer-origin block inside the local never-block set must not be enforced")
}

func TestEnqueuePluginIP_ReentersPipeline(t *testing.T) {
	backend := &fakeBackend{}
	st := &fakeStore{}
	s := newTestSupervisor(backend, st)

	s.enqueuePluginIP("203.0.113.50", "plugin:spamhaus", "https://example.invalid/list")
	drainOutbox(s)

	assert.Contains(t, backend.blocked, "203.0.113.50")
	require.Len(t, st.pushed, 1)
	assert.Equal(t, "plugin:spamhaus", st.pushed[0].Service)
}

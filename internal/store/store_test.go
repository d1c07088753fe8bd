// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	upserts  [][]BlockRecord
	failN    int
	pullWith []PullResult
	pullErr  error
}

func (f *fakeStore) UpsertBatch(ctx context.Context, records []BlockRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return assertErr
	}
	cp := append([]BlockRecord{}, records...)
	f.upserts = append(f.upserts, cp)
	return nil
}

func (f *fakeStore) PullSince(ctx context.Context, thisHost string, since time.Time) ([]PullResult, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.pullWith, nil
}

var assertErr = &transientErr{"simulated transient failure"}

type transientErr struct{ msg string }

func (e *transientErr) Error() string { return e.msg }

func TestOutbox_FlushesOnBatchSize(t *testing.T) {
	fs := &fakeStore{}
	ob := NewOutbox(fs, 2, time.Hour)

	ob.Push(BlockRecord{IP: "1.1.1.1"})
	ob.Push(BlockRecord{IP: "2.2.2.2"})

	batch := ob.take(ob.batchSize)
	require.Len(t, batch, 2)
	assert.Equal(t, 0, ob.Len())
}

func TestOutbox_RequeueOnFailure(t *testing.T) {
	fs := &fakeStore{failN: 1}
	ob := NewOutbox(fs, 5, time.Hour)
	ob.Push(BlockRecord{IP: "1.1.1.1"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ob.flushOnce(ctx)

	assert.Equal(t, 1, ob.Len(), "a failed batch must be requeued, not dropped")
}

func TestOutbox_DrainOnShutdownWarnsAndDrops(t *testing.T) {
	fs := &fakeStore{failN: 1000}
	ob := NewOutbox(fs, 5, time.Hour)
	ob.Push(BlockRecord{IP: "1.1.1.1"})

	ob.drainOnShutdown(20 * time.Millisecond)

	assert.Equal(t, 0, ob.Len(), "records that can't flush within graceful_timeout are dropped, not retried forever")
}

func TestOutbox_DrainReturnsDroppedKeys(t *testing.T) {
	fs := &fakeStore{}
	ob := NewOutbox(fs, 5, time.Hour)
	ob.Push(BlockRecord{IP: "1.1.1.1", OriginHost: "node-a"})
	ob.Push(BlockRecord{IP: "2.2.2.2", OriginHost: "node-a"})
	ob.Push(BlockRecord{IP: "3.3.3.3", OriginHost: "node-b"})

	dropped := ob.drain()
	assert.ElementsMatch(t, []string{"1.1.1.1/node-a", "2.2.2.2/node-a", "3.3.3.3/node-b"}, dropped)
	assert.Equal(t, 0, ob.Len())
}

func TestInbox_CatchUpWindowOnStartup(t *testing.T) {
	fs := &fakeStore{}
	before := time.Now()
	in := NewInbox(fs, "host-a", time.Minute, 10*time.Minute)

	assert.WithinDuration(t, before.Add(-10*time.Minute), in.lastCheck, time.Second)
}

func TestInbox_DiscardsExpiredEntries(t *testing.T) {
	fs := &fakeStore{pullWith: []PullResult{
		{IP: "198.51.100.1", ExpiresAt: time.Now().Add(-time.Minute)},
		{IP: "198.51.100.2", ExpiresAt: time.Now().Add(time.Minute)},
	}}
	in := NewInbox(fs, "host-a", time.Minute, 10*time.Minute)

	var applied []string
	in.pollOnce(context.Background(), func(ip string, ttl time.Duration) {
		applied = append(applied, ip)
	})

	assert.Equal(t, []string{"198.51.100.2"}, applied)
}

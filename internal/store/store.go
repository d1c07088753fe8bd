// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store provides the shared relational BlockStore that lets
// multiple sentryd nodes synchronize the blocks they've each enforced
// locally, plus the Outbox/Inbox tasks that drive it.
package store

import (
	"context"
	"time"
)

// BlockRecord is one row of the shared blocks table.
type BlockRecord struct {
	IP             string
	OriginHost     string
	Service        string
	Detector       string
	Pattern        string
	Sample         string
	FirstBlockedAt time.Time
	LastSeenAt     time.Time
	ExpiresAt      time.Time
	Count          int
}

// PullResult is one entry returned by PullSince: the minimum a peer host
// needs to know to re-enforce a block locally.
type PullResult struct {
	IP        string
	ExpiresAt time.Time
}

// BlockStore is the interface the core depends on for distributed sync.
// Concrete implementations talk to whatever shared relational database the
// deployment uses.
type BlockStore interface {
	// UpsertBatch writes records keyed by (ip, origin_host). On conflict it
	// updates last_seen_at, expires_at, and increments count.
	UpsertBatch(ctx context.Context, records []BlockRecord) error

	// PullSince returns blocks reported by hosts other than thisHost, seen
	// after since, and not yet expired.
	PullSince(ctx context.Context, thisHost string, since time.Time) ([]PullResult, error)
}

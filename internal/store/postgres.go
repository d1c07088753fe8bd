// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the reference BlockStore implementation, backed by a
// pgx connection pool. The schema is the logical `blocks` table described
// for the shared store: PK (ip, origin_host), indices on expires_at and
// last_seen_at.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore dials dsn and verifies connectivity before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// UpsertBatch writes one batch inside a single transaction so a failing
// batch never leaves a partial write behind.
func (s *PostgresStore) UpsertBatch(ctx context.Context, records []BlockRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO blocks (
				ip, origin_host, service, detector, pattern, sample,
				first_blocked_at, last_seen_at, expires_at, count
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
			ON CONFLICT (ip, origin_host) DO UPDATE SET
				last_seen_at = EXCLUDED.last_seen_at,
				expires_at = EXCLUDED.expires_at,
				count = blocks.count + 1
		`, r.IP, r.OriginHost, r.Service, r.Detector, r.Pattern, r.Sample,
			r.FirstBlockedAt, r.LastSeenAt, r.ExpiresAt)
		if err != nil {
			return fmt.Errorf("store: upsert %s/%s: %w", r.IP, r.OriginHost, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// PullSince fetches blocks reported by other hosts, not yet expired.
func (s *PostgresStore) PullSince(ctx context.Context, thisHost string, since time.Time) ([]PullResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ip, expires_at
		FROM blocks
		WHERE origin_host != $1 AND last_seen_at > $2 AND expires_at > now()
	`, thisHost, since)
	if err != nil {
		return nil, fmt.Errorf("store: pull since: %w", err)
	}
	defer rows.Close()

	var out []PullResult
	for rows.Next() {
		var r PullResult
		if err := rows.Scan(&r.IP, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("store: scan pull row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ledger

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsEnforced_ExpiredEntryIsFalse(t *testing.T) {
	l := New()
	ip := net.ParseIP("198.51.100.9")
	l.Put(ip, time.Now().Add(-time.Minute))

	assert.False(t, l.IsEnforced(ip))
}

func TestIsEnforced_ActiveEntry(t *testing.T) {
	l := New()
	ip := net.ParseIP("198.51.100.9")
	l.Put(ip, time.Now().Add(time.Minute))

	assert.True(t, l.IsEnforced(ip))
}

func TestSweepExpired(t *testing.T) {
	l := New()
	now := time.Now()
	l.Put(net.ParseIP("198.51.100.1"), now.Add(-time.Second))
	l.Put(net.ParseIP("198.51.100.2"), now.Add(time.Hour))

	n := l.SweepExpired(now)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, l.Len())
}

func TestReconcile_ReplacesWholesale(t *testing.T) {
	l := New()
	l.Put(net.ParseIP("198.51.100.1"), time.Now().Add(time.Hour))

	fresh := []EnforcedEntry{
		{IP: net.ParseIP("203.0.113.1"), ExpiresAt: time.Now().Add(time.Hour)},
	}
	l.Reconcile(fresh)

	assert.Equal(t, 1, l.Len())
	assert.False(t, l.IsEnforced(net.ParseIP("198.51.100.1")))
	assert.True(t, l.IsEnforced(net.ParseIP("203.0.113.1")))
}

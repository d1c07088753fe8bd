// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package plugin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryd/sentryd/internal/config"
)

func TestExtractEntries_SkipsCommentsAndBlanks(t *testing.T) {
	body := "# comment\n\n203.0.113.0/24\n198.51.100.9\n"
	got := extractEntries(body, false)
	assert.Equal(t, []string{"203.0.113.0/24", "198.51.100.9"}, got)
}

func TestExtractEntries_IPv6OnlyWhenEnabled(t *testing.T) {
	body := "2001:db8::1\n203.0.113.9\n"
	assert.Equal(t, []string{"203.0.113.9"}, extractEntries(body, false))
	assert.ElementsMatch(t, []string{"2001:db8::1", "203.0.113.9"}, extractEntries(body, true))
}

func TestHTTPPlugin_InactiveExitsImmediately(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := NewHTTPPlugin(config.Plugin{Name: "test", Active: false, URL: srv.URL, FetchInterval: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var enqueued []string
	p.Run(ctx, func(ip, source, detector string) { enqueued = append(enqueued, ip) })

	assert.False(t, called)
	assert.Empty(t, enqueued)
}

func TestHTTPPlugin_FetchesAndEnqueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.9\n"))
	}))
	defer srv.Close()

	p := NewHTTPPlugin(config.Plugin{
		Name: "test", Active: true, URL: srv.URL, FetchInterval: time.Hour,
		CacheDir: t.TempDir(),
	})

	var enqueued []string
	p.tick(context.Background(), func(ip, source, detector string) { enqueued = append(enqueued, ip) })

	require.Len(t, enqueued, 1)
	assert.Equal(t, "203.0.113.9", enqueued[0])
}

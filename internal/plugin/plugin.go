// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package plugin implements public reputation-feed plugins: long-lived
// tasks that periodically fetch a URL, extract address entries, and inject
// them into the core pipeline exactly like a locally-matched Hit.
package plugin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sentryd/sentryd/internal/config"
	"github.com/sentryd/sentryd/internal/logging"
)

// EnqueueFunc is called once per extracted entry. source is "plugin:<name>".
type EnqueueFunc func(ip, source, detector string)

// Plugin is the contract the supervisor drives each configured
// PublicBlocklistPlugin through.
type Plugin interface {
	Run(ctx context.Context, enqueue EnqueueFunc)
}

var (
	ipv4OrCIDR = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)(?:/\d{1,2})?$`)
	ipv6OrCIDR = regexp.MustCompile(`^[0-9A-Fa-f:]+:[0-9A-Fa-f:]*(?:/\d{1,3})?$`)
)

// cacheMeta is the small sidecar persisted next to a plugin's cached body,
// recording the conditional-GET headers for the next fetch.
type cacheMeta struct {
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// HTTPPlugin fetches cfg.URL on cfg.FetchInterval using conditional GET,
// caching the body and headers to disk so a transient fetch failure or a
// 304 Not Modified still has something to extract from.
type HTTPPlugin struct {
	cfg    config.Plugin
	client *http.Client
	log    *logging.Logger
}

// NewHTTPPlugin builds a plugin driven by cfg.
func NewHTTPPlugin(cfg config.Plugin) *HTTPPlugin {
	return &HTTPPlugin{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logging.WithComponent("plugin").WithComponent(cfg.Name),
	}
}

// Run fetches on an interval until ctx is canceled. A plugin marked
// inactive exits immediately without ever fetching.
func (p *HTTPPlugin) Run(ctx context.Context, enqueue EnqueueFunc) {
	if !p.cfg.Active {
		p.log.Info("plugin inactive, exiting")
		return
	}

	p.tick(ctx, enqueue)
	ticker := time.NewTicker(p.cfg.FetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, enqueue)
		}
	}
}

func (p *HTTPPlugin) tick(ctx context.Context, enqueue EnqueueFunc) {
	body, err := p.fetch(ctx)
	if err != nil {
		p.log.WithError(err).Warn("fetch failed, core pipeline unaffected")
		return
	}

	n := 0
	for _, entry := range extractEntries(body, p.cfg.IncludeIPv6) {
		enqueue(entry, "plugin:"+p.cfg.Name, p.cfg.URL)
		n++
	}
	p.log.Debug("plugin tick complete", "entries", n)
}

func (p *HTTPPlugin) cachePaths() (bodyPath, metaPath string) {
	dir := p.cfg.CacheDir
	if dir == "" {
		dir = os.TempDir()
	}
	base := filepath.Join(dir, "sentryd-plugin-"+p.cfg.Name)
	return base + ".body", base + ".meta.json"
}

func (p *HTTPPlugin) loadMeta(metaPath string) cacheMeta {
	var m cacheMeta
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return m
	}
	_ = json.Unmarshal(data, &m)
	return m
}

// fetch performs a conditional GET, returning the response body (new or
// cached) as a string. A cache fresher than FetchInterval is honored
// without a network round trip at all.
func (p *HTTPPlugin) fetch(ctx context.Context) (string, error) {
	bodyPath, metaPath := p.cachePaths()
	meta := p.loadMeta(metaPath)

	if !meta.FetchedAt.IsZero() && time.Since(meta.FetchedAt) < p.cfg.FetchInterval {
		if cached, err := os.ReadFile(bodyPath); err == nil {
			return string(cached), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return "", fmt.Errorf("plugin: build request: %w", err)
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fallbackToCache(bodyPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		cached, err := os.ReadFile(bodyPath)
		if err != nil {
			return "", fmt.Errorf("plugin: 304 but no cache present: %w", err)
		}
		p.touchMeta(metaPath, meta)
		return string(cached), nil
	}

	if resp.StatusCode != http.StatusOK {
		return p.fallbackToCache(bodyPath, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return p.fallbackToCache(bodyPath, err)
	}

	_ = os.MkdirAll(filepath.Dir(bodyPath), 0o755)
	_ = os.WriteFile(bodyPath, buf, 0o644)

	newMeta := cacheMeta{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now(),
	}
	if data, err := json.Marshal(newMeta); err == nil {
		_ = os.WriteFile(metaPath, data, 0o644)
	}

	return string(buf), nil
}

func (p *HTTPPlugin) touchMeta(metaPath string, meta cacheMeta) {
	meta.FetchedAt = time.Now()
	if data, err := json.Marshal(meta); err == nil {
		_ = os.WriteFile(metaPath, data, 0o644)
	}
}

func (p *HTTPPlugin) fallbackToCache(bodyPath string, cause error) (string, error) {
	cached, err := os.ReadFile(bodyPath)
	if err != nil {
		return "", fmt.Errorf("plugin: fetch failed and no cache available: %w", cause)
	}
	return string(cached), nil
}

// extractEntries scans body line by line for bare IPv4/IPv6 addresses or
// CIDR blocks, skipping comments (#) and blank lines.
func extractEntries(body string, includeIPv6 bool) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		field := strings.Fields(line)[0]
		if ipv4OrCIDR.MatchString(field) {
			out = append(out, field)
			continue
		}
		if includeIPv6 && ipv6OrCIDR.MatchString(field) && looksLikeIPv6(field) {
			out = append(out, field)
		}
	}
	return out
}

func looksLikeIPv6(field string) bool {
	addr := field
	if idx := strings.Index(addr, "/"); idx >= 0 {
		addr = addr[:idx]
	}
	return net.ParseIP(addr) != nil
}

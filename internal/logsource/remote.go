// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logsource

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sentryd/sentryd/internal/discovery"
	"github.com/sentryd/sentryd/internal/logging"
)

// Fetcher pulls remote files into a local cache on a per-source schedule,
// falling back to whatever is already cached when a fetch fails.
type Fetcher struct {
	mu        sync.Mutex
	lastFetch map[string]time.Time
	log       *logging.Logger
}

// NewFetcher returns a Fetcher with an empty schedule.
func NewFetcher() *Fetcher {
	return &Fetcher{lastFetch: make(map[string]time.Time), log: logging.WithComponent("logsource.remote")}
}

// Ensure makes sure src's local cache copy is at most fetchInterval stale,
// attempting a fetch if due. It returns the local cache path to read from
// regardless of whether the fetch succeeded, since a stale cache still
// beats no data at all.
func (f *Fetcher) Ensure(ctx context.Context, src discovery.Source, fetchMethod, cacheDir string, fetchInterval time.Duration) (string, error) {
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("logsource: create cache dir: %w", err)
	}
	localPath := filepath.Join(cacheDir, cacheFileName(src))

	f.mu.Lock()
	due := time.Since(f.lastFetch[src.Key]) >= fetchInterval
	f.mu.Unlock()

	if !due {
		return localPath, nil
	}

	if err := f.fetch(ctx, src, fetchMethod, localPath); err != nil {
		f.log.WithError(err).Warn("remote fetch failed, using stale cache if present", "source", src.Key)
		if _, statErr := os.Stat(localPath); statErr != nil {
			return "", fmt.Errorf("logsource: no cache available for %s: %w", src.Key, err)
		}
		return localPath, nil
	}

	f.mu.Lock()
	f.lastFetch[src.Key] = time.Now()
	f.mu.Unlock()
	return localPath, nil
}

func cacheFileName(src discovery.Source) string {
	return fmt.Sprintf("%s_%s.cache", src.RemoteHost, filepath.Base(src.File))
}

func (f *Fetcher) fetch(ctx context.Context, src discovery.Source, method, localPath string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	remote := fmt.Sprintf("%s@%s:%s", src.RemoteUser, src.RemoteHost, src.File)

	var cmd *exec.Cmd
	switch method {
	case "", "scp":
		args := []string{"-P", portOrDefault(src.RemotePort), remote, localPath}
		cmd = exec.CommandContext(fetchCtx, "scp", args...)
	default:
		return fmt.Errorf("logsource: unsupported fetch_method %q", method)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("fetch %s: %w: %s", remote, err, string(out))
	}
	return nil
}

func portOrDefault(port int) string {
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%d", port)
}

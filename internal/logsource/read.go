// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logsource pulls recent lines from journald units and plain
// files, groups them into conversations, and drops anything that mentions
// no IP address before handing off to the pattern matcher.
package logsource

import (
	"context"
	"time"

	"github.com/sentryd/sentryd/internal/discovery"
	"github.com/sentryd/sentryd/internal/logging"
	"github.com/sentryd/sentryd/internal/matcher"
)

// Groups maps source_key -> conversation group, keeping the detector that
// source belongs to alongside its conv_key -> concatenated message map.
type Groups map[string]matcher.ConvGroup

// Reader pulls sources each tick and groups them into conversations.
type Reader struct {
	fetcher *Fetcher
	log     *logging.Logger
}

// NewReader returns a Reader with its own remote-fetch cache.
func NewReader() *Reader {
	return &Reader{fetcher: NewFetcher(), log: logging.WithComponent("logsource")}
}

// Read pulls every source, groups its lines into conversations, and drops
// any conversation with no IP literal. A source that fails to open is
// logged at warn and skipped; it never aborts the tick.
func (r *Reader) Read(ctx context.Context, sources []discovery.Source, lookback time.Duration, maxFileLines int, fetchMethod string, fetchInterval time.Duration, cacheDir string) Groups {
	result := make(Groups, len(sources))

	for _, src := range sources {
		groups, err := r.readOne(ctx, src, lookback, maxFileLines, fetchMethod, fetchInterval, cacheDir)
		if err != nil {
			r.log.WithError(err).Warn("source unreadable, skipping this tick", "source", src.Key)
			continue
		}
		filtered := make(map[string]string, len(groups))
		for convKey, msg := range groups {
			if matcher.HasIP(msg) {
				filtered[convKey] = msg
			}
		}
		if len(filtered) > 0 {
			result[src.Key] = matcher.ConvGroup{DetectorKey: src.DetectorKey, Messages: filtered}
		}
	}

	return result
}

func (r *Reader) readOne(ctx context.Context, src discovery.Source, lookback time.Duration, maxFileLines int, fetchMethod string, fetchInterval time.Duration, cacheDir string) (map[string]string, error) {
	switch {
	case src.IsRemote && src.Unit != "":
		// Best-effort remote journald: nothing to read locally without a
		// live remote session; the discoverer only confirms the unit is
		// worth asking about.
		return nil, nil
	case src.IsRemote:
		localPath, err := r.fetcher.Ensure(ctx, src, fetchMethod, cacheDir, fetchInterval)
		if err != nil {
			return nil, err
		}
		return readFileTail(localPath, maxFileLines)
	case src.Unit != "":
		return readJournalUnit(src.Unit, lookback)
	default:
		return readFileTail(src.File, maxFileLines)
	}
}

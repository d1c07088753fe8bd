// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logsource

import (
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"

	"github.com/sentryd/sentryd/internal/logging"
)

// readJournalUnit returns conv_key -> concatenated message for one unit,
// covering the lookback window. The 5th whitespace-separated token of a line
// (typically "process[pid]:" or similar) is used as a best-effort
// conversation key so multi-line exchanges from the same thread/PID get
// concatenated; the whole line, metadata tokens included, is kept as the
// message.
func readJournalUnit(unit string, lookback time.Duration) (map[string]string, error) {
	j, err := sdjournal.NewJournal()
	if err != nil {
		return nil, err
	}
	defer j.Close()

	if err := j.AddMatch(sdjournal.SD_JOURNAL_FIELD_SYSTEMD_UNIT + "=" + unit); err != nil {
		return nil, err
	}
	if err := j.SeekRealtimeUsec(uint64(time.Now().Add(-lookback).UnixMicro())); err != nil {
		return nil, err
	}

	groups := make(map[string]string)
	log := logging.WithComponent("logsource.journal")

	for {
		n, err := j.Next()
		if err != nil {
			return groups, err
		}
		if n == 0 {
			break
		}
		entry, err := j.GetEntry()
		if err != nil {
			log.WithError(err).Warn("journal entry unreadable, skipping", "unit", unit)
			continue
		}
		msg := entry.Fields["MESSAGE"]
		if msg == "" {
			continue
		}
		key, rest := splitConversationKey(msg)
		if existing, ok := groups[key]; ok {
			groups[key] = existing + "|" + rest
		} else {
			groups[key] = rest
		}
	}

	return groups, nil
}

// splitConversationKey splits a raw log line into (5th-token key, full
// message). If the line has fewer than five whitespace tokens, the whole
// line is used both as key and message.
func splitConversationKey(line string) (string, string) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return line, line
	}
	return fields[4], line
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"regexp"
	"time"
)

const (
	defaultBlockDuration   = 10 * time.Minute
	defaultSleepTime       = 30 * time.Second
	defaultHeartbeat       = 2 * time.Minute
	defaultInitialLookback = 1 * time.Hour
	defaultGracefulTimeout = 10 * time.Second
	defaultCleanupInterval = 5 * time.Minute

	defaultBatchSize    = 50
	defaultBatchTimeout = 5 * time.Second

	defaultMaxFileTailLines = 2000

	defaultDynamicSetV4 = "sentryd_block4"
	defaultDynamicSetV6 = "sentryd_block6"
	defaultNeverSetV4   = "sentryd_never4"
	defaultNeverSetV6   = "sentryd_never6"
	defaultAlwaysSetV4  = "sentryd_always4"
	defaultAlwaysSetV6  = "sentryd_always6"
	defaultTableName    = "sentryd"
	defaultTableFamily  = "inet"

	defaultMetricsListen = "127.0.0.1:9273"
)

// badConnPatternSources is the small baked-in set of authentication-failure
// regexes. Load always adds them to the global pattern union, ahead of every
// detector's own pattern<N> entries. Mirrors the shape of common
// sshd/authentication log lines.
var badConnPatternSources = []string{
	`[Ff]ailed password for .* from (\S+)`,
	`[Ii]nvalid user .* from (\S+)`,
	`authentication failure.*rhost=(\S+)`,
	`[Cc]onnection closed by authenticating user .* (\S+) port \d+ \[preauth\]`,
	`[Dd]isconnecting: Too many authentication failures.* \[(\S+)\]`,
}

func compileBadConnPatterns() ([]Pattern, []Warning) {
	var out []Pattern
	var warnings []Warning
	for _, src := range badConnPatternSources {
		re, err := regexp.Compile(src)
		if err != nil {
			warnings = append(warnings, Warning{Detector: "<built-in>", Message: "uncompilable bad_conn_pattern: " + src})
			continue
		}
		out = append(out, Pattern{Source: src, Compiled: re})
	}
	return out, warnings
}

// defaultSnapshot seeds every field Load does not find in the config files.
func defaultSnapshot() *Snapshot {
	return &Snapshot{
		BlockDuration:    defaultBlockDuration,
		SleepTime:        defaultSleepTime,
		Heartbeat:        defaultHeartbeat,
		InitialLookback:  defaultInitialLookback,
		GracefulTimeout:  defaultGracefulTimeout,
		CleanupInterval:  defaultCleanupInterval,
		NeverBlockV4:     nil,
		NeverBlockV6:     nil,
		AlwaysBlockV4:    nil,
		AlwaysBlockV6:    nil,
		Firewall: FirewallConfig{
			TableFamily:  defaultTableFamily,
			TableName:    defaultTableName,
			DynamicSetV4: defaultDynamicSetV4,
			DynamicSetV6: defaultDynamicSetV6,
			NeverSetV4:   defaultNeverSetV4,
			NeverSetV6:   defaultNeverSetV6,
			AlwaysSetV4:  defaultAlwaysSetV4,
			AlwaysSetV6:  defaultAlwaysSetV6,
		},
		Store: StoreConfig{
			BatchSize:    defaultBatchSize,
			BatchTimeout: defaultBatchTimeout,
		},
		AutoMode:         true,
		MaxFileTailLines: defaultMaxFileTailLines,
		MetricsListen:    defaultMetricsListen,
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import "fmt"

// Validate runs the hard rules that decide whether a Snapshot may be
// activated. Anything returned here is fatal: the caller must keep running
// the previously active Snapshot (or refuse to start, if there is none).
func Validate(snap *Snapshot) []error {
	var errs []error

	if snap.Firewall.DynamicSetV4 == "" && snap.Firewall.DynamicSetV6 == "" {
		errs = append(errs, fmt.Errorf("firewall: no dynamic set name configured for either address family"))
	}

	if len(snap.CompiledPatterns) == 0 {
		errs = append(errs, fmt.Errorf("no compiled detection patterns available (baked-in patterns failed and no detector supplied any)"))
	}

	if len(snap.Detectors) == 0 {
		errs = append(errs, fmt.Errorf("no detectors configured: nothing to watch"))
	}

	seen := make(map[string]bool)
	for _, d := range snap.Detectors {
		key := d.Key()
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate detector %q", key))
		}
		seen[key] = true
		if len(d.Units) == 0 && len(d.Files) == 0 && len(d.RemoteFiles) == 0 {
			errs = append(errs, fmt.Errorf("detector %q names no units, files, or remote_files", key))
		}
	}

	if snap.BlockDuration <= 0 {
		errs = append(errs, fmt.Errorf("block_duration must be positive"))
	}
	if snap.SleepTime <= 0 {
		errs = append(errs, fmt.Errorf("sleep_time must be positive"))
	}
	if snap.Store.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive"))
	}

	return errs
}

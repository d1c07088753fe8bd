// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package metrics

import (
	"github.com/google/nftables"
)

// SetStats holds element counts for the dynamic and static sets backing a
// kernel.Backend's table.
type SetStats struct {
	// Counts maps set name -> element count.
	Counts map[string]int
}

// collectSetStats gathers element counts for the named sets using native
// netlink, the same approach the kernel package uses to program them.
// tableFamily is one of "ip", "ip6", "inet", matching the kernel package's
// table_family config value.
func collectSetStats(tableFamily, tableName string, setNames []string) (*SetStats, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, err
	}

	stats := &SetStats{Counts: make(map[string]int)}
	table := &nftables.Table{Name: tableName, Family: parseFamily(tableFamily)}

	for _, name := range setNames {
		if name == "" {
			continue
		}
		set, err := conn.GetSetByName(table, name)
		if err != nil {
			// Set not programmed yet (e.g. no AlwaysBlock entries configured).
			stats.Counts[name] = 0
			continue
		}
		elements, err := conn.GetSetElements(set)
		if err != nil {
			stats.Counts[name] = 0
			continue
		}
		stats.Counts[name] = len(elements)
	}

	return stats, nil
}

func parseFamily(s string) nftables.TableFamily {
	switch s {
	case "ip":
		return nftables.TableFamilyIPv4
	case "ip6":
		return nftables.TableFamilyIPv6
	default:
		return nftables.TableFamilyINet
	}
}

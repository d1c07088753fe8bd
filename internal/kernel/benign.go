// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package kernel

import "strings"

// benignSubstrings lists netlink/nftables error substrings that mean "the
// element is already in the set" rather than a real failure. Matching is
// substring-based because the netlink layer wraps the underlying errno in
// varying amounts of context depending on kernel version.
var benignSubstrings = []string{
	"exist",          // ENOENT's counterpart for adds: "file exists"
	"already exists", //
	"interval overlaps",
}

// isBenignOverlap reports whether err represents an acceptable "already
// there" condition rather than a hard failure. Unknown errors are always
// treated as hard failures.
func isBenignOverlap(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range benignSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

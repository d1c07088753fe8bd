// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package matcher applies compiled detection patterns to grouped log
// conversations and extracts the IP literals they mention.
package matcher

import (
	"net"
	"regexp"
	"time"

	"github.com/sentryd/sentryd/internal/config"
)

// Hit is one candidate address observed in a conversation, ready to be
// classified by the CIDR filter.
type Hit struct {
	IP         string
	Detector   string
	Service    string
	Pattern    string
	Sample     string
	FirstSeen  time.Time
	LastSeen   time.Time
	OriginHost string
}

// DetectorLookup resolves a detector key (as carried on discovery.Source and
// ConvGroup.DetectorKey) back to its name/service. *detector.Registry
// satisfies this.
type DetectorLookup interface {
	Get(key string) (config.Detector, bool)
}

// ConvGroup is one source's conversations plus the detector key that source
// was discovered under, so a Hit can be attributed to the detector that
// actually watches it rather than to whichever pattern happened to match.
type ConvGroup struct {
	DetectorKey string
	Messages    map[string]string
}

var (
	ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`)

	// ipv6Pattern is intentionally permissive: it matches hex-group runs
	// joined by ':' with optional '::' compression, and lets net.ParseIP
	// in ExtractIPs reject anything that isn't actually valid.
	ipv6Pattern = regexp.MustCompile(`\b(?:[0-9A-Fa-f]{1,4}:){2,7}[0-9A-Fa-f]{0,4}(?::[0-9A-Fa-f]{1,4}){0,7}\b|\b::(?:[0-9A-Fa-f]{1,4}:){0,6}[0-9A-Fa-f]{1,4}\b`)

	// bracketed unwraps "[addr]:port" and "[addr]" forms.
	bracketed = regexp.MustCompile(`\[([0-9A-Fa-f:.]+)\](?::\d+)?`)
)

const maxSampleLen = 500

// ExtractIPs returns every distinct IPv4/IPv6 literal found in msg: the IPv4
// literals first, then the IPv6 ones, each in first-seen order. Bracketed
// "[addr]:port" forms are unwrapped before the plain regexes run.
func ExtractIPs(msg string) []string {
	unwrapped := bracketed.ReplaceAllString(msg, " $1 ")

	seen := make(map[string]bool)
	var out []string

	for _, m := range ipv4Pattern.FindAllString(unwrapped, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, m := range ipv6Pattern.FindAllString(unwrapped, -1) {
		if len(m) < 3 { // reject degenerate zero-length-ish matches
			continue
		}
		if net.ParseIP(m) == nil { // e.g. a "03:04:05" timestamp
			continue
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// HasIP reports whether msg mentions any IPv4 or IPv6 address. Used by the
// log reader to drop conversations with nothing to match against.
func HasIP(msg string) bool {
	return len(ExtractIPs(msg)) > 0
}

func truncateSample(msg string) string {
	if len(msg) <= maxSampleLen {
		return msg
	}
	return msg[:maxSampleLen]
}

// conversationKey identifies one (source_key, conv_key, ip) combination for
// within-tick dedup.
type conversationKey struct {
	sourceKey string
	convKey   string
	ip        string
}

// Match scans each conversation in groups against patterns, emitting at
// most one Hit per (source_key, conv_key, ip) for this tick. groups maps
// source_key -> ConvGroup. reg resolves each group's DetectorKey to the
// detector's name and service label; a group whose key isn't registered
// (the built-in bad-connection patterns) falls back to the key itself as
// Detector, with an empty Service.
func Match(groups map[string]ConvGroup, patterns []config.Pattern, reg DetectorLookup, originHost string, now time.Time) []Hit {
	seen := make(map[conversationKey]bool)
	var hits []Hit

	for sourceKey, group := range groups {
		detName, service := resolveDetector(reg, group.DetectorKey)
		for convKey, msg := range group.Messages {
			p, ok := firstMatch(msg, patterns)
			if !ok {
				continue
			}
			sample := truncateSample(msg)
			for _, ip := range ExtractIPs(msg) {
				key := conversationKey{sourceKey: sourceKey, convKey: convKey, ip: ip}
				if seen[key] {
					continue
				}
				seen[key] = true
				hits = append(hits, Hit{
					IP:         ip,
					Detector:   detName,
					Service:    service,
					Pattern:    p.Source,
					Sample:     sample,
					FirstSeen:  now,
					LastSeen:   now,
					OriginHost: originHost,
				})
			}
		}
	}
	return hits
}

// resolveDetector looks up key in reg, returning its Name/Service. If reg is
// nil or the key isn't registered, key itself is used as the detector name.
func resolveDetector(reg DetectorLookup, key string) (name, service string) {
	if reg == nil {
		return key, ""
	}
	d, ok := reg.Get(key)
	if !ok {
		return key, ""
	}
	return d.Name, d.Service
}

func firstMatch(msg string, patterns []config.Pattern) (config.Pattern, bool) {
	for _, p := range patterns {
		if p.Compiled != nil && p.Compiled.MatchString(msg) {
			return p, true
		}
	}
	return config.Pattern{}, false
}

// DedupByIP collapses hits to one per IP across the whole tick (used after
// per-detector matching, before the CIDR filter sees them).
func DedupByIP(hits []Hit) []Hit {
	seen := make(map[string]bool)
	var out []Hit
	for _, h := range hits {
		if seen[h.IP] {
			continue
		}
		seen[h.IP] = true
		out = append(out, h)
	}
	return out
}

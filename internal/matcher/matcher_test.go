// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package matcher

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryd/sentryd/internal/config"
)

func TestExtractIPs_PlainV4(t *testing.T) {
	got := ExtractIPs("Failed password for root from 203.0.113.9 port 1234 ssh2")
	require.Len(t, got, 1)
	assert.Equal(t, "203.0.113.9", got[0])
}

func TestExtractIPs_BracketedWithPort(t *testing.T) {
	got := ExtractIPs("peer [2001:db8::1]:443 reset connection")
	require.Len(t, got, 1)
	assert.Equal(t, "2001:db8::1", got[0])
}

func TestExtractIPs_DedupesWithinMessage(t *testing.T) {
	got := ExtractIPs("203.0.113.9 then again 203.0.113.9")
	assert.Len(t, got, 1)
}

func TestHasIP(t *testing.T) {
	assert.True(t, HasIP("connection from 203.0.113.9"))
	assert.False(t, HasIP("nothing interesting here"))
}

// stubRegistry is a minimal DetectorLookup standing in for *detector.Registry
// so matcher tests don't need to depend on the detector package.
type stubRegistry map[string]config.Detector

func (s stubRegistry) Get(key string) (config.Detector, bool) {
	d, ok := s[key]
	return d, ok
}

func TestMatch_FirstMatchPerConversation(t *testing.T) {
	patterns := []config.Pattern{
		{Source: `Failed password for .* from (\S+)`, Compiled: regexp.MustCompile(`Failed password for .* from (\S+)`)},
	}
	groups := map[string]ConvGroup{
		"sshd": {
			DetectorKey: "sshd",
			Messages: map[string]string{
				"conv1": "Failed password for root from 203.0.113.9 port 22",
			},
		},
	}
	reg := stubRegistry{"sshd": config.Detector{Name: "sshd", Service: "ssh"}}

	hits := Match(groups, patterns, reg, "node-a", time.Now())
	require.Len(t, hits, 1)
	assert.Equal(t, "203.0.113.9", hits[0].IP)
	assert.Equal(t, "node-a", hits[0].OriginHost)
	assert.Equal(t, "sshd", hits[0].Detector)
	assert.Equal(t, "ssh", hits[0].Service)
	assert.Equal(t, `Failed password for .* from (\S+)`, hits[0].Pattern)
}

func TestMatch_UnregisteredDetectorKeyFallsBackToKey(t *testing.T) {
	patterns := []config.Pattern{
		{Source: `Failed password`, Compiled: regexp.MustCompile(`Failed password`)},
	}
	groups := map[string]ConvGroup{
		"<built-in>": {
			DetectorKey: "<built-in>",
			Messages:    map[string]string{"conv1": "Failed password for root from 203.0.113.9"},
		},
	}

	hits := Match(groups, patterns, stubRegistry{}, "node-a", time.Now())
	require.Len(t, hits, 1)
	assert.Equal(t, "<built-in>", hits[0].Detector)
	assert.Equal(t, "", hits[0].Service)
}

func TestMatch_NoHitWhenNoPatternMatches(t *testing.T) {
	patterns := []config.Pattern{
		{Source: `Failed password`, Compiled: regexp.MustCompile(`Failed password`)},
	}
	groups := map[string]ConvGroup{
		"sshd": {
			DetectorKey: "sshd",
			Messages:    map[string]string{"conv1": "Accepted password for root from 203.0.113.9 port 22"},
		},
	}
	reg := stubRegistry{"sshd": config.Detector{Name: "sshd", Service: "ssh"}}

	hits := Match(groups, patterns, reg, "node-a", time.Now())
	assert.Empty(t, hits)
}

func TestMatch_DedupWithinTick(t *testing.T) {
	patterns := []config.Pattern{
		{Source: `Failed password`, Compiled: regexp.MustCompile(`Failed password`)},
	}
	groups := map[string]ConvGroup{
		"sshd": {
			DetectorKey: "sshd",
			Messages: map[string]string{
				"conv1": "Failed password for root from 198.51.100.4",
				"conv2": "Failed password for admin from 198.51.100.4",
			},
		},
	}
	reg := stubRegistry{"sshd": config.Detector{Name: "sshd", Service: "ssh"}}

	hits := Match(groups, patterns, reg, "node-a", time.Now())
	assert.Len(t, hits, 2, "distinct conversations each get a Hit even for the same IP")

	deduped := DedupByIP(hits)
	assert.Len(t, deduped, 1, "DedupByIP collapses to one entry per IP across the tick")
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cidr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct{ enforced map[string]bool }

func (f fakeLedger) IsEnforced(ip net.IP) bool { return f.enforced[ip.String()] }

func TestClassify_NeverBlockWins(t *testing.T) {
	s := NewSet([]string{"10.0.0.0/8"}, nil)
	ledger := fakeLedger{enforced: map[string]bool{"10.1.2.3": true}}

	got := Classify("10.1.2.3", s, ledger)
	assert.Equal(t, NeverBlock, got, "never-block must win even when the ledger also has it enforced")
}

func TestClassify_AlreadyEnforced(t *testing.T) {
	s := NewSet(nil, nil)
	ledger := fakeLedger{enforced: map[string]bool{"203.0.113.5": true}}

	got := Classify("203.0.113.5", s, ledger)
	assert.Equal(t, AlreadyEnforced, got)
}

func TestClassify_Candidate(t *testing.T) {
	s := NewSet([]string{"192.168.0.0/16"}, nil)
	ledger := fakeLedger{}

	got := Classify("203.0.113.5", s, ledger)
	assert.Equal(t, Candidate, got)
}

func TestClassify_UnparsableIsNeverBlock(t *testing.T) {
	s := NewSet(nil, nil)
	got := Classify("not-an-ip", s, fakeLedger{})
	assert.Equal(t, NeverBlock, got)
}

func TestNewSet_BareAddressBecomesHostRoute(t *testing.T) {
	s := NewSet([]string{"127.0.0.1"}, nil)
	require.Len(t, s.never, 1)
	assert.True(t, s.InNever(net.ParseIP("127.0.0.1")))
	assert.False(t, s.InNever(net.ParseIP("127.0.0.2")))
}

func TestNewSet_LongestPrefixSortedFirst(t *testing.T) {
	s := NewSet([]string{"10.0.0.0/8", "10.1.0.0/16"}, nil)
	require.Len(t, s.never, 2)
	firstSize, _ := s.never[0].Mask.Size()
	assert.Equal(t, 16, firstSize, "the more specific /16 should sort before the /8")
}

func TestInAlways(t *testing.T) {
	s := NewSet(nil, []string{"198.51.100.0/24"})
	assert.True(t, s.InAlways(net.ParseIP("198.51.100.7")))
	assert.False(t, s.InAlways(net.ParseIP("198.51.101.7")))
}

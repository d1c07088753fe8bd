// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package discovery

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldWatchUnit_Excluded(t *testing.T) {
	excluded := map[string]bool{"noisy.service": true}
	active := map[string]bool{"noisy.service": true}
	assert.False(t, shouldWatchUnit("noisy.service", excluded, active))
}

func TestShouldWatchUnit_ServiceMustBeActive(t *testing.T) {
	active := map[string]bool{}
	assert.False(t, shouldWatchUnit("sshd.service", nil, active))

	active["sshd.service"] = true
	assert.True(t, shouldWatchUnit("sshd.service", nil, active))
}

func TestShouldWatchUnit_NonServiceUnitAlwaysKept(t *testing.T) {
	assert.True(t, shouldWatchUnit("sshd", nil, map[string]bool{}))
}

func TestReadable(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "sentryd-discovery-*")
	assert.NoError(t, err)
	f.Close()

	assert.True(t, readable(f.Name()))
	assert.False(t, readable(f.Name()+"-does-not-exist"))
}

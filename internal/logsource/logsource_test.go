// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitConversationKey_FifthToken(t *testing.T) {
	key, rest := splitConversationKey("Jan 2 03:04:05 host sshd[1234]: Failed password for root from 203.0.113.9")
	assert.Equal(t, "sshd[1234]:", key)
	assert.Equal(t, "Jan 2 03:04:05 host sshd[1234]: Failed password for root from 203.0.113.9", rest)
}

func TestSplitConversationKey_ShortLineUsesWholeLine(t *testing.T) {
	key, rest := splitConversationKey("too short")
	assert.Equal(t, "too short", key)
	assert.Equal(t, "too short", rest)
}

func TestReadFileTail_KeepsMostRecentNLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.log")
	content := "line1\nline2\nline3\nline4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	groups, err := readFileTail(path, 2)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	assert.Equal(t, "line4", groups[path+":0"])
	assert.Equal(t, "line3", groups[path+":1"])
}

func TestReadFileTail_MissingFile(t *testing.T) {
	_, err := readFileTail("/nonexistent/path/to/nowhere.log", 10)
	assert.Error(t, err)
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logsource

import (
	"bufio"
	"fmt"
	"os"
)

// readFileTail reads up to maxLines from the end of path, one message per
// line, keyed "<path>:<reverse-ordinal>" where ordinal 0 is the most recent
// line. The file is opened once and scanned forward; since sentryd expects
// log files rather than arbitrary-size blobs, buffering the whole tail
// window in memory is acceptable.
func readFileTail(path string, maxLines int) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > maxLines {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	groups := make(map[string]string, len(lines))
	n := len(lines)
	for i, line := range lines {
		ordinal := n - 1 - i // 0 == most recent
		key := fmt.Sprintf("%s:%d", path, ordinal)
		groups[key] = line
	}
	return groups, nil
}

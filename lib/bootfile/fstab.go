// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bootfile

import (
	"fmt"
	"strings"
)

// RewriteFstabRoot replaces the device specifier of the root ("/")
// entry with newSpec, leaving every other line — comments, blanks,
// other mounts, column spacing — byte-identical. The active fstab is
// used as the template for the new partition's fstab, so it already
// enumerates every desired mount.
func RewriteFstabRoot(content []byte, newSpec string) ([]byte, error) {
	lines := strings.Split(string(content), "\n")
	rewritten := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != "/" {
			continue
		}
		// Swap only the first column, keeping the original spacing
		// after it.
		start := strings.Index(line, fields[0])
		lines[i] = line[:start] + newSpec + line[start+len(fields[0]):]
		rewritten = true
		break
	}
	if !rewritten {
		return nil, fmt.Errorf("fstab has no root entry to rewrite")
	}
	return []byte(strings.Join(lines, "\n")), nil
}

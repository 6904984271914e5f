// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blockdev

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Mount is one entry of the kernel mount table.
type Mount struct {
	Device     string
	Path       string
	Filesystem string
	Options    string
}

// HasOption reports whether the mount carries the given option in its
// comma-separated option list.
func (m Mount) HasOption(option string) bool {
	for _, candidate := range strings.Split(m.Options, ",") {
		if candidate == option {
			return true
		}
	}
	return false
}

// Mounts reads the kernel mount table from <host root>/proc/mounts.
func (p *Prober) Mounts() ([]Mount, error) {
	path := filepath.Join(p.HostRoot, "proc", "mounts")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	defer file.Close()

	var mounts []Mount
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mounts = append(mounts, Mount{
			Device:     fields[0],
			Path:       fields[1],
			Filesystem: fields[2],
			Options:    fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return mounts, nil
}

// FindMount returns the first mount entry for device, if any.
func (p *Prober) FindMount(device string) (Mount, bool, error) {
	mounts, err := p.Mounts()
	if err != nil {
		return Mount{}, false, err
	}
	for _, mount := range mounts {
		if mount.Device == device {
			return mount, true, nil
		}
	}
	return Mount{}, false, nil
}

// PartitionSize returns a partition's size in bytes, read from the
// kernel partition table at <host root>/proc/partitions (sizes there
// are in 1024-byte blocks). A partition the kernel does not know
// about is a NotFoundError: the configured index points at nothing,
// which no retry will fix.
func (p *Prober) PartitionSize(device string) (int64, error) {
	path := filepath.Join(p.HostRoot, "proc", "partitions")
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reading partition table: %w", err)
	}
	defer file.Close()

	name := filepath.Base(device)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// Layout: major minor #blocks name
		fields := strings.Fields(scanner.Text())
		if len(fields) != 4 || fields[3] != name {
			continue
		}
		blocks, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing block count for %s: %w", name, err)
		}
		return blocks * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return 0, &NotFoundError{What: fmt.Sprintf("partition %s in %s", name, path)}
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return lines
}

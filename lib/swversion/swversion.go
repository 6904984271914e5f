// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package swversion tracks which OS version a partition carries. A
// single marker file on the active partition holds the version
// string; the update gate compares it against the requested version
// with a loose dotted-numeric ordering. Unparseable versions never
// block an update — when in doubt, update.
package swversion

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Compare orders two dotted-numeric version strings ("1.2.3").
// Returns -1, 0 or 1. Missing segments compare as zero, so "1.2" and
// "1.2.0" are equal. A non-numeric segment in either version is an
// error — callers treat that as "update required", not as a failure.
func Compare(a, b string) (int, error) {
	segmentsA, err := parseSegments(a)
	if err != nil {
		return 0, err
	}
	segmentsB, err := parseSegments(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < max(len(segmentsA), len(segmentsB)); i++ {
		valueA, valueB := 0, 0
		if i < len(segmentsA) {
			valueA = segmentsA[i]
		}
		if i < len(segmentsB) {
			valueB = segmentsB[i]
		}
		if valueA != valueB {
			if valueA < valueB {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, nil
}

func parseSegments(version string) ([]int, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, fmt.Errorf("empty version string")
	}
	parts := strings.Split(version, ".")
	segments := make([]int, len(parts))
	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("version %q: segment %q is not numeric", version, part)
		}
		segments[i] = value
	}
	return segments, nil
}

// Marker is the version marker file on the active partition.
type Marker struct {
	Path   string
	DryRun bool
	Logger *slog.Logger
}

// Read returns the stored version. An absent marker reads as "0" and
// is immediately created with that value so a marker always exists
// after a successful run; in dry-run mode the creation is skipped
// with a warning.
func (m *Marker) Read() (string, error) {
	data, err := os.ReadFile(m.Path)
	if os.IsNotExist(err) {
		if m.DryRun {
			m.Logger.Warn("version marker missing; dry-run skips creating it", "path", m.Path)
			return "0", nil
		}
		m.Logger.Info("version marker missing, creating", "path", m.Path)
		if err := m.Write("0"); err != nil {
			return "", err
		}
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading version marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Write stores version in the marker file. Dry-run mode logs and
// writes nothing.
func (m *Marker) Write(version string) error {
	if m.DryRun {
		m.Logger.Info("dry-run: skipping version marker write", "path", m.Path, "version", version)
		return nil
	}
	if err := os.WriteFile(m.Path, []byte(version+"\n"), 0644); err != nil {
		return fmt.Errorf("writing version marker: %w", err)
	}
	return nil
}

// NeedsUpdate decides whether newVersion should be installed. Force
// bypasses the marker entirely. A version that fails to parse on
// either side means update.
func (m *Marker) NeedsUpdate(newVersion string, force bool) (bool, error) {
	if force {
		m.Logger.Debug("update forced, skipping version check")
		return true, nil
	}
	current, err := m.Read()
	if err != nil {
		return false, err
	}
	comparison, err := Compare(current, newVersion)
	if err != nil {
		m.Logger.Warn("version not comparable, updating",
			"current", current, "new", newVersion, "error", err)
		return true, nil
	}
	return comparison < 0, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootfile parses and rewrites the three text files the
// updater touches on disk: the firmware boot configuration
// (config.txt), the kernel command line (cmdline.txt), and fstab.
// All three rewrites are surgical — untouched lines survive
// byte-identically, because these files are also edited by humans
// and by other tools.
package bootfile

import (
	"fmt"
	"os"
	"strings"
)

// BootConfig is an ordered key=value file in the firmware
// configuration format. Non key=value lines (comments, section
// headers, blanks) pass through unchanged. A key commented out with
// a '#' prefix is still recognized; writing it replaces the line and
// drops the prefix.
type BootConfig struct {
	lines           []configLine
	trailingNewline bool
}

type configLine struct {
	raw       string
	key       string
	commented bool
}

// ParseBootConfig parses config data. Any input is valid; lines that
// are not key=value are carried verbatim.
func ParseBootConfig(data []byte) *BootConfig {
	text := string(data)
	trailing := strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")

	config := &BootConfig{trailingNewline: trailing || text == ""}
	if text == "" {
		return config
	}
	for _, raw := range strings.Split(text, "\n") {
		key, commented := parseConfigKey(raw)
		config.lines = append(config.lines, configLine{raw: raw, key: key, commented: commented})
	}
	return config
}

// LoadBootConfig reads and parses the file at path. A missing file
// parses as an empty config.
func LoadBootConfig(path string) (*BootConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ParseBootConfig(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading boot config: %w", err)
	}
	return ParseBootConfig(data), nil
}

func parseConfigKey(raw string) (key string, commented bool) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "#") {
		commented = true
		body = strings.TrimSpace(strings.TrimPrefix(body, "#"))
	}
	candidate, _, found := strings.Cut(body, "=")
	candidate = strings.TrimSpace(candidate)
	if !found || candidate == "" || strings.ContainsAny(candidate, " \t") {
		return "", false
	}
	return candidate, commented
}

// Get returns the value for key. An uncommented occurrence wins over
// a commented one; among equals, the last occurrence wins, matching
// how the firmware reads the file.
func (c *BootConfig) Get(key string) (string, bool) {
	value, found := "", false
	foundUncommented := false
	for _, line := range c.lines {
		if line.key != key {
			continue
		}
		if line.commented && foundUncommented {
			continue
		}
		body := strings.TrimSpace(line.raw)
		body = strings.TrimSpace(strings.TrimPrefix(body, "#"))
		_, v, _ := strings.Cut(body, "=")
		value, found = strings.TrimSpace(v), true
		foundUncommented = !line.commented
	}
	return value, found
}

// Set writes key=value. An existing occurrence (commented or not) is
// replaced in place with the prefix dropped; otherwise the key is
// appended, preserving file order for everything already present.
func (c *BootConfig) Set(key, value string) {
	replacement := configLine{raw: key + "=" + value, key: key}
	target := -1
	for i, line := range c.lines {
		if line.key != key {
			continue
		}
		// Prefer replacing an uncommented occurrence; otherwise the
		// last commented one.
		if target == -1 || !line.commented || c.lines[target].commented {
			target = i
		}
	}
	if target >= 0 {
		c.lines[target] = replacement
		return
	}
	c.lines = append(c.lines, replacement)
	c.trailingNewline = true
}

// Bytes serializes the config. Lines the caller never wrote are
// byte-identical to the input.
func (c *BootConfig) Bytes() []byte {
	if len(c.lines) == 0 {
		return nil
	}
	raws := make([]string, len(c.lines))
	for i, line := range c.lines {
		raws[i] = line.raw
	}
	out := strings.Join(raws, "\n")
	if c.trailingNewline {
		out += "\n"
	}
	return []byte(out)
}

// Save writes the config to path.
func (c *BootConfig) Save(path string) error {
	if err := os.WriteFile(path, c.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing boot config: %w", err)
	}
	return nil
}

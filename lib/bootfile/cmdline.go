// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bootfile

import (
	"fmt"
	"os"
	"strings"
)

// Cmdline is the kernel command line: one line of space-separated
// tokens, each either a bare flag or key=value. Token order is
// preserved across edits.
type Cmdline struct {
	tokens []cmdlineToken
}

type cmdlineToken struct {
	key      string
	value    string
	hasValue bool
}

// ParseCmdline parses the first line of data.
func ParseCmdline(data []byte) *Cmdline {
	line, _, _ := strings.Cut(string(data), "\n")
	cmdline := &Cmdline{}
	for _, field := range strings.Fields(line) {
		key, value, hasValue := strings.Cut(field, "=")
		cmdline.tokens = append(cmdline.tokens, cmdlineToken{key: key, value: value, hasValue: hasValue})
	}
	return cmdline
}

// LoadCmdline reads and parses the file at path.
func LoadCmdline(path string) (*Cmdline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading kernel command line: %w", err)
	}
	return ParseCmdline(data), nil
}

// Get returns the value of the first token with the given key.
func (c *Cmdline) Get(key string) (string, bool) {
	for _, token := range c.tokens {
		if token.key == key {
			return token.value, token.hasValue
		}
	}
	return "", false
}

// Set replaces the first token with the given key, or appends one.
func (c *Cmdline) Set(key, value string) {
	for i, token := range c.tokens {
		if token.key == key {
			c.tokens[i] = cmdlineToken{key: key, value: value, hasValue: true}
			return
		}
	}
	c.tokens = append(c.tokens, cmdlineToken{key: key, value: value, hasValue: true})
}

// String serializes the command line without a trailing newline.
func (c *Cmdline) String() string {
	fields := make([]string, len(c.tokens))
	for i, token := range c.tokens {
		if token.hasValue {
			fields[i] = token.key + "=" + token.value
		} else {
			fields[i] = token.key
		}
	}
	return strings.Join(fields, " ")
}

// Save writes the command line to path, newline-terminated.
func (c *Cmdline) Save(path string) error {
	if err := os.WriteFile(path, []byte(c.String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing kernel command line: %w", err)
	}
	return nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostcmd provides typed access to the host utilities the
// updater depends on: findmnt, lsblk, blkid, e2fsck, resize2fs,
// mount, umount and reboot. Every invocation is a synchronous child
// process with captured output; a non-zero exit is surfaced as an
// error that includes the command's stderr.
//
// The Runner interface exists so that discovery and update logic can
// be tested against a scripted fake instead of a live block device.
package hostcmd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// System is the production Runner. It executes commands directly on
// the host, logging each invocation at debug level.
type System struct {
	Logger *slog.Logger
}

// NewSystem returns a Runner that executes real host commands.
func NewSystem(logger *slog.Logger) *System {
	return &System{Logger: logger}
}

// Run executes the command and returns its stdout. Stderr is captured
// separately and included in error messages on failure.
func (s *System) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if s.Logger != nil {
		s.Logger.Debug("exec", "command", name, "args", strings.Join(args, " "))
	}

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (stderr: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// FirstLine returns the first line of command output with surrounding
// whitespace trimmed. Discovery commands like findmnt and lsblk print
// a single value followed by a newline; this normalizes that shape.
func FirstLine(output string) string {
	line, _, _ := strings.Cut(output, "\n")
	return strings.TrimSpace(line)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/abswap/lib/blockdev"
	"github.com/bureau-foundation/abswap/lib/hostcmd"
)

// MountedPartition is a filesystem mount with guaranteed release: if
// this code created the mount, Close unmounts it and removes the
// temporary mount point, even when the stage using it failed halfway.
type MountedPartition struct {
	// Dir is where the filesystem is visible.
	Dir string

	device       string
	needsUnmount bool
	removeDir    bool
	runner       hostcmd.Runner
	logger       *slog.Logger
}

// MountTemp mounts device read-write on a fresh temporary directory.
func MountTemp(ctx context.Context, runner hostcmd.Runner, device string, logger *slog.Logger) (*MountedPartition, error) {
	dir, err := os.MkdirTemp("", "abswap-mount-")
	if err != nil {
		return nil, fmt.Errorf("creating mount point: %w", err)
	}
	if _, err := runner.Run(ctx, "mount", "-o", "rw", device, dir); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("mounting %s: %w", device, err)
	}
	logger.Debug("mounted", "device", device, "dir", dir)
	return &MountedPartition{
		Dir:          dir,
		device:       device,
		needsUnmount: true,
		removeDir:    true,
		runner:       runner,
		logger:       logger,
	}, nil
}

// ReuseOrMount returns the device's existing read-write mount when
// the host already has one, and otherwise creates a temporary mount.
// The boot partition is typically already mounted at /boot on a
// running system; reusing it avoids a second mount of a FAT
// filesystem.
func ReuseOrMount(ctx context.Context, runner hostcmd.Runner, prober *blockdev.Prober, device string, logger *slog.Logger) (*MountedPartition, error) {
	mount, found, err := prober.FindMount(device)
	if err != nil {
		return nil, err
	}
	if found && mount.HasOption("rw") {
		dir := filepath.Join(prober.HostRoot, mount.Path)
		logger.Debug("reusing existing mount", "device", device, "dir", dir)
		return &MountedPartition{Dir: dir, device: device, runner: runner, logger: logger}, nil
	}
	return MountTemp(ctx, runner, device, logger)
}

// Close releases whatever this mount holds. Safe to call exactly once
// via defer; a reused host mount releases nothing.
func (m *MountedPartition) Close(ctx context.Context) error {
	var firstErr error
	if m.needsUnmount {
		if _, err := m.runner.Run(ctx, "umount", m.Dir); err != nil {
			firstErr = fmt.Errorf("unmounting %s: %w", m.device, err)
		}
		m.needsUnmount = false
	}
	if m.removeDir {
		if err := os.Remove(m.Dir); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("removing mount point: %w", err)
		}
		m.removeDir = false
	}
	return firstErr
}

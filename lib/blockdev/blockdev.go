// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockdev resolves the block device topology the updater
// operates on: the device backing the root mount, its parent disk,
// the disk's partitions in on-disk order, and which of the two
// configured OS candidate partitions is currently inactive.
//
// Topology queries go through the host's findmnt/lsblk/blkid
// utilities; partition sizes and the mount table are read from the
// kernel's /proc views under a configurable host root so the updater
// works from inside a container with the host root bind-mounted.
package blockdev

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/abswap/lib/hostcmd"
)

// Disk is an immutable snapshot of a block device and its partitions.
// Partitions are in on-disk order and referenced 1-indexed by the
// configuration.
type Disk struct {
	Device     string
	Partitions []string
}

// PartitionAt returns the device path for a 1-based partition index.
func (d Disk) PartitionAt(index int) (string, error) {
	if index < 1 || index > len(d.Partitions) {
		return "", &ConfigError{Reason: fmt.Sprintf(
			"partition index %d out of range: %s has %d partitions",
			index, d.Device, len(d.Partitions))}
	}
	return d.Partitions[index-1], nil
}

// SelectCandidates maps the two configured OS partition indices onto
// the active/inactive roles. The currently mounted root must be one
// of the two candidates; anything else means the device is not
// partitioned the way the configuration claims.
func SelectCandidates(disk Disk, indexA, indexB int, activeRoot string) (active, inactive string, err error) {
	candidateA, err := disk.PartitionAt(indexA)
	if err != nil {
		return "", "", err
	}
	candidateB, err := disk.PartitionAt(indexB)
	if err != nil {
		return "", "", err
	}
	switch activeRoot {
	case candidateA:
		return candidateA, candidateB, nil
	case candidateB:
		return candidateB, candidateA, nil
	}
	return "", "", &ConfigError{Reason: fmt.Sprintf(
		"active root %s is not one of the configured OS partitions (%s, %s)",
		activeRoot, candidateA, candidateB)}
}

// Prober answers topology questions about the live system.
type Prober struct {
	Runner   hostcmd.Runner
	HostRoot string
	Logger   *slog.Logger
}

// ActiveRoot returns the device backing the current root mount.
func (p *Prober) ActiveRoot(ctx context.Context) (string, error) {
	out, err := p.Runner.Run(ctx, "findmnt", "--noheadings", "--output", "SOURCE", "/")
	if err != nil {
		return "", fmt.Errorf("resolving root device: %w", err)
	}
	device := hostcmd.FirstLine(out)
	if device == "" {
		return "", fmt.Errorf("findmnt reported no source device for /")
	}
	return device, nil
}

// ParentDisk returns the disk a partition belongs to.
func (p *Prober) ParentDisk(ctx context.Context, partition string) (string, error) {
	out, err := p.Runner.Run(ctx, "lsblk", "--nodeps", "--noheadings", "--output", "PKNAME", partition)
	if err != nil {
		return "", fmt.Errorf("resolving parent disk of %s: %w", partition, err)
	}
	name := hostcmd.FirstLine(out)
	if name == "" {
		return "", fmt.Errorf("lsblk reported no parent disk for %s", partition)
	}
	return "/dev/" + name, nil
}

// Disk enumerates a disk's partitions in on-disk order. lsblk lists
// the disk itself first, then its partitions.
func (p *Prober) Disk(ctx context.Context, device string) (Disk, error) {
	out, err := p.Runner.Run(ctx, "lsblk", "--list", "--noheadings", "--paths", "--output", "NAME", device)
	if err != nil {
		return Disk{}, fmt.Errorf("listing partitions of %s: %w", device, err)
	}
	disk := Disk{Device: device}
	for _, line := range splitLines(out) {
		if line == "" || line == device {
			continue
		}
		disk.Partitions = append(disk.Partitions, line)
	}
	if len(disk.Partitions) == 0 {
		return Disk{}, fmt.Errorf("no partitions found on %s", device)
	}
	if p.Logger != nil {
		p.Logger.Debug("enumerated disk", "device", device, "partitions", len(disk.Partitions))
	}
	return disk, nil
}

// PartUUID returns the stable partition identifier used in boot
// configuration and fstab entries instead of transient device names.
func (p *Prober) PartUUID(ctx context.Context, partition string) (string, error) {
	out, err := p.Runner.Run(ctx, "blkid", "--match-tag", "PARTUUID", "--output", "value", partition)
	if err != nil {
		return "", fmt.Errorf("resolving PARTUUID of %s: %w", partition, err)
	}
	id := hostcmd.FirstLine(out)
	if id == "" {
		return "", fmt.Errorf("blkid reported no PARTUUID for %s", partition)
	}
	return id, nil
}

// ConfigError reports a configuration that cannot match the device:
// out-of-range partition indices, or an active root that is not one
// of the configured candidates. Nothing has been written when this is
// raised.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// NotFoundError reports a partition or file that the kernel or a
// manifest promised but that does not exist. This signals a
// configuration problem, not a transient fault.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}

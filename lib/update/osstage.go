// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/abswap/lib/bootfile"
	"github.com/bureau-foundation/abswap/lib/checksum"
	"github.com/bureau-foundation/abswap/lib/config"
	"github.com/bureau-foundation/abswap/lib/hostcmd"
	"github.com/bureau-foundation/abswap/lib/pipeline"
)

// OSStage downloads the compressed OS image, writes it to the
// inactive partition, verifies the written bytes against the
// published digest, and finalizes the filesystem: consistency check,
// grow to partition size, and an fstab whose root entry references
// the partition by stable identifier.
type OSStage struct {
	Options config.Options
	Client  *http.Client
	Runner  hostcmd.Runner
	Logger  *slog.Logger
}

// Run executes the stage against the resolved target. Nothing here
// touches the active partition or the boot configuration.
func (s *OSStage) Run(ctx context.Context, target Target) error {
	expected, skipVerify, err := expectedDigest(ctx, s.Client,
		s.Options.ImageChecksumURL, s.Options.ImageURL,
		s.Options.ImageChecksumAlgorithm, s.Logger)
	if err != nil {
		return fmt.Errorf("resolving image checksum: %w", err)
	}

	written, err := s.writeImage(ctx, target)
	if err != nil {
		return err
	}

	if s.Options.DryRun {
		s.Logger.Info("dry-run: skipping image verification and filesystem finalization",
			"device", target.InactivePartition)
		return nil
	}

	if skipVerify {
		s.Logger.Warn("image verification skipped", "device", target.InactivePartition)
	} else {
		actual, err := checksum.HashPrefix(s.Options.ImageChecksumAlgorithm,
			target.InactivePartition, written)
		if err != nil {
			return fmt.Errorf("reading back written image: %w", err)
		}
		if actual != expected {
			return &VerificationError{
				Target:   target.InactivePartition,
				Expected: expected,
				Actual:   actual,
			}
		}
		s.Logger.Info("image verified",
			"device", target.InactivePartition,
			"algorithm", s.Options.ImageChecksumAlgorithm,
			"bytes", written)
	}

	if _, err := s.Runner.Run(ctx, "e2fsck", "-p", "-f", target.InactivePartition); err != nil {
		return fmt.Errorf("filesystem check: %w", err)
	}
	if _, err := s.Runner.Run(ctx, "resize2fs", target.InactivePartition); err != nil {
		return fmt.Errorf("growing filesystem: %w", err)
	}

	return s.rewriteFstab(ctx, target)
}

// writeImage streams fetch → gunzip → count → bounded device write
// and returns the number of decompressed bytes written. The byte
// count feeds verification: exactly this many bytes are read back
// from the device.
func (s *OSStage) writeImage(ctx context.Context, target Target) (int64, error) {
	var writer *pipeline.DeviceWriter
	if s.Options.DryRun {
		s.Logger.Info("dry-run: image write redirected to discard",
			"device", target.InactivePartition)
		writer = pipeline.NewDiscardWriter()
	} else {
		var err error
		writer, err = pipeline.NewDeviceWriter(target.InactivePartition, target.InactiveSize)
		if err != nil {
			return 0, err
		}
	}

	source := pipeline.NewHTTPSource(s.Client, s.Options.ImageURL, s.Logger)
	counter := &pipeline.Counter{}
	s.Logger.Info("writing OS image",
		"url", s.Options.ImageURL,
		"device", target.InactivePartition,
		"capacity", target.InactiveSize)

	err := pipeline.Run(ctx, source,
		pipeline.NewGunzipStage(),
		pipeline.NewCountStage(counter),
		writer)
	if err != nil {
		return 0, fmt.Errorf("writing OS image: %w", err)
	}
	s.Logger.Info("OS image written",
		"bytes", counter.Total(),
		"compressed_bytes", source.ContentLength())
	return counter.Total(), nil
}

// rewriteFstab mounts the freshly written partition and installs an
// fstab based on the active system's one, with the root entry
// repointed at the new partition's PARTUUID. The active fstab is the
// template because it already enumerates every desired mount.
func (s *OSStage) rewriteFstab(ctx context.Context, target Target) error {
	template, err := os.ReadFile(filepath.Join(s.Options.HostRoot, "etc", "fstab"))
	if err != nil {
		return fmt.Errorf("reading active fstab: %w", err)
	}
	rewritten, err := bootfile.RewriteFstabRoot(template, "PARTUUID="+target.InactivePartUUID)
	if err != nil {
		return err
	}

	mount, err := MountTemp(ctx, s.Runner, target.InactivePartition, s.Logger)
	if err != nil {
		return err
	}
	defer mount.Close(ctx)

	path := filepath.Join(mount.Dir, "etc", "fstab")
	if err := os.WriteFile(path, rewritten, 0644); err != nil {
		return fmt.Errorf("writing fstab to new partition: %w", err)
	}
	s.Logger.Info("fstab rewritten", "root", "PARTUUID="+target.InactivePartUUID)
	return nil
}

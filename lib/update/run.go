// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/abswap/lib/blockdev"
	"github.com/bureau-foundation/abswap/lib/bootfile"
	"github.com/bureau-foundation/abswap/lib/config"
	"github.com/bureau-foundation/abswap/lib/hostcmd"
	"github.com/bureau-foundation/abswap/lib/swversion"
)

// Target is the resolved device topology an update run operates on.
// It is computed once, before any stage starts, and shared read-only
// by both stages.
type Target struct {
	// ActivePartition backs the currently running system. Never
	// written to.
	ActivePartition string

	// InactivePartition receives the new OS image.
	InactivePartition string

	// InactiveSize is the inactive partition's capacity in bytes; the
	// image write is bounded by it.
	InactiveSize int64

	// InactivePartUUID identifies the inactive partition in the
	// staged kernel command line and fstab.
	InactivePartUUID string

	// BootPartition holds the firmware and the staged prefixes.
	BootPartition string
}

// Updater runs a complete update: version gate, topology resolution,
// the two concurrent stages, and the commit that flips the boot
// configuration to the staged candidate.
type Updater struct {
	Options config.Options
	Client  *http.Client
	Runner  hostcmd.Runner
	Prober  *blockdev.Prober
	Logger  *slog.Logger
}

// Run performs one update attempt. It returns nil both when the
// update was applied and when the version gate decided nothing needed
// doing.
func (u *Updater) Run(ctx context.Context) error {
	marker := &swversion.Marker{
		Path:   filepath.Join(u.Options.HostRoot, u.Options.MarkerPath),
		DryRun: u.Options.DryRun,
		Logger: u.Logger,
	}
	needed, err := marker.NeedsUpdate(u.Options.Version, u.Options.Force)
	if err != nil {
		return err
	}
	if !needed {
		u.Logger.Info("already up to date", "version", u.Options.Version)
		return nil
	}

	target, err := u.Resolve(ctx)
	if err != nil {
		return err
	}
	u.Logger.Info("update target resolved",
		"active", target.ActivePartition,
		"inactive", target.InactivePartition,
		"boot", target.BootPartition,
		"capacity", target.InactiveSize)

	osStage := &OSStage{
		Options: u.Options,
		Client:  u.Client,
		Runner:  u.Runner,
		Logger:  u.Logger.With("stage", "os"),
	}
	bootStage := &BootStage{
		Options: u.Options,
		Client:  u.Client,
		Runner:  u.Runner,
		Prober:  u.Prober,
		Logger:  u.Logger.With("stage", "boot"),
	}

	// The stages touch disjoint state (inactive partition vs. staged
	// prefix), so they run concurrently. Both are always joined: a
	// failed stage never leaves the other one mid-write.
	osDone := make(chan error, 1)
	go func() {
		osDone <- osStage.Run(ctx, target)
	}()
	staged, bootErr := bootStage.Run(ctx, target)
	osErr := <-osDone
	if err := errors.Join(osErr, bootErr); err != nil {
		return err
	}

	if u.Options.DryRun {
		u.Logger.Info("dry-run: skipping commit and reboot", "staged", staged)
		return nil
	}

	if err := u.commit(ctx, target, staged); err != nil {
		return err
	}
	if err := marker.Write(u.Options.Version); err != nil {
		return err
	}
	u.Logger.Info("update committed",
		"version", u.Options.Version,
		"prefix", staged,
		"partition", target.InactivePartition)

	if u.Options.Reboot {
		u.reboot(ctx)
	}
	return nil
}

// Resolve maps the configured partition indices onto the live device
// topology.
func (u *Updater) Resolve(ctx context.Context) (Target, error) {
	activeRoot, err := u.Prober.ActiveRoot(ctx)
	if err != nil {
		return Target{}, err
	}
	diskDevice, err := u.Prober.ParentDisk(ctx, activeRoot)
	if err != nil {
		return Target{}, err
	}
	disk, err := u.Prober.Disk(ctx, diskDevice)
	if err != nil {
		return Target{}, err
	}
	active, inactive, err := blockdev.SelectCandidates(disk,
		u.Options.OSPartitionA, u.Options.OSPartitionB, activeRoot)
	if err != nil {
		return Target{}, err
	}
	boot, err := disk.PartitionAt(u.Options.BootPartition)
	if err != nil {
		return Target{}, err
	}
	size, err := u.Prober.PartitionSize(inactive)
	if err != nil {
		return Target{}, err
	}
	partUUID, err := u.Prober.PartUUID(ctx, inactive)
	if err != nil {
		return Target{}, err
	}
	return Target{
		ActivePartition:   active,
		InactivePartition: inactive,
		InactiveSize:      size,
		InactivePartUUID:  partUUID,
		BootPartition:     boot,
	}, nil
}

// commit is the point of no return: it flips the boot configuration's
// os_prefix to the staged candidate. Everything before this line
// leaves the running system bootable; everything after it boots the
// new one.
func (u *Updater) commit(ctx context.Context, target Target, staged string) (err error) {
	mount, err := ReuseOrMount(ctx, u.Runner, u.Prober, target.BootPartition, u.Logger)
	if err != nil {
		return fmt.Errorf("mounting boot partition for commit: %w", err)
	}
	defer func() {
		if closeErr := mount.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	configPath := filepath.Join(mount.Dir, bootConfigName)
	bootConfig, err := bootfile.LoadBootConfig(configPath)
	if err != nil {
		return err
	}
	// A system updated for the first time still has its OS files in
	// the boot partition root. Preserve them as the fallback candidate
	// before switching to the prefix scheme; on already-prefixed
	// systems the root holds no OS files and this is a no-op.
	if err := u.preserveRootOSFiles(mount.Dir, staged); err != nil {
		return err
	}

	bootConfig.Set(osPrefixKey, staged+"/")
	if err := bootConfig.Save(configPath); err != nil {
		return fmt.Errorf("committing boot configuration: %w", err)
	}
	unix.Sync()
	return nil
}

// preserveRootOSFiles moves the OS files from the boot partition root
// into the prefix not being committed, so the previously running
// system stays selectable after the switch.
func (u *Updater) preserveRootOSFiles(bootDir, staged string) error {
	fallback := PrefixA
	if staged == PrefixA {
		fallback = PrefixB
	}
	entries, err := os.ReadDir(bootDir)
	if err != nil {
		return fmt.Errorf("reading boot partition: %w", err)
	}
	moved := 0
	for _, entry := range entries {
		name := entry.Name()
		if name == PrefixA || name == PrefixB || !isOSFile(name) {
			continue
		}
		fallbackDir := filepath.Join(bootDir, fallback)
		if err := os.MkdirAll(fallbackDir, 0755); err != nil {
			return fmt.Errorf("creating fallback prefix: %w", err)
		}
		if err := os.Rename(filepath.Join(bootDir, name), filepath.Join(fallbackDir, name)); err != nil {
			return fmt.Errorf("moving %s into fallback prefix: %w", name, err)
		}
		moved++
	}
	if moved > 0 {
		u.Logger.Info("boot partition root files preserved", "fallback", fallback, "files", moved)
	}
	return nil
}

// reboot flushes filesystem buffers and asks the host to restart. A
// failure here is only logged: the update is already committed and
// the operator can reboot by hand.
func (u *Updater) reboot(ctx context.Context) {
	u.Logger.Info("rebooting into new system")
	unix.Sync()
	if _, err := u.Runner.Run(ctx, "reboot"); err != nil {
		u.Logger.Warn("reboot command failed; reboot manually to activate the update", "error", err)
	}
}

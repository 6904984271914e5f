// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/abswap/lib/blockdev"
	"github.com/bureau-foundation/abswap/lib/bootfile"
	"github.com/bureau-foundation/abswap/lib/checksum"
	"github.com/bureau-foundation/abswap/lib/config"
	"github.com/bureau-foundation/abswap/lib/hostcmd"
	"github.com/bureau-foundation/abswap/lib/pipeline"
)

// The two staged prefix directories inside the boot partition. Each
// holds one OS candidate's complete boot file set; the boot
// configuration's os_prefix key names the active one.
const (
	PrefixA = "os_a"
	PrefixB = "os_b"

	bootConfigName = "config.txt"
	cmdlineName    = "cmdline.txt"

	// osPrefixKey is the firmware configuration key selecting which
	// staged prefix boots.
	osPrefixKey = "os_prefix"
)

// osFilePatterns matches the boot files that belong to one OS
// candidate: kernel and init images, the kernel command line, and
// device trees. Firmware files (start*.elf, fixup*.dat, config.txt)
// are shared between candidates and never move.
var osFilePatterns = []string{
	"kernel*.img",
	"initramfs*",
	"init_*",
	"cmdline.txt",
	"*.dtb",
	"overlays",
}

func isOSFile(name string) bool {
	for _, pattern := range osFilePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// BootStage assembles the inactive staged prefix on the boot
// partition: either by downloading and extracting a boot file
// archive, or by copying the active candidate's files. It finishes by
// pointing the staged kernel command line at the newly written OS
// partition. It never touches the active prefix or the boot
// configuration — that is commit's job.
type BootStage struct {
	Options config.Options
	Client  *http.Client
	Runner  hostcmd.Runner
	Prober  *blockdev.Prober
	Logger  *slog.Logger
}

// Run executes the stage and returns the name of the staged prefix
// for the orchestrator to commit.
func (s *BootStage) Run(ctx context.Context, target Target) (staged string, err error) {
	mount, err := ReuseOrMount(ctx, s.Runner, s.Prober, target.BootPartition, s.Logger)
	if err != nil {
		return "", fmt.Errorf("mounting boot partition: %w", err)
	}
	defer func() {
		if closeErr := mount.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	bootConfig, err := bootfile.LoadBootConfig(filepath.Join(mount.Dir, bootConfigName))
	if err != nil {
		return "", err
	}
	activePrefix := ""
	if value, found := bootConfig.Get(osPrefixKey); found {
		activePrefix = filepath.Clean(value)
	}
	staged = PrefixA
	if activePrefix == PrefixA {
		staged = PrefixB
	}

	stagedDir := filepath.Join(mount.Dir, staged)
	if s.Options.DryRun {
		// Destructive writes go to a scratch directory instead of
		// the real prefix, so the full pipeline still runs.
		scratch, err := os.MkdirTemp("", "abswap-staged-")
		if err != nil {
			return "", fmt.Errorf("creating dry-run staging directory: %w", err)
		}
		defer os.RemoveAll(scratch)
		s.Logger.Info("dry-run: boot staging redirected", "prefix", staged, "dir", scratch)
		stagedDir = scratch
	} else {
		if err := os.RemoveAll(stagedDir); err != nil {
			return "", fmt.Errorf("clearing staged prefix: %w", err)
		}
		if err := os.MkdirAll(stagedDir, 0755); err != nil {
			return "", fmt.Errorf("creating staged prefix: %w", err)
		}
	}

	if s.Options.BootURL != "" {
		if err := s.download(ctx, stagedDir); err != nil {
			// A half-written prefix must not survive: the commit
			// logic and future runs treat an existing prefix
			// directory as complete.
			os.RemoveAll(stagedDir)
			return "", err
		}
		if err := s.verify(ctx, stagedDir); err != nil {
			os.RemoveAll(stagedDir)
			return "", err
		}
	} else {
		if err := s.copyFromBootPartition(mount.Dir, activePrefix, stagedDir); err != nil {
			return "", err
		}
	}

	if err := s.rewriteCmdline(stagedDir, target.InactivePartUUID); err != nil {
		return "", err
	}
	s.Logger.Info("boot files staged", "prefix", staged)
	return staged, nil
}

// download streams fetch → gunzip → tar-extract into the staged
// prefix.
func (s *BootStage) download(ctx context.Context, stagedDir string) error {
	source := pipeline.NewHTTPSource(s.Client, s.Options.BootURL, s.Logger)
	s.Logger.Info("downloading boot files", "url", s.Options.BootURL, "dir", stagedDir)
	err := pipeline.Run(ctx, source,
		pipeline.NewGunzipStage(),
		pipeline.NewTarSink(ctx, stagedDir))
	if err != nil {
		return fmt.Errorf("extracting boot files: %w", err)
	}
	return nil
}

// verify checks every manifest entry against the staged files.
func (s *BootStage) verify(ctx context.Context, stagedDir string) error {
	entries, skip, err := expectedManifest(ctx, s.Client,
		s.Options.BootChecksumURL, s.Options.BootURL,
		s.Options.BootChecksumAlgorithm, s.Logger)
	if err != nil {
		return fmt.Errorf("resolving boot manifest: %w", err)
	}
	if skip {
		s.Logger.Warn("boot file verification skipped")
		return nil
	}
	for _, entry := range entries {
		path := filepath.Join(stagedDir, entry.Path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return &blockdev.NotFoundError{What: fmt.Sprintf("boot file %s listed in manifest", entry.Path)}
		}
		actual, err := checksum.HashFile(s.Options.BootChecksumAlgorithm, path)
		if err != nil {
			return err
		}
		if actual != entry.Digest {
			return &VerificationError{Target: entry.Path, Expected: entry.Digest, Actual: actual}
		}
	}
	s.Logger.Info("boot files verified", "files", len(entries))
	return nil
}

// copyFromBootPartition assembles the staged prefix without a
// download: from the active prefix when the boot configuration
// records one, otherwise from the recognized OS files in the shared
// boot partition root.
func (s *BootStage) copyFromBootPartition(bootDir, activePrefix, stagedDir string) error {
	if activePrefix != "" {
		activeDir := filepath.Join(bootDir, activePrefix)
		if info, err := os.Stat(activeDir); err == nil && info.IsDir() {
			s.Logger.Info("copying boot files from active prefix", "prefix", activePrefix)
			return copyTree(activeDir, stagedDir)
		}
	}
	s.Logger.Info("copying OS files from boot partition root")
	entries, err := os.ReadDir(bootDir)
	if err != nil {
		return fmt.Errorf("reading boot partition: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == PrefixA || name == PrefixB || !isOSFile(name) {
			continue
		}
		source := filepath.Join(bootDir, name)
		destination := filepath.Join(stagedDir, name)
		if entry.IsDir() {
			err = copyTree(source, destination)
		} else {
			err = copyFile(source, destination)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// rewriteCmdline points the staged kernel command line's root= at the
// new OS partition by stable identifier.
func (s *BootStage) rewriteCmdline(stagedDir, partUUID string) error {
	path := filepath.Join(stagedDir, cmdlineName)
	cmdline, err := bootfile.LoadCmdline(path)
	if err != nil {
		return fmt.Errorf("staged prefix has no kernel command line: %w", err)
	}
	cmdline.Set("root", "PARTUUID="+partUUID)
	if err := cmdline.Save(path); err != nil {
		return err
	}
	s.Logger.Info("kernel command line updated", "root", "PARTUUID="+partUUID)
	return nil
}

func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("copying %s: %w", source, err)
	}
	defer in.Close()

	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("copying to %s: %w", destination, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", source, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copying to %s: %w", destination, err)
	}
	return nil
}

func copyTree(sourceDir, destinationDir string) error {
	return filepath.WalkDir(sourceDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destinationDir, relative)
		if entry.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

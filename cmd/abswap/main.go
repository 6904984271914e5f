// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// abswap updates an A/B-partitioned system in place: it writes a new
// OS image to the inactive partition, stages the matching boot files,
// and flips the boot configuration only after both have been written
// and verified. The running system stays bootable until the final
// flip, so a failure at any earlier point is harmless.
//
// Usage:
//
//	abswap update [flags]
//	abswap status [flags]
//	abswap version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/abswap/lib/blockdev"
	"github.com/bureau-foundation/abswap/lib/bootfile"
	"github.com/bureau-foundation/abswap/lib/buildinfo"
	"github.com/bureau-foundation/abswap/lib/config"
	"github.com/bureau-foundation/abswap/lib/hostcmd"
	"github.com/bureau-foundation/abswap/lib/process"
	"github.com/bureau-foundation/abswap/lib/swversion"
	"github.com/bureau-foundation/abswap/lib/update"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "update":
		err = updateCmd(args)
	case "status":
		err = statusCmd(args)
	case "version", "--version", "-v":
		fmt.Printf("abswap %s\n", buildinfo.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		process.Fatal(err)
	}
}

func printUsage() {
	fmt.Print(`abswap - fail-safe in-place A/B system updater

USAGE
    abswap <command> [flags]

COMMANDS
    update    Download, verify and install an update, then commit it
    status    Show the partition layout and installed version
    version   Show build version

EXAMPLES
    # Install version 1.4.0 and reboot into it
    abswap update --image-url https://feed/os-1.4.0.img.gz --version 1.4.0 --reboot

    # Rehearse the same update without touching the device
    abswap update --image-url https://feed/os-1.4.0.img.gz --version 1.4.0 --dry-run

    # Drive everything from a config file, overriding the version
    abswap update --config /etc/abswap.yaml --version 1.4.0
`)
}

// loadOptions resolves the effective configuration: defaults, then
// the YAML file if --config is given, then command-line flags. The
// flag set is parsed twice so flags override file values regardless
// of where --config itself appears.
func loadOptions(name string, args []string, addFlags func(*pflag.FlagSet, *config.Options)) (config.Options, error) {
	configFlags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configFlags.ParseErrorsWhitelist.UnknownFlags = true
	configFlags.Usage = func() {}
	configPath := configFlags.String("config", "", "")
	if err := configFlags.Parse(args); err != nil && err != pflag.ErrHelp {
		return config.Options{}, err
	}

	options := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			return config.Options{}, err
		}
		options = loaded
	}

	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.String("config", "", "YAML configuration file")
	addFlags(flagSet, &options)
	if err := flagSet.Parse(args); err != nil {
		// pflag has already printed the problem and the usage text.
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	return options, nil
}

func addUpdateFlags(flagSet *pflag.FlagSet, options *config.Options) {
	flagSet.StringVar(&options.ImageURL, "image-url", options.ImageURL, "gzip-compressed OS partition image URL")
	flagSet.StringVar(&options.Version, "version", options.Version, "version the image claims to be")
	flagSet.StringVar(&options.BootURL, "boot-url", options.BootURL, "optional gzip-compressed tar of boot files")
	flagSet.StringVar(&options.ImageChecksumURL, "image-checksum-url", options.ImageChecksumURL, "override the derived image checksum URL")
	flagSet.StringVar(&options.ImageChecksumAlgorithm, "image-checksum-algorithm", options.ImageChecksumAlgorithm, "image digest algorithm (sha256, sha512, sha1, blake3)")
	flagSet.StringVar(&options.BootChecksumURL, "boot-checksum-url", options.BootChecksumURL, "override the derived boot manifest URL")
	flagSet.StringVar(&options.BootChecksumAlgorithm, "boot-checksum-algorithm", options.BootChecksumAlgorithm, "boot file digest algorithm")
	flagSet.BoolVar(&options.Reboot, "reboot", options.Reboot, "reboot after a successful commit")
	flagSet.BoolVar(&options.Force, "force", options.Force, "install regardless of the version marker")
	flagSet.BoolVar(&options.DryRun, "dry-run", options.DryRun, "rehearse without writing to the device")
	addSharedFlags(flagSet, options)
}

func addSharedFlags(flagSet *pflag.FlagSet, options *config.Options) {
	flagSet.StringVar(&options.HostRoot, "host-root", options.HostRoot, "host root prefix (for running inside a container)")
	flagSet.StringVar(&options.MarkerPath, "marker-path", options.MarkerPath, "version marker path relative to the host root")
	flagSet.IntVar(&options.BootPartition, "boot-partition", options.BootPartition, "1-based index of the boot partition")
	flagSet.IntVar(&options.OSPartitionA, "os-partition-a", options.OSPartitionA, "1-based index of the first OS partition")
	flagSet.IntVar(&options.OSPartitionB, "os-partition-b", options.OSPartitionB, "1-based index of the second OS partition")
	flagSet.CountVarP(&options.Verbosity, "verbose", "v", "raise log detail (repeatable)")
}

func newLogger(verbosity int) *slog.Logger {
	level := slog.LevelInfo
	if verbosity > 0 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func updateCmd(args []string) error {
	options, err := loadOptions("abswap update", args, addUpdateFlags)
	if err != nil {
		return err
	}
	if err := options.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(options.Verbosity)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &hostcmd.System{Logger: logger}
	updater := &update.Updater{
		Options: options,
		Client:  http.DefaultClient,
		Runner:  runner,
		Prober: &blockdev.Prober{
			Runner:   runner,
			HostRoot: options.HostRoot,
			Logger:   logger,
		},
		Logger: logger,
	}
	return updater.Run(ctx)
}

// statusCmd prints the resolved topology, the marker version, and the
// active boot prefix. It runs only read-only probes.
func statusCmd(args []string) error {
	options, err := loadOptions("abswap status", args, addSharedFlags)
	if err != nil {
		return err
	}

	logger := newLogger(options.Verbosity)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &hostcmd.System{Logger: logger}
	prober := &blockdev.Prober{Runner: runner, HostRoot: options.HostRoot, Logger: logger}
	updater := &update.Updater{
		Options: options,
		Runner:  runner,
		Prober:  prober,
		Logger:  logger,
	}
	target, err := updater.Resolve(ctx)
	if err != nil {
		return err
	}

	// DryRun keeps Read from creating a missing marker.
	marker := &swversion.Marker{
		Path:   filepath.Join(options.HostRoot, options.MarkerPath),
		DryRun: true,
		Logger: logger,
	}
	version, err := marker.Read()
	if err != nil {
		return err
	}

	fmt.Printf("version:   %s\n", version)
	fmt.Printf("active:    %s\n", target.ActivePartition)
	fmt.Printf("inactive:  %s (%d bytes, PARTUUID=%s)\n",
		target.InactivePartition, target.InactiveSize, target.InactivePartUUID)
	fmt.Printf("boot:      %s\n", target.BootPartition)

	if prefix, found, err := activeBootPrefix(prober, options.HostRoot, target.BootPartition); err == nil && found {
		fmt.Printf("prefix:    %s\n", prefix)
	}
	return nil
}

// activeBootPrefix reads os_prefix from the boot configuration via
// the host's existing mount. No mount is created for a status query.
func activeBootPrefix(prober *blockdev.Prober, hostRoot, bootPartition string) (string, bool, error) {
	mount, found, err := prober.FindMount(bootPartition)
	if err != nil || !found {
		return "", false, err
	}
	bootConfig, err := bootfile.LoadBootConfig(filepath.Join(hostRoot, mount.Path, "config.txt"))
	if err != nil {
		return "", false, err
	}
	prefix, found := bootConfig.Get("os_prefix")
	return prefix, found, nil
}

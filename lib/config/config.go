// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config defines the fully-resolved options record the
// updater consumes. The CLI populates it from flags, optionally
// merged over a YAML file; the update logic itself never looks at
// flags, files, or the environment. There are no fallbacks or
// automatic discovery beyond the documented defaults — configuration
// stays deterministic and auditable.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the resolved configuration for one updater run.
type Options struct {
	// ImageURL is the gzip-compressed OS partition image.
	ImageURL string `yaml:"image_url"`

	// Version is the version string the image claims to be. Compared
	// against the on-device marker to decide whether to update.
	Version string `yaml:"version"`

	// BootURL is an optional gzip-compressed tar archive of boot
	// files. When empty, the staged boot prefix is assembled from
	// files already on the boot partition.
	BootURL string `yaml:"boot_url"`

	// ImageChecksumURL overrides the derived checksum location for
	// the OS image. When set, any fetch failure is fatal; when the
	// derived default 404s, verification is skipped with a warning.
	ImageChecksumURL string `yaml:"image_checksum_url"`

	// ImageChecksumAlgorithm names the digest for the OS image.
	ImageChecksumAlgorithm string `yaml:"image_checksum_algorithm"`

	// BootChecksumURL overrides the derived manifest location for
	// the boot file set. Same explicit-vs-derived semantics as the
	// image checksum.
	BootChecksumURL string `yaml:"boot_checksum_url"`

	// BootChecksumAlgorithm names the digest for boot files.
	BootChecksumAlgorithm string `yaml:"boot_checksum_algorithm"`

	// HostRoot prefixes the host's /proc views, the fstab template,
	// and the version marker, so the updater can run inside a
	// container with the host root bind-mounted.
	HostRoot string `yaml:"host_root"`

	// MarkerPath locates the version marker under the active root.
	MarkerPath string `yaml:"marker_path"`

	// Reboot requests a reboot after a successful commit.
	Reboot bool `yaml:"reboot"`

	// BootPartition is the 1-based index of the boot partition.
	BootPartition int `yaml:"boot_partition"`

	// OSPartitionA and OSPartitionB are the 1-based indices of the
	// two OS candidate partitions. One of them must be the currently
	// mounted root.
	OSPartitionA int `yaml:"os_partition_a"`
	OSPartitionB int `yaml:"os_partition_b"`

	// Force installs regardless of the version marker.
	Force bool `yaml:"force"`

	// DryRun redirects destructive writes to a discard target,
	// disables the partition capacity bound, and skips commit and
	// reboot.
	DryRun bool `yaml:"dry_run"`

	// Verbosity raises log detail: 0 info, 1 and above debug.
	Verbosity int `yaml:"verbosity"`
}

// Default returns the options for a stock Raspberry Pi partition
// layout: boot at index 1, OS candidates at 2 and 3.
func Default() Options {
	return Options{
		ImageChecksumAlgorithm: "sha256",
		BootChecksumAlgorithm:  "sha256",
		HostRoot:               "/",
		MarkerPath:             ".abswap-version",
		BootPartition:          1,
		OSPartitionA:           2,
		OSPartitionB:           3,
	}
}

// LoadFile reads options from a YAML file, layered over Default.
// Unknown keys are rejected — a typo in a field name must not
// silently fall back to a default.
func LoadFile(path string) (Options, error) {
	options := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&options); err != nil {
		return Options{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return options, nil
}

// Validate checks the record before any write begins.
func (o *Options) Validate() error {
	if o.ImageURL == "" {
		return fmt.Errorf("image_url is required")
	}
	if o.Version == "" && !o.Force {
		return fmt.Errorf("version is required unless force is set")
	}
	if o.BootPartition < 1 {
		return fmt.Errorf("boot_partition must be a 1-based index, got %d", o.BootPartition)
	}
	if o.OSPartitionA < 1 || o.OSPartitionB < 1 {
		return fmt.Errorf("os_partition_a and os_partition_b must be 1-based indices, got %d and %d",
			o.OSPartitionA, o.OSPartitionB)
	}
	if o.OSPartitionA == o.OSPartitionB {
		return fmt.Errorf("os_partition_a and os_partition_b must differ, both are %d", o.OSPartitionA)
	}
	if o.BootPartition == o.OSPartitionA || o.BootPartition == o.OSPartitionB {
		return fmt.Errorf("boot_partition %d collides with an OS partition index", o.BootPartition)
	}
	return nil
}

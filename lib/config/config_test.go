// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "abswap.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFileLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
image_url: http://updates.example/os-1.2.3.img.gz
version: 1.2.3
reboot: true
`)
	options, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if options.ImageURL != "http://updates.example/os-1.2.3.img.gz" {
		t.Errorf("ImageURL = %q", options.ImageURL)
	}
	if !options.Reboot {
		t.Error("Reboot should be true")
	}
	// Untouched fields keep their defaults.
	if options.BootPartition != 1 || options.OSPartitionA != 2 || options.OSPartitionB != 3 {
		t.Errorf("partition defaults lost: %d %d %d",
			options.BootPartition, options.OSPartitionA, options.OSPartitionB)
	}
	if options.ImageChecksumAlgorithm != "sha256" {
		t.Errorf("ImageChecksumAlgorithm = %q", options.ImageChecksumAlgorithm)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "image_urll: oops\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile should reject unknown keys")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile should fail for a missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.ImageURL = "http://updates.example/os.img.gz"
	valid.Version = "1.2.3"
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"missing image url", func(o *Options) { o.ImageURL = "" }, "image_url"},
		{"missing version", func(o *Options) { o.Version = "" }, "version"},
		{"zero boot partition", func(o *Options) { o.BootPartition = 0 }, "boot_partition"},
		{"identical os partitions", func(o *Options) { o.OSPartitionB = o.OSPartitionA }, "differ"},
		{"boot collides with os", func(o *Options) { o.BootPartition = 2 }, "collides"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			options := valid
			c.mutate(&options)
			err := options.Validate()
			if err == nil || !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("Validate = %v, want error mentioning %q", err, c.wantErr)
			}
		})
	}
}

func TestValidateForceWithoutVersion(t *testing.T) {
	options := Default()
	options.ImageURL = "http://updates.example/os.img.gz"
	options.Force = true
	if err := options.Validate(); err != nil {
		t.Errorf("force without version should validate, got %v", err)
	}
}

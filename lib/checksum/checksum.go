// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum computes and parses the digests that gate the
// update: the whole-image digest for the OS partition and the
// per-file manifest for the boot file set. Content is streamed
// through the hash function so memory stays constant regardless of
// image size.
package checksum

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// New returns a hash for the named algorithm. Supported: sha256
// (the default everywhere), sha512, sha1 (legacy image feeds), and
// blake3.
func New(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "blake3":
		return blake3.New(), nil
	}
	return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
}

// HashFile returns the hex digest of the file at path.
func HashFile(algorithm, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher, err := New(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashPrefix returns the hex digest of exactly length bytes from the
// start of path. This is how a written partition is verified: the
// device is larger than the image, so only the bytes the pipeline
// wrote participate in the digest.
func HashPrefix(algorithm, path string, length int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher, err := New(algorithm)
	if err != nil {
		return "", err
	}
	copied, err := io.CopyN(hasher, file, length)
	if err != nil {
		return "", fmt.Errorf("hashing first %d bytes of %s (got %d): %w",
			length, path, copied, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FirstToken extracts the digest from a checksum file in sha256sum
// format ("<hex>  <filename>"). Only the first token of the first
// non-empty line is used.
func FirstToken(data []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("checksum file is empty")
}

// ManifestEntry is one line of a boot file manifest: a digest and the
// path it covers, relative to the staged prefix.
type ManifestEntry struct {
	Digest string
	Path   string
}

// ParseManifest parses a manifest with one "<hex>  <relative path>"
// entry per line. Blank lines are ignored; a line with fewer than two
// tokens is an error.
func ParseManifest(data []byte) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("manifest line %d: want \"<digest> <path>\", got %q",
				lineNumber, scanner.Text())
		}
		entries = append(entries, ManifestEntry{Digest: fields[0], Path: fields[1]})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}
	return entries, nil
}

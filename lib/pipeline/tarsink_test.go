// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireTar(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}
}

func tarArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for name, content := range files {
		header := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("WriteHeader(%s): %v", name, err)
		}
		if _, err := writer.Write([]byte(content)); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buffer.Bytes()
}

func TestTarSinkExtracts(t *testing.T) {
	requireTar(t)
	archive := tarArchive(t, map[string]string{
		"kernel8.img": "kernel bytes",
		"cmdline.txt": "console=serial0 root=/dev/mmcblk0p2",
	})
	dir := t.TempDir()

	sink := NewTarSink(context.Background(), dir)
	source := &sliceSource{chunks: [][]byte{archive[:512], archive[512:]}}
	if err := Run(context.Background(), source, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	kernel, err := os.ReadFile(filepath.Join(dir, "kernel8.img"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(kernel) != "kernel bytes" {
		t.Errorf("kernel8.img = %q", kernel)
	}
}

func TestTarSinkTruncatedArchive(t *testing.T) {
	requireTar(t)
	archive := tarArchive(t, map[string]string{"kernel8.img": "kernel bytes"})

	sink := NewTarSink(context.Background(), t.TempDir())
	source := &sliceSource{chunks: [][]byte{archive[:100]}}
	if err := Run(context.Background(), source, sink); err == nil {
		t.Fatal("Run should fail on a truncated archive")
	}
}

func TestTarSinkEmptyStreamNeverStartsProcess(t *testing.T) {
	sink := NewTarSink(context.Background(), t.TempDir())
	if err := sink.Finish(); err != nil {
		t.Fatalf("Finish without input: %v", err)
	}
	if sink.command != nil {
		t.Error("no child process should have started for an empty stream")
	}
}

func TestTarSinkFinishIdempotent(t *testing.T) {
	requireTar(t)
	archive := tarArchive(t, map[string]string{"a": "b"})
	sink := NewTarSink(context.Background(), t.TempDir())
	if err := sink.Accept(archive); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := sink.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := sink.Finish(); err != nil {
		t.Fatalf("second Finish must be a no-op, got: %v", err)
	}
}

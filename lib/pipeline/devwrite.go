// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// DeviceWriter is the terminal stage that writes the decompressed
// image to a partition block device. Writes that would exceed the
// caller-supplied limit fail with OverCapacityError before any byte
// past the limit reaches the device — the partition is never silently
// truncated into or wrapped.
type DeviceWriter struct {
	file    *os.File
	writer  io.Writer
	path    string
	limit   int64
	written int64
	closed  bool
}

// NewDeviceWriter opens path for writing with limit as the maximum
// number of bytes accepted. A limit of zero or less disables the
// bound (used only for discard targets).
func NewDeviceWriter(path string, limit int64) (*DeviceWriter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s for writing: %w", path, err)
	}
	return &DeviceWriter{file: file, writer: file, path: path, limit: limit}, nil
}

// NewDiscardWriter returns a writer that accepts any amount of data
// and throws it away. Dry-run mode redirects the partition write here
// with the capacity bound disabled.
func NewDiscardWriter() *DeviceWriter {
	return &DeviceWriter{writer: io.Discard, path: "(discard)"}
}

// BytesWritten returns the bytes accepted so far.
func (w *DeviceWriter) BytesWritten() int64 {
	return w.written
}

// Accept writes one chunk, enforcing the capacity bound first.
func (w *DeviceWriter) Accept(chunk []byte) error {
	if w.closed {
		return fmt.Errorf("write to %s after close", w.path)
	}
	if w.limit > 0 && w.written+int64(len(chunk)) > w.limit {
		return &OverCapacityError{
			Device:    w.path,
			Limit:     w.limit,
			Attempted: w.written + int64(len(chunk)),
		}
	}
	n, err := w.writer.Write(chunk)
	w.written += int64(n)
	if err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	return nil
}

// Finish syncs the device and closes it. The sync matters: the digest
// verification that follows re-reads the device, and the commit that
// follows that must not race buffered writes.
func (w *DeviceWriter) Finish() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.file == nil {
		return nil
	}
	if err := unix.Fsync(int(w.file.Fd())); err != nil {
		w.file.Close()
		return fmt.Errorf("syncing %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	return nil
}

// OverCapacityError reports a write that would exceed the target
// partition's size.
type OverCapacityError struct {
	Device    string
	Limit     int64
	Attempted int64
}

func (e *OverCapacityError) Error() string {
	return fmt.Sprintf("write to %s over capacity: %d bytes exceeds limit %d",
		e.Device, e.Attempted, e.Limit)
}

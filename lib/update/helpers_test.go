// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// stubRunner is a hostcmd.Runner whose handlers are keyed by command
// name. Unlike a fully scripted runner it can handle commands with
// unpredictable arguments (mount points under a fresh temp
// directory), and handlers can perform side effects that stand in for
// the real utility.
type stubRunner struct {
	mu       sync.Mutex
	handlers map[string]func(args []string) (string, error)
	calls    []string
}

func newStubRunner() *stubRunner {
	return &stubRunner{handlers: map[string]func(args []string) (string, error){}}
}

func (r *stubRunner) handle(name string, handler func(args []string) (string, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// succeed registers a handler returning empty output.
func (r *stubRunner) succeed(name string) {
	r.handle(name, func([]string) (string, error) { return "", nil })
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	commandLine := strings.Join(append([]string{name}, args...), " ")
	r.mu.Lock()
	r.calls = append(r.calls, commandLine)
	handler, ok := r.handlers[name]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unscripted command: %s", commandLine)
	}
	return handler(args)
}

func (r *stubRunner) calledWith(substring string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range r.calls {
		if strings.Contains(call, substring) {
			return true
		}
	}
	return false
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("compressing test data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	return buffer.Bytes()
}

// tarGzBytes builds a compressed tar archive from relative path to
// content. Map iteration order does not matter to the consumers.
func tarGzBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var archive bytes.Buffer
	tarWriter := tar.NewWriter(&archive)
	for name, content := range files {
		header := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("writing tar header for %s: %v", name, err)
		}
		if _, err := tarWriter.Write(content); err != nil {
			t.Fatalf("writing tar entry %s: %v", name, err)
		}
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	return gzipBytes(t, archive.Bytes())
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

func requireTar(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}
}

func writeTestFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// TarSink feeds archive bytes to an external tar process through its
// stdin pipe and reads nothing back. The child is started lazily on
// the first chunk, so an upstream fault before any output reaches the
// sink never forks a process at all.
type TarSink struct {
	ctx     context.Context
	dir     string
	command *exec.Cmd
	stdin   io.WriteCloser
	stderr  bytes.Buffer

	started  bool
	finished bool
}

// NewTarSink returns a sink extracting into dir. The context bounds
// the child process lifetime.
func NewTarSink(ctx context.Context, dir string) *TarSink {
	return &TarSink{ctx: ctx, dir: dir}
}

// Accept writes one chunk of the archive to tar's stdin.
func (t *TarSink) Accept(chunk []byte) error {
	if t.finished {
		return errors.New("tar: write after finish")
	}
	if !t.started {
		t.started = true
		if err := t.start(); err != nil {
			t.finished = true
			return err
		}
	}
	if _, err := t.stdin.Write(chunk); err != nil {
		// tar exited mid-stream. Reap it now so the returned error
		// carries its stderr rather than a bare EPIPE.
		t.finished = true
		t.stdin.Close()
		if waitErr := t.command.Wait(); waitErr != nil {
			return t.tarError(waitErr)
		}
		return fmt.Errorf("writing to tar: %w", err)
	}
	return nil
}

// Finish closes tar's stdin and waits for it to exit. A truncated
// archive or extraction failure surfaces here as tar's exit status.
func (t *TarSink) Finish() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if !t.started {
		return nil
	}
	if err := t.stdin.Close(); err != nil {
		t.command.Wait()
		return fmt.Errorf("closing tar stdin: %w", err)
	}
	if err := t.command.Wait(); err != nil {
		return t.tarError(err)
	}
	return nil
}

func (t *TarSink) start() error {
	command := exec.CommandContext(t.ctx, "tar", "--extract", "--directory", t.dir)
	command.Stderr = &t.stderr
	stdin, err := command.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating tar stdin pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		return fmt.Errorf("starting tar: %w", err)
	}
	t.command = command
	t.stdin = stdin
	return nil
}

func (t *TarSink) tarError(err error) error {
	return fmt.Errorf("tar --extract --directory %s: %w (stderr: %s)",
		t.dir, err, strings.TrimSpace(t.stderr.String()))
}

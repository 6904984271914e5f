// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the push-based streaming dataflow used
// by the update stages: an HTTP byte source feeding zero or more
// transform stages and a terminal consumer.
//
// Chunks are pushed, never pulled. A stage does not see the next chunk
// until it has finished processing (and forwarding) the current one,
// so no unbounded buffering can accumulate between stages. Every
// stage's Finish runs exactly once — on success to flush and release
// resources, on failure to clean up before the fault propagates to
// the caller. No partial write is left behind as an open handle, a
// running child process, or a dangling temporary path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage consumes an ordered sequence of byte chunks. Accept may
// forward zero or more chunks downstream before returning. The chunk
// slice is only valid for the duration of the call; stages that need
// the bytes later must copy them.
type Stage interface {
	// Accept processes one chunk. Returning an error aborts the
	// pipeline; the driver then runs cleanup on every stage.
	Accept(chunk []byte) error

	// Finish finalizes the stage: flush buffered output, close file
	// handles, reap child processes. The driver guarantees exactly
	// one call, after upstream exhaustion or after a fault anywhere
	// in the chain. Finish must be safe to call in either situation.
	Finish() error
}

// Filter is a Stage that forwards output to a downstream Stage. The
// driver connects each filter to its successor before any bytes flow.
type Filter interface {
	Stage

	// Connect sets the downstream stage. Called once by Run.
	Connect(next Stage)
}

// Source produces the byte stream that enters the pipeline.
type Source interface {
	// Run pushes the entire stream into next, returning once the
	// input is exhausted or a fault occurs. Run must not call
	// next.Finish — finalization belongs to the driver.
	Run(ctx context.Context, next Stage) error
}

// Run drives chunks from source through the stages in order. Every
// stage except the last must be a Filter; the last is the terminal
// consumer. On success the stages are finalized in pipeline order so
// that flushed output propagates downstream before the consumer
// closes. On failure the same order applies — a transform's internal
// worker has quiesced by the time its downstream's cleanup runs — and
// the original fault is returned after all cleanup has completed.
func Run(ctx context.Context, source Source, stages ...Stage) error {
	if len(stages) == 0 {
		return errors.New("pipeline: no stages")
	}
	for i := 0; i < len(stages)-1; i++ {
		filter, ok := stages[i].(Filter)
		if !ok {
			return fmt.Errorf("pipeline: stage %d is not a Filter but has a downstream stage", i)
		}
		filter.Connect(stages[i+1])
	}

	if err := source.Run(ctx, stages[0]); err != nil {
		for _, stage := range stages {
			// Cleanup errors are secondary to the original fault.
			_ = stage.Finish()
		}
		return err
	}

	var firstErr error
	for _, stage := range stages {
		if err := stage.Finish(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

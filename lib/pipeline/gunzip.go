// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
)

// gunzipBufferSize is the decompressed read granularity.
const gunzipBufferSize = 128 * 1024

// GunzipStage decompresses a gzip stream. The gzip reader pulls, the
// pipeline pushes, so the stage bridges the two with an in-process
// pipe: Accept writes the compressed chunk to the pipe and blocks
// until the decompressor has consumed it, which preserves
// backpressure end to end. Decompressed output is pushed downstream
// from the decompressor's goroutine; the driver only touches
// downstream stages again after Finish has joined that goroutine.
type GunzipStage struct {
	next Stage

	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	done       chan struct{}
	workerErr  error

	produced atomic.Int64
	started  bool
	finished bool
}

// NewGunzipStage returns an unconnected gunzip filter.
func NewGunzipStage() *GunzipStage {
	return &GunzipStage{}
}

// Connect implements Filter.
func (s *GunzipStage) Connect(next Stage) {
	s.next = next
}

// BytesProduced returns the number of decompressed bytes pushed
// downstream so far. Meaningful even after early termination.
func (s *GunzipStage) BytesProduced() int64 {
	return s.produced.Load()
}

// Accept feeds one compressed chunk to the decompressor.
func (s *GunzipStage) Accept(chunk []byte) error {
	if !s.started {
		s.started = true
		s.pipeReader, s.pipeWriter = io.Pipe()
		s.done = make(chan struct{})
		go s.decompress()
	}
	if _, err := s.pipeWriter.Write(chunk); err != nil {
		// The worker closed its end: it hit a decode error or the
		// downstream stage rejected output. Its error is the real
		// cause.
		<-s.done
		if s.workerErr != nil {
			return s.workerErr
		}
		return err
	}
	return nil
}

// Finish closes the compressed stream and waits for the decompressor
// to drain. A truncated stream surfaces here as the decoder's error.
func (s *GunzipStage) Finish() error {
	if s.finished {
		return nil
	}
	s.finished = true
	if !s.started {
		return nil
	}
	s.pipeWriter.Close()
	<-s.done
	return s.workerErr
}

func (s *GunzipStage) decompress() {
	defer close(s.done)

	reader, err := gzip.NewReader(s.pipeReader)
	if err != nil {
		s.workerErr = fmt.Errorf("gunzip: %w", err)
		s.pipeReader.CloseWithError(s.workerErr)
		return
	}

	buffer := make([]byte, gunzipBufferSize)
	for {
		n, readErr := reader.Read(buffer)
		if n > 0 {
			s.produced.Add(int64(n))
			if acceptErr := s.next.Accept(buffer[:n]); acceptErr != nil {
				s.workerErr = acceptErr
				s.pipeReader.CloseWithError(acceptErr)
				return
			}
		}
		if readErr == io.EOF {
			s.pipeReader.Close()
			return
		}
		if readErr != nil {
			s.workerErr = fmt.Errorf("gunzip: %w", readErr)
			s.pipeReader.CloseWithError(s.workerErr)
			return
		}
	}
}

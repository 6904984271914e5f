// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import "sync/atomic"

// Counter is an explicit shared byte count. The stage that observes
// the bytes and the code that later needs the total (digest
// verification reads back exactly this many bytes from the device)
// share one Counter passed to both, rather than ambient state.
type Counter struct {
	n atomic.Int64
}

// Add records n more bytes.
func (c *Counter) Add(n int) {
	c.n.Add(int64(n))
}

// Total returns the bytes counted so far.
func (c *Counter) Total() int64 {
	return c.n.Load()
}

// CountStage is a passthrough filter that records the size of every
// chunk flowing through it.
type CountStage struct {
	counter *Counter
	next    Stage
}

// NewCountStage returns a counting passthrough backed by counter.
func NewCountStage(counter *Counter) *CountStage {
	return &CountStage{counter: counter}
}

// Connect implements Filter.
func (s *CountStage) Connect(next Stage) {
	s.next = next
}

// Accept counts the chunk and forwards it unchanged.
func (s *CountStage) Accept(chunk []byte) error {
	s.counter.Add(len(chunk))
	return s.next.Accept(chunk)
}

// Finish is a no-op; the stage holds no resources.
func (s *CountStage) Finish() error {
	return nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// LogRecorder is a slog.Handler that records every log record it
// receives. Stages take an injected *slog.Logger; tests hand them
// slog.New(recorder) and assert on the captured messages instead of
// parsing formatted output.
type LogRecorder struct {
	mu      sync.Mutex
	records []slog.Record
}

// NewLogger returns a logger backed by a fresh recorder, plus the
// recorder itself for assertions.
func NewLogger() (*slog.Logger, *LogRecorder) {
	recorder := &LogRecorder{}
	return slog.New(recorder), recorder
}

// Enabled reports that all levels are recorded.
func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle stores the record.
func (r *LogRecorder) Handle(_ context.Context, record slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record.Clone())
	return nil
}

// WithAttrs returns the same handler; attribute grouping is not needed
// for assertions.
func (r *LogRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }

// WithGroup returns the same handler.
func (r *LogRecorder) WithGroup(string) slog.Handler { return r }

// Messages returns the recorded messages in order.
func (r *LogRecorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := make([]string, len(r.records))
	for i, record := range r.records {
		messages[i] = record.Message
	}
	return messages
}

// Has reports whether any recorded message contains substring.
func (r *LogRecorder) Has(substring string) bool {
	for _, message := range r.Messages() {
		if strings.Contains(message, substring) {
			return true
		}
	}
	return false
}

// HasLevel reports whether any record at the given level contains
// substring in its message.
func (r *LogRecorder) HasLevel(level slog.Level, substring string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.Level == level && strings.Contains(record.Message, substring) {
			return true
		}
	}
	return false
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// fetchBufferSize is the read granularity for HTTP bodies. Chunks of
// this size flow through the pipeline; backpressure means at most one
// buffer is in flight per stage.
const fetchBufferSize = 256 * 1024

// HTTPSource streams the body of a GET request into the pipeline.
type HTTPSource struct {
	client *http.Client
	url    string
	logger *slog.Logger

	length int64
}

// NewHTTPSource returns a source for the given URL. A nil client uses
// http.DefaultClient.
func NewHTTPSource(client *http.Client, url string, logger *slog.Logger) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, url: url, logger: logger, length: -1}
}

// ContentLength returns the total length advertised by the server, or
// -1 when unknown. Valid once Run has received response headers.
func (s *HTTPSource) ContentLength() int64 {
	return s.length
}

// Run performs the GET and pushes the response body downstream.
func (s *HTTPSource) Run(ctx context.Context, next Stage) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", s.url, err)
	}
	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", s.url, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &StatusError{URL: s.url, StatusCode: response.StatusCode}
	}
	s.length = response.ContentLength
	if s.logger != nil {
		s.logger.Debug("fetch started", "url", s.url, "expected_bytes", s.length)
	}

	buffer := make([]byte, fetchBufferSize)
	for {
		n, readErr := response.Body.Read(buffer)
		if n > 0 {
			if err := next.Accept(buffer[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", s.url, readErr)
		}
	}
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether err is a StatusError with status 404.
// Exactly 404 — other failures on the same URL (connection refused,
// timeouts, 5xx) are never treated as a tolerable absence.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

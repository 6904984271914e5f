// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner is a scripted hostcmd.Runner. Tests register responses
// keyed by the full command line ("lsblk -no pkname /dev/mmcblk0p2");
// every invocation is recorded so tests can assert which host
// utilities ran and in what order.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
}

type fakeResponse struct {
	output string
	err    error
}

// NewFakeRunner returns an empty scripted runner. Unscripted commands
// fail, so a test only passes when it declared everything the code
// under test executes.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: map[string]fakeResponse{}}
}

// Respond registers stdout for the given command line.
func (f *FakeRunner) Respond(commandLine, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[commandLine] = fakeResponse{output: output}
}

// Fail registers a failure for the given command line.
func (f *FakeRunner) Fail(commandLine string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[commandLine] = fakeResponse{err: err}
}

// Run implements hostcmd.Runner.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	commandLine := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, commandLine)
	response, ok := f.responses[commandLine]
	f.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unscripted command: %s", commandLine)
	}
	if response.err != nil {
		return "", response.err
	}
	return response.output, nil
}

// Calls returns every command line executed so far, in order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Ran reports whether any executed command line contains substring.
func (f *FakeRunner) Ran(substring string) bool {
	for _, call := range f.Calls() {
		if strings.Contains(call, substring) {
			return true
		}
	}
	return false
}

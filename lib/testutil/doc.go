// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for abswap packages:
// a capturing slog handler for asserting on diagnostic output, and a
// scripted command runner standing in for the host utilities.
package testutil

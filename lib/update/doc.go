// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package update implements the A/B update run: the version gate, the
// OS partition stage, the boot file stage, and the commit that
// switches the bootloader to the freshly written side.
//
// The two stages run concurrently and share no mutable state; their
// only synchronization point is the orchestrator's join. Nothing the
// currently booted system depends on is touched until both stages
// have verified successfully — every failure before commit leaves the
// device exactly as it was. Commit itself is the documented point of
// no return: a failure inside it is surfaced but not rolled back.
package update

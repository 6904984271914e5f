// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package update

import "fmt"

// VerificationError reports a digest mismatch between fetched content
// and its published checksum. It is always raised before commit, so
// the previously active partition is never at risk when it appears.
type VerificationError struct {
	Target   string
	Expected string
	Actual   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed for %s: digest %s, expected %s",
		e.Target, e.Actual, e.Expected)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swversion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/abswap/lib/testutil"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.2.3", -1},
		{"1.2.3", "1.0.0", 1},
		{"1.2.3", "1.2.3", 0},
		{"2.0.0", "1.9.9", 1},
		{"0", "0.0.1", -1},
		{"1.2", "1.2.0", 0},
		{"10.0", "9.9", 1},
		{" 1.2.3 ", "1.2.3", 0},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		if err != nil {
			t.Errorf("Compare(%q, %q): %v", c.a, c.b, err)
			continue
		}
		if got != c.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestCompareMalformed(t *testing.T) {
	for _, bad := range []string{"", "abc", "1.2.x", "1..2", "v1.2.3"} {
		if _, err := Compare(bad, "1.0.0"); err == nil {
			t.Errorf("Compare(%q, ...) should fail", bad)
		}
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	logger, _ := testutil.NewLogger()
	marker := &Marker{Path: filepath.Join(t.TempDir(), "version"), Logger: logger}

	if err := marker.Write("1.2.3"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	version, err := marker.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if version != "1.2.3" {
		t.Errorf("Read = %q, want %q", version, "1.2.3")
	}
}

func TestMarkerAbsentReadsAsZeroAndCreates(t *testing.T) {
	logger, _ := testutil.NewLogger()
	path := filepath.Join(t.TempDir(), "version")
	marker := &Marker{Path: path, Logger: logger}

	version, err := marker.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if version != "0" {
		t.Errorf("Read = %q, want %q", version, "0")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("marker was not created: %v", err)
	}
	if string(data) != "0\n" {
		t.Errorf("marker content = %q", data)
	}
}

func TestMarkerAbsentDryRunDoesNotCreate(t *testing.T) {
	logger, records := testutil.NewLogger()
	path := filepath.Join(t.TempDir(), "version")
	marker := &Marker{Path: path, DryRun: true, Logger: logger}

	version, err := marker.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if version != "0" {
		t.Errorf("Read = %q, want %q", version, "0")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("dry-run must not create the marker")
	}
	if !records.Has("dry-run") {
		t.Error("skipped creation should be logged")
	}
}

func TestNeedsUpdate(t *testing.T) {
	cases := []struct {
		name    string
		current string
		next    string
		force   bool
		want    bool
	}{
		{"older current", "1.0.0", "1.2.3", false, true},
		{"newer current", "2.0.0", "1.2.3", false, false},
		{"equal", "1.2.3", "1.2.3", false, false},
		{"force wins over newer current", "2.0.0", "1.2.3", true, true},
		{"malformed current", "not-a-version", "1.2.3", false, true},
		{"malformed next", "1.0.0", "nightly", false, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			logger, _ := testutil.NewLogger()
			marker := &Marker{Path: filepath.Join(t.TempDir(), "version"), Logger: logger}
			if err := marker.Write(c.current); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := marker.NeedsUpdate(c.next, c.force)
			if err != nil {
				t.Fatalf("NeedsUpdate: %v", err)
			}
			if got != c.want {
				t.Errorf("NeedsUpdate(%q -> %q, force=%v) = %v, want %v",
					c.current, c.next, c.force, got, c.want)
			}
		})
	}
}

func TestNeedsUpdateForceSkipsMarkerRead(t *testing.T) {
	logger, _ := testutil.NewLogger()
	// Path that cannot be read; force must not touch it.
	marker := &Marker{Path: filepath.Join(t.TempDir(), "missing", "version"), Logger: logger}
	needs, err := marker.NeedsUpdate("1.0.0", true)
	if err != nil {
		t.Fatalf("NeedsUpdate: %v", err)
	}
	if !needs {
		t.Error("force should always require update")
	}
}

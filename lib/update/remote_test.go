// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/abswap/lib/pipeline"
	"github.com/bureau-foundation/abswap/lib/testutil"
)

func TestDeriveChecksumURL(t *testing.T) {
	tests := []struct {
		asset     string
		algorithm string
		want      string
	}{
		{"https://example.com/os-1.2.3.img.gz", "sha256", "https://example.com/os-1.2.3.img.sha256"},
		{"https://example.com/os-1.2.3.img", "sha256", "https://example.com/os-1.2.3.img.sha256"},
		{"https://example.com/boot-1.2.3.tar.gz", "blake3", "https://example.com/boot-1.2.3.tar.blake3"},
	}
	for _, test := range tests {
		got := DeriveChecksumURL(test.asset, test.algorithm)
		if got != test.want {
			t.Errorf("DeriveChecksumURL(%q, %q) = %q, want %q",
				test.asset, test.algorithm, got, test.want)
		}
	}
}

func TestExpectedDigestDerived(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/os.img.sha256" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("abc123  os.img.gz\n"))
	}))
	defer server.Close()

	logger, _ := testutil.NewLogger()
	digest, skip, err := expectedDigest(context.Background(), server.Client(),
		"", server.URL+"/os.img.gz", "sha256", logger)
	if err != nil {
		t.Fatalf("expectedDigest: %v", err)
	}
	if skip {
		t.Fatal("verification skipped with a published checksum")
	}
	if digest != "abc123" {
		t.Errorf("digest = %q, want abc123", digest)
	}
}

func TestExpectedDigestDerivedNotFoundSkips(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	logger, recorder := testutil.NewLogger()
	_, skip, err := expectedDigest(context.Background(), server.Client(),
		"", server.URL+"/os.img.gz", "sha256", logger)
	if err != nil {
		t.Fatalf("expectedDigest: %v", err)
	}
	if !skip {
		t.Fatal("missing derived checksum must degrade to skipped verification")
	}
	if !recorder.Has("skipping verification") {
		t.Error("skip not logged as a warning")
	}
}

func TestExpectedDigestDerivedServerErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	logger, _ := testutil.NewLogger()
	_, skip, err := expectedDigest(context.Background(), server.Client(),
		"", server.URL+"/os.img.gz", "sha256", logger)
	if err == nil {
		t.Fatal("a 500 on the derived checksum URL must fail the update")
	}
	if skip {
		t.Fatal("skip reported alongside an error")
	}
	var statusErr *pipeline.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("error = %v, want StatusError with code 500", err)
	}
}

func TestExpectedDigestExplicitNotFoundIsFatal(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	logger, _ := testutil.NewLogger()
	_, skip, err := expectedDigest(context.Background(), server.Client(),
		server.URL+"/custom.sha256", server.URL+"/os.img.gz", "sha256", logger)
	if err == nil {
		t.Fatal("a 404 on an explicitly configured checksum URL must fail the update")
	}
	if skip {
		t.Fatal("skip reported for an explicit checksum URL")
	}
}

func TestExpectedManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("aaaa  kernel8.img\nbbbb  cmdline.txt\n"))
	}))
	defer server.Close()

	logger, _ := testutil.NewLogger()
	entries, skip, err := expectedManifest(context.Background(), server.Client(),
		server.URL+"/boot.tar.sha256", server.URL+"/boot.tar.gz", "sha256", logger)
	if err != nil {
		t.Fatalf("expectedManifest: %v", err)
	}
	if skip {
		t.Fatal("verification skipped with a published manifest")
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Path != "kernel8.img" || entries[1].Digest != "bbbb" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestExpectedManifestMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("just-one-token\n"))
	}))
	defer server.Close()

	logger, _ := testutil.NewLogger()
	_, _, err := expectedManifest(context.Background(), server.Client(),
		server.URL+"/boot.tar.sha256", server.URL+"/boot.tar.gz", "sha256", logger)
	if err == nil {
		t.Fatal("malformed manifest must be an error")
	}
}

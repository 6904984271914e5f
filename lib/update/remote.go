// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package update

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/abswap/lib/checksum"
	"github.com/bureau-foundation/abswap/lib/pipeline"
)

// DeriveChecksumURL computes the default checksum location for an
// asset: the compressed-file extension is replaced with the checksum
// algorithm's. "os-1.2.3.img.gz" with sha256 becomes
// "os-1.2.3.img.sha256".
func DeriveChecksumURL(assetURL, algorithm string) string {
	const suffix = ".gz"
	base := assetURL
	if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
		base = base[:len(base)-len(suffix)]
	}
	return base + "." + algorithm
}

// fetchBody GETs a small resource (checksum file, manifest) into
// memory. Non-2xx responses surface as pipeline.StatusError so the
// caller can distinguish a 404 from other failures.
func fetchBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &pipeline.StatusError{URL: url, StatusCode: response.StatusCode}
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return body, nil
}

// fetchChecksumFile resolves and fetches the checksum resource for an
// asset. When explicitURL is empty the URL is derived from the asset
// URL; a derived URL that 404s means the publisher ships no checksum,
// which degrades to skipped verification with a warning. Any failure
// on an explicitly configured URL is fatal, as is any non-404 failure
// on the derived one.
func fetchChecksumFile(ctx context.Context, client *http.Client, explicitURL, assetURL, algorithm string, logger *slog.Logger) (body []byte, skip bool, err error) {
	url := explicitURL
	derived := false
	if url == "" {
		url = DeriveChecksumURL(assetURL, algorithm)
		derived = true
	}
	body, err = fetchBody(ctx, client, url)
	if err != nil {
		if derived && pipeline.IsNotFound(err) {
			logger.Warn("no checksum published at derived URL, skipping verification", "url", url)
			return nil, true, nil
		}
		return nil, false, err
	}
	return body, false, nil
}

// expectedDigest fetches the single-digest checksum for an asset.
func expectedDigest(ctx context.Context, client *http.Client, explicitURL, assetURL, algorithm string, logger *slog.Logger) (digest string, skip bool, err error) {
	body, skip, err := fetchChecksumFile(ctx, client, explicitURL, assetURL, algorithm, logger)
	if err != nil || skip {
		return "", skip, err
	}
	digest, err = checksum.FirstToken(body)
	if err != nil {
		return "", false, fmt.Errorf("parsing checksum for %s: %w", assetURL, err)
	}
	return digest, false, nil
}

// expectedManifest fetches the per-file manifest for the boot file
// set.
func expectedManifest(ctx context.Context, client *http.Client, explicitURL, assetURL, algorithm string, logger *slog.Logger) (entries []checksum.ManifestEntry, skip bool, err error) {
	body, skip, err := fetchChecksumFile(ctx, client, explicitURL, assetURL, algorithm, logger)
	if err != nil || skip {
		return nil, skip, err
	}
	entries, err = checksum.ParseManifest(body)
	if err != nil {
		return nil, false, fmt.Errorf("parsing manifest for %s: %w", assetURL, err)
	}
	return entries, false, nil
}

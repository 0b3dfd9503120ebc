// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package postprocess

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

const coverFilename = "cover.jpg"

// CoverFetcher downloads cover art with retries. Fetch failures are expected
// and reported to the caller as ordinary errors to log as warnings.
type CoverFetcher struct {
	httpClient *http.Client
}

// NewCoverFetcher creates a CoverFetcher with the given request timeout.
func NewCoverFetcher(timeoutSeconds int) *CoverFetcher {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CoverFetcher{httpClient: &http.Client{Timeout: timeout}}
}

// Fetch downloads coverURL into dir and returns the cover path.
func (f *CoverFetcher) Fetch(ctx context.Context, coverURL, dir string) (string, error) {
	if strings.TrimSpace(coverURL) == "" {
		return "", fmt.Errorf("no cover url")
	}

	destPath := filepath.Join(dir, coverFilename)

	err := retry.Do(
		func() error {
			return f.download(ctx, coverURL, destPath)
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("failed to fetch cover from %s: %w", coverURL, err)
	}

	return destPath, nil
}

func (f *CoverFetcher) download(ctx context.Context, coverURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cover host returned status %d", resp.StatusCode)
	}

	tmpPath := destPath + ".partial"
	dest, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dest, resp.Body); err != nil {
		dest.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, destPath)
}

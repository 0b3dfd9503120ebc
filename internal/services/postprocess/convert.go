// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package postprocess

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robogeeko/OmniReadarr/internal/domain"
)

const targetEbookExtension = ".epub"

// Converter runs an external ebook conversion tool with a bounded timeout.
type Converter struct {
	binaryPath string
	timeout    time.Duration
}

// NewConverter creates a Converter. An empty binaryPath falls back to
// resolving "ebook-convert" from PATH at execution time.
func NewConverter(binaryPath string, timeoutSeconds int) *Converter {
	if binaryPath == "" {
		binaryPath = "ebook-convert"
	}
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Converter{binaryPath: binaryPath, timeout: timeout}
}

// Convert produces an EPUB next to the source file and returns its path. A
// source already in the target format is returned unchanged. On failure the
// source file is left untouched.
func (c *Converter) Convert(ctx context.Context, sourcePath string) (string, error) {
	if strings.EqualFold(filepath.Ext(sourcePath), targetEbookExtension) {
		return sourcePath, nil
	}

	targetPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + targetEbookExtension

	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(execCtx, c.binaryPath, sourcePath, targetPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return "", domain.NewError(domain.ErrKindConnectivity,
				"conversion of %s timed out after %s", filepath.Base(sourcePath), c.timeout)
		}
		return "", domain.WrapError(domain.ErrKindConversionFailed, err,
			"conversion of %s failed: %s", filepath.Base(sourcePath), summarizeOutput(output))
	}

	log.Info().
		Str("source", sourcePath).
		Str("target", targetPath).
		Dur("elapsed", time.Since(start)).
		Msg("Converted ebook")

	return targetPath, nil
}

func summarizeOutput(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > 500 {
		s = s[len(s)-500:]
	}
	if s == "" {
		return "no converter output"
	}
	return fmt.Sprintf("%q", s)
}

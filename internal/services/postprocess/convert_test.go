// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robogeeko/OmniReadarr/internal/domain"
)

// fakeConverter writes a shell script standing in for ebook-convert.
func fakeConverter(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake converter script requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "ebook-convert")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

func TestConvertEpubIsNoOp(t *testing.T) {
	t.Parallel()

	source := filepath.Join(t.TempDir(), "dune.messiah.epub")
	require.NoError(t, os.WriteFile(source, []byte("payload"), 0644))

	conv := NewConverter("/nonexistent/ebook-convert", 30)
	out, err := conv.Convert(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, source, out)
}

func TestConvertRunsExternalTool(t *testing.T) {
	t.Parallel()

	bin := fakeConverter(t, `cp "$1" "$2"`)
	source := filepath.Join(t.TempDir(), "dune.messiah.mobi")
	require.NoError(t, os.WriteFile(source, []byte("payload"), 0644))

	conv := NewConverter(bin, 30)
	out, err := conv.Convert(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, ".epub", filepath.Ext(out))

	converted, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(converted))

	// Source stays in place.
	_, err = os.Stat(source)
	assert.NoError(t, err)
}

func TestConvertFailureLeavesSource(t *testing.T) {
	t.Parallel()

	bin := fakeConverter(t, `echo "unsupported input" >&2; exit 1`)
	source := filepath.Join(t.TempDir(), "dune.messiah.mobi")
	require.NoError(t, os.WriteFile(source, []byte("payload"), 0644))

	conv := NewConverter(bin, 30)
	_, err := conv.Convert(context.Background(), source)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindConversionFailed))
	assert.Contains(t, err.Error(), "unsupported input")

	_, err = os.Stat(source)
	assert.NoError(t, err)
}

func TestConvertTimeout(t *testing.T) {
	t.Parallel()

	bin := fakeConverter(t, `sleep 30`)
	source := filepath.Join(t.TempDir(), "dune.messiah.mobi")
	require.NoError(t, os.WriteFile(source, []byte("payload"), 0644))

	conv := NewConverter(bin, 1)
	_, err := conv.Convert(context.Background(), source)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindConnectivity))
	assert.Contains(t, err.Error(), "timed out")
}

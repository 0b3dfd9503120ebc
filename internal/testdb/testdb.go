// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package testdb provides a fully-migrated throwaway SQLite database for
// store and service tests.
package testdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robogeeko/OmniReadarr/internal/database"
)

// Setup opens a fresh database under t.TempDir and closes it when the test
// finishes.
func Setup(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "omnireadarr.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

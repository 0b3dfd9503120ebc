// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robogeeko/OmniReadarr/internal/testdb"
)

func TestBlacklistStoreAddAndCheck(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	blacklist := NewBlacklistStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")

	entry := &BlacklistEntry{
		MediaID:          item.ID,
		Indexer:          "alpha",
		IndexerReleaseID: "guid-1",
		ReleaseTitle:     "Dune Messiah EPUB",
		Reason:           BlacklistReasonCorrupted,
		ReasonDetails:    "unreadable archive",
		Actor:            "user",
	}
	require.NoError(t, blacklist.Add(ctx, entry))

	blocked, err := blacklist.IsBlacklisted(ctx, item.ID, "alpha", "guid-1")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Different release on the same indexer is unaffected.
	blocked, err = blacklist.IsBlacklisted(ctx, item.ID, "alpha", "guid-2")
	require.NoError(t, err)
	assert.False(t, blocked)

	// Same release id on another indexer is unaffected.
	blocked, err = blacklist.IsBlacklisted(ctx, item.ID, "beta", "guid-1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlacklistStoreAddIdempotent(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	blacklist := NewBlacklistStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")

	entry := func() *BlacklistEntry {
		return &BlacklistEntry{
			MediaID:          item.ID,
			Indexer:          "alpha",
			IndexerReleaseID: "guid-1",
			Reason:           BlacklistReasonFailedDownload,
		}
	}

	require.NoError(t, blacklist.Add(ctx, entry()))
	require.NoError(t, blacklist.Add(ctx, entry()))

	entries, err := blacklist.ListByMedia(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBlacklistStoreAddValidation(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	blacklist := NewBlacklistStore(db)
	ctx := context.Background()

	err := blacklist.Add(ctx, &BlacklistEntry{Indexer: "alpha", IndexerReleaseID: "guid-1"})
	assert.Error(t, err)
}

func TestBlacklistStoreDefaults(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	blacklist := NewBlacklistStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")

	require.NoError(t, blacklist.Add(ctx, &BlacklistEntry{
		MediaID:          item.ID,
		Indexer:          "alpha",
		IndexerReleaseID: "guid-1",
	}))

	entries, err := blacklist.ListByMedia(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, BlacklistReasonManual, entries[0].Reason)
	assert.Equal(t, "user", entries[0].Actor)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

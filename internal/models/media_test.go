// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robogeeko/OmniReadarr/internal/testdb"
)

func TestMediaStoreCreateAndGet(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	store := NewMediaStore(db)
	ctx := context.Background()

	item, err := store.Create(ctx, &MediaItem{
		Kind:            MediaKindBook,
		Title:           "Dune Messiah",
		Authors:         []string{"Frank Herbert"},
		Genres:          []string{"Science Fiction"},
		ISBN:            "0441172695",
		ISBN13:          "9780441172696",
		VariantMetadata: map[string]string{"pageCount": "256"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, item.ID)
	assert.Equal(t, MediaStatusWanted, item.Status)
	assert.False(t, item.CreatedAt.IsZero())

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Equal(t, []string{"Frank Herbert"}, got.Authors)
	assert.Equal(t, map[string]string{"pageCount": "256"}, got.VariantMetadata)
	assert.Equal(t, "9780441172696", got.Identifier())
}

func TestMediaStoreCreateValidation(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	store := NewMediaStore(db)
	ctx := context.Background()

	_, err := store.Create(ctx, &MediaItem{Kind: MediaKindBook})
	assert.Error(t, err)

	_, err = store.Create(ctx, &MediaItem{Kind: "magazine", Title: "Weird"})
	assert.Error(t, err)
}

func TestMediaStoreGetNotFound(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	store := NewMediaStore(db)

	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestMediaStoreList(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	store := NewMediaStore(db)
	ctx := context.Background()

	for _, title := range []string{"Children of Dune", "Dune Messiah", "Dune"} {
		_, err := store.Create(ctx, &MediaItem{Kind: MediaKindBook, Title: title})
		require.NoError(t, err)
	}

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Children of Dune", items[0].Title)
	assert.Equal(t, "Dune", items[1].Title)
	assert.Equal(t, "Dune Messiah", items[2].Title)
}

func TestMediaStoreUpdateStatus(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	store := NewMediaStore(db)
	ctx := context.Background()

	item, err := store.Create(ctx, &MediaItem{Kind: MediaKindAudiobook, Title: "Project Hail Mary"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, item.ID, MediaStatusDownloading))

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, MediaStatusDownloading, got.Status)

	assert.ErrorIs(t, store.UpdateStatus(ctx, uuid.New(), MediaStatusWanted), ErrMediaNotFound)
}

func TestMediaStoreUpdateLibraryPaths(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	store := NewMediaStore(db)
	ctx := context.Background()

	item, err := store.Create(ctx, &MediaItem{Kind: MediaKindBook, Title: "Dune"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateLibraryPaths(ctx, item.ID, "/library/Frank Herbert/Dune/Dune.epub", "/library/Frank Herbert/Dune/cover.jpg"))

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "/library/Frank Herbert/Dune/Dune.epub", got.LibraryPath)
	assert.Equal(t, "/library/Frank Herbert/Dune/cover.jpg", got.CoverPath)

	// Empty cover path leaves the stored cover untouched.
	require.NoError(t, store.UpdateLibraryPaths(ctx, item.ID, "/library/new/Dune.epub", ""))

	got, err = store.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "/library/new/Dune.epub", got.LibraryPath)
	assert.Equal(t, "/library/Frank Herbert/Dune/cover.jpg", got.CoverPath)
}

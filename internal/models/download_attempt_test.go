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

func createMedia(t *testing.T, store *MediaStore, title string) *MediaItem {
	t.Helper()
	item, err := store.Create(context.Background(), &MediaItem{
		Kind:    MediaKindBook,
		Title:   title,
		Authors: []string{"Frank Herbert"},
	})
	require.NoError(t, err)
	return item
}

func newAttempt(mediaID uuid.UUID, releaseID string) *DownloadAttempt {
	size := int64(1048576)
	return &DownloadAttempt{
		MediaID:          mediaID,
		Indexer:          "alpha",
		IndexerReleaseID: releaseID,
		ReleaseTitle:     "Dune Messiah EPUB",
		DownloadURL:      "http://indexer.test/dl/" + releaseID,
		Protocol:         "usenet",
		FileSize:         &size,
	}
}

func TestAttemptStoreCreateIfNoActive(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	attempts := NewAttemptStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")

	attempt, err := attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-1"))
	require.NoError(t, err)
	assert.Equal(t, AttemptStatusPending, attempt.Status)
	require.NotNil(t, attempt.FileSize)
	assert.Equal(t, int64(1048576), *attempt.FileSize)
	assert.False(t, attempt.AttemptedAt.IsZero())
}

func TestAttemptStoreCreateBlockedByActive(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	attempts := NewAttemptStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")

	first, err := attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-1"))
	require.NoError(t, err)
	require.NoError(t, attempts.SetStatus(ctx, first.ID, AttemptStatusSent, "", ""))

	_, err = attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-2"))
	assert.ErrorIs(t, err, ErrActiveAttemptExists)

	// Terminal attempts do not block.
	require.NoError(t, attempts.SetStatus(ctx, first.ID, AttemptStatusFailed, "", "boom"))
	_, err = attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-2"))
	assert.NoError(t, err)
}

func TestAttemptStoreCreateAllowsOtherMedia(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	attempts := NewAttemptStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	itemA := createMedia(t, media, "Dune")
	itemB := createMedia(t, media, "Dune Messiah")

	first, err := attempts.CreateIfNoActive(ctx, newAttempt(itemA.ID, "guid-1"))
	require.NoError(t, err)
	require.NoError(t, attempts.SetStatus(ctx, first.ID, AttemptStatusDownloading, "", ""))

	_, err = attempts.CreateIfNoActive(ctx, newAttempt(itemB.ID, "guid-2"))
	assert.NoError(t, err)
}

func TestAttemptStoreSetters(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	attempts := NewAttemptStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")
	attempt, err := attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-1"))
	require.NoError(t, err)

	require.NoError(t, attempts.SetClientJobID(ctx, attempt.ID, "SABnzbd_nzo_abc123"))
	require.NoError(t, attempts.SetStatus(ctx, attempt.ID, AttemptStatusDownloading, "", ""))
	require.NoError(t, attempts.SetRawFilePath(ctx, attempt.ID, "/downloads/complete/dune"))
	require.NoError(t, attempts.SetPostProcessedFilePath(ctx, attempt.ID, "/library/dune.epub"))
	require.NoError(t, attempts.SetPostProcessStatus(ctx, attempt.ID, PostProcessCompleted, "", ""))

	got, err := attempts.Get(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, "SABnzbd_nzo_abc123", got.ClientJobID)
	assert.Equal(t, AttemptStatusDownloading, got.Status)
	assert.Equal(t, "/downloads/complete/dune", got.RawFilePath)
	assert.Equal(t, "/library/dune.epub", got.PostProcessedFilePath)
	assert.Equal(t, PostProcessCompleted, got.PostProcessStatus)
}

func TestAttemptStoreSetStatusNotFound(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	attempts := NewAttemptStore(db)

	err := attempts.SetStatus(context.Background(), uuid.New(), AttemptStatusFailed, "", "")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestAttemptStoreListByMedia(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	attempts := NewAttemptStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")

	first, err := attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-1"))
	require.NoError(t, err)
	require.NoError(t, attempts.SetStatus(ctx, first.ID, AttemptStatusFailed, "", "boom"))

	_, err = attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-2"))
	require.NoError(t, err)

	list, err := attempts.ListByMedia(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAttemptStoreCountByMediaAndStatuses(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	attempts := NewAttemptStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")

	first, err := attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-1"))
	require.NoError(t, err)
	require.NoError(t, attempts.SetStatus(ctx, first.ID, AttemptStatusDownloaded, "", ""))

	count, err := attempts.CountByMediaAndStatuses(ctx, item.ID, []AttemptStatus{AttemptStatusDownloaded}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Excluding the attempt removes it from the count.
	count, err = attempts.CountByMediaAndStatuses(ctx, item.ID, []AttemptStatus{AttemptStatusDownloaded}, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = attempts.CountByMediaAndStatuses(ctx, item.ID, nil, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAttemptStoreDelete(t *testing.T) {
	t.Parallel()

	db := testdb.Setup(t)
	attempts := NewAttemptStore(db)
	media := NewMediaStore(db)
	ctx := context.Background()

	item := createMedia(t, media, "Dune Messiah")
	attempt, err := attempts.CreateIfNoActive(ctx, newAttempt(item.ID, "guid-1"))
	require.NoError(t, err)

	require.NoError(t, attempts.Delete(ctx, attempt.ID))
	_, err = attempts.Get(ctx, attempt.ID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	assert.ErrorIs(t, attempts.Delete(ctx, attempt.ID), ErrAttemptNotFound)
}

func TestAttemptStatusHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, AttemptStatusDownloaded.IsTerminal())
	assert.True(t, AttemptStatusFailed.IsTerminal())
	assert.True(t, AttemptStatusBlacklisted.IsTerminal())
	assert.False(t, AttemptStatusSent.IsTerminal())
	assert.False(t, AttemptStatusPending.IsTerminal())

	assert.True(t, AttemptStatusSent.IsActive())
	assert.True(t, AttemptStatusDownloading.IsActive())
	assert.False(t, AttemptStatusDownloaded.IsActive())
	assert.False(t, AttemptStatusPending.IsActive())
}

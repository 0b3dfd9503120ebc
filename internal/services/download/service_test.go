// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/metrics"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/internal/services/search"
	"github.com/robogeeko/OmniReadarr/internal/testdb"
	"github.com/robogeeko/OmniReadarr/pkg/sabnzbd"
)

type fakeClient struct {
	mu        sync.Mutex
	addCalls  atomic.Int64
	addErr    error
	lastURL   string
	nextJobID string
	queue     []sabnzbd.QueueSlot
	history   []sabnzbd.HistorySlot
	deleted   []string
	deleteErr error
}

func (f *fakeClient) AddURL(_ context.Context, downloadURL, _, _ string) (string, error) {
	f.addCalls.Add(1)
	f.mu.Lock()
	f.lastURL = downloadURL
	f.mu.Unlock()
	if f.addErr != nil {
		return "", f.addErr
	}
	if f.nextJobID == "" {
		return "SABnzbd_nzo_test", nil
	}
	return f.nextJobID, nil
}

func (f *fakeClient) Queue(_ context.Context) ([]sabnzbd.QueueSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue, nil
}

func (f *fakeClient) History(_ context.Context, _ int) ([]sabnzbd.HistorySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeClient) Delete(_ context.Context, nzoID string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, nzoID)
	return f.deleteErr
}

type fixture struct {
	svc       *Service
	attempts  *models.AttemptStore
	media     *models.MediaStore
	blacklist *models.BlacklistStore
	client    *fakeClient
	item      *models.MediaItem
	done      string
	library   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testdb.Setup(t)
	attempts := models.NewAttemptStore(db)
	media := models.NewMediaStore(db)
	blacklist := models.NewBlacklistStore(db)
	client := &fakeClient{}

	done := t.TempDir()
	library := t.TempDir()

	svc := NewService(attempts, media, blacklist, client, metrics.NewManager(), &domain.Config{
		SabnzbdCategory:        "books",
		HistoryLookbackLimit:   50,
		CompletedDownloadsPath: done,
		LibraryPath:            library,
	})

	item, err := media.Create(context.Background(), &models.MediaItem{
		Kind:    models.MediaKindBook,
		Title:   "Dune Messiah",
		Authors: []string{"Frank Herbert"},
	})
	require.NoError(t, err)

	return &fixture{
		svc: svc, attempts: attempts, media: media, blacklist: blacklist,
		client: client, item: item, done: done, library: library,
	}
}

func candidate() search.Result {
	return search.Result{
		Indexer:          "alpha",
		IndexerReleaseID: "guid-1",
		Title:            "Dune Messiah EPUB",
		Protocol:         "usenet",
		DownloadURL:      "http://indexer.test/dl/guid-1",
	}
}

func TestInitiate(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	attempt, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.NoError(t, err)

	assert.Equal(t, models.AttemptStatusSent, attempt.Status)
	assert.Equal(t, "SABnzbd_nzo_test", attempt.ClientJobID)

	item, err := fx.media.Get(ctx, fx.item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MediaStatusDownloading, item.Status)
}

func TestInitiateValidation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	c := candidate()
	c.DownloadURL = ""
	_, err := fx.svc.Initiate(ctx, fx.item.ID, c)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))

	c = candidate()
	c.IndexerReleaseID = ""
	_, err = fx.svc.Initiate(ctx, fx.item.ID, c)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))

	_, err = fx.svc.Initiate(ctx, uuid.New(), candidate())
	assert.True(t, domain.IsKind(err, domain.ErrKindNotFound))
}

func TestInitiateRejectsUnsupportedProtocol(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	c := candidate()
	c.Protocol = "torrent"
	_, err := fx.svc.Initiate(ctx, fx.item.ID, c)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))

	// Rejected before any state mutation: no attempt row, no client call.
	attempts, err := fx.attempts.ListByMedia(ctx, fx.item.ID)
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.EqualValues(t, 0, fx.client.addCalls.Load())
}

func TestInitiateDownloadURLResolution(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	// A non-http download reference is a caller error.
	c := candidate()
	c.DownloadURL = "magnet:?xt=urn:btih:abc"
	_, err := fx.svc.Initiate(ctx, fx.item.ID, c)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))
	assert.EqualValues(t, 0, fx.client.addCalls.Load())

	// A missing download url falls back to the release id when it is a URL.
	c = candidate()
	c.DownloadURL = ""
	c.IndexerReleaseID = "http://indexer.test/grab/guid-1"
	attempt, err := fx.svc.Initiate(ctx, fx.item.ID, c)
	require.NoError(t, err)
	assert.Equal(t, "http://indexer.test/grab/guid-1", attempt.DownloadURL)

	fx.client.mu.Lock()
	submitted := fx.client.lastURL
	fx.client.mu.Unlock()
	assert.Equal(t, "http://indexer.test/grab/guid-1", submitted)
}

func TestInitiateRejectsBlacklisted(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.blacklist.Add(ctx, &models.BlacklistEntry{
		MediaID:          fx.item.ID,
		Indexer:          "alpha",
		IndexerReleaseID: "guid-1",
		Reason:           models.BlacklistReasonWrongFile,
	}))

	_, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindValidation))
	assert.EqualValues(t, 0, fx.client.addCalls.Load())
}

func TestInitiateSecondActiveRejected(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.NoError(t, err)

	c := candidate()
	c.IndexerReleaseID = "guid-2"
	c.DownloadURL = "http://indexer.test/dl/guid-2"
	_, err = fx.svc.Initiate(ctx, fx.item.ID, c)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindActiveDownloadExists))
}

func TestInitiateConcurrentOnlyOneWins(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var succeeded, rejected atomic.Int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
			switch {
			case err == nil:
				succeeded.Add(1)
			case domain.IsKind(err, domain.ErrKindActiveDownloadExists):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, workers-1, rejected.Load())
	assert.EqualValues(t, 1, fx.client.addCalls.Load())
}

func TestInitiateClientRejectionFailsAttempt(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()
	fx.client.addErr = errors.New("connection refused")

	_, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindConnectivity))

	attempts, err := fx.attempts.ListByMedia(ctx, fx.item.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, attempts[0].Status)
	assert.Equal(t, string(domain.ErrKindConnectivity), attempts[0].ErrorKind)

	// The failed attempt does not block a retry.
	fx.client.addErr = nil
	_, err = fx.svc.Initiate(ctx, fx.item.ID, candidate())
	assert.NoError(t, err)
}

func TestMarkBlacklisted(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	attempt, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.NoError(t, err)

	updated, err := fx.svc.MarkBlacklisted(ctx, attempt.ID, models.BlacklistReasonCorrupted, "unreadable epub", "user")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusBlacklisted, updated.Status)

	blocked, err := fx.blacklist.IsBlacklisted(ctx, fx.item.ID, "alpha", "guid-1")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Active job was removed from the client.
	assert.Contains(t, fx.client.deleted, "SABnzbd_nzo_test")

	// Media reverts to wanted since no other attempt succeeded.
	item, err := fx.media.Get(ctx, fx.item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MediaStatusWanted, item.Status)
}

func TestDeleteRemovesFilesAndRecomputesStatus(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	attempt, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.NoError(t, err)

	raw := filepath.Join(fx.done, "dune.messiah.epub")
	require.NoError(t, os.WriteFile(raw, []byte("payload"), 0644))
	require.NoError(t, fx.attempts.SetRawFilePath(ctx, attempt.ID, raw))
	require.NoError(t, fx.attempts.SetStatus(ctx, attempt.ID, models.AttemptStatusDownloaded, "", ""))
	require.NoError(t, fx.media.UpdateStatus(ctx, fx.item.ID, models.MediaStatusDownloaded))

	require.NoError(t, fx.svc.Delete(ctx, attempt.ID, true))

	_, err = fx.attempts.Get(ctx, attempt.ID)
	assert.ErrorIs(t, err, models.ErrAttemptNotFound)

	_, err = os.Stat(raw)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	item, err := fx.media.Get(ctx, fx.item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MediaStatusWanted, item.Status)
}

func TestDeleteRemovesDirectoryPayload(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	attempt, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.NoError(t, err)

	// SABnzbd reports a directory for multi-file jobs.
	rawDir := filepath.Join(fx.done, "Dune.Messiah")
	require.NoError(t, os.MkdirAll(rawDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "dune.messiah.epub"), []byte("payload"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "dune.messiah.nfo"), []byte("info"), 0644))
	require.NoError(t, fx.attempts.SetRawFilePath(ctx, attempt.ID, rawDir))

	require.NoError(t, fx.svc.Delete(ctx, attempt.ID, true))

	_, err = os.Stat(rawDir)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDeleteRefusesPathOutsideRoot(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	attempt, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.NoError(t, err)

	stray := filepath.Join(t.TempDir(), "unrelated.epub")
	require.NoError(t, os.WriteFile(stray, []byte("payload"), 0644))
	require.NoError(t, fx.attempts.SetRawFilePath(ctx, attempt.ID, stray))

	require.NoError(t, fx.svc.Delete(ctx, attempt.ID, true))

	// The record is gone but the out-of-root file survives.
	_, err = fx.attempts.Get(ctx, attempt.ID)
	assert.ErrorIs(t, err, models.ErrAttemptNotFound)
	_, err = os.Stat(stray)
	assert.NoError(t, err)
}

func TestDeleteKeepsDownloadedWhenAnotherAttemptSucceeded(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.svc.Initiate(ctx, fx.item.ID, candidate())
	require.NoError(t, err)
	require.NoError(t, fx.attempts.SetStatus(ctx, first.ID, models.AttemptStatusDownloaded, "", ""))

	c := candidate()
	c.IndexerReleaseID = "guid-2"
	c.DownloadURL = "http://indexer.test/dl/guid-2"
	second, err := fx.svc.Initiate(ctx, fx.item.ID, c)
	require.NoError(t, err)
	require.NoError(t, fx.attempts.SetStatus(ctx, second.ID, models.AttemptStatusFailed, "", "boom"))

	require.NoError(t, fx.svc.Delete(ctx, second.ID, false))

	item, err := fx.media.Get(ctx, fx.item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MediaStatusDownloaded, item.Status)
}

func TestDeleteNotFound(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	err := fx.svc.Delete(context.Background(), uuid.New(), false)
	assert.True(t, domain.IsKind(err, domain.ErrKindNotFound))
}

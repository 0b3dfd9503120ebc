// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/metrics"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/internal/services/download"
	"github.com/robogeeko/OmniReadarr/internal/services/postprocess"
	"github.com/robogeeko/OmniReadarr/internal/services/search"
	"github.com/robogeeko/OmniReadarr/internal/testdb"
	"github.com/robogeeko/OmniReadarr/pkg/prowlarr"
	"github.com/robogeeko/OmniReadarr/pkg/sabnzbd"
)

// fakeProwlarr serves one canned release for every query.
func fakeProwlarr(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/search":
			_, _ = w.Write([]byte(`[{
				"guid": "guid-1",
				"title": "Dune Messiah EPUB",
				"indexer": "alpha",
				"protocol": "usenet",
				"downloadUrl": "http://indexer.test/dl/guid-1"
			}]`))
		case "/api/v1/system/status":
			_, _ = w.Write([]byte(`{"version":"1.21.2"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// fakeSabnzbd accepts submissions and reports an empty queue and history.
func fakeSabnzbd(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "addurl":
			_, _ = w.Write([]byte(`{"status": true, "nzo_ids": ["SABnzbd_nzo_router"]}`))
		case "queue":
			_, _ = w.Write([]byte(`{"queue": {"slots": [
				{"nzo_id": "SABnzbd_nzo_router", "status": "Downloading", "percentage": "50"}
			]}}`))
		case "history":
			_, _ = w.Write([]byte(`{"history": {"slots": []}}`))
		case "version":
			_, _ = w.Write([]byte(`{"version": "4.3.2"}`))
		default:
			_, _ = w.Write([]byte(`{"status": true}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func setupRouter(t *testing.T) http.Handler {
	t.Helper()

	db := testdb.Setup(t)
	mediaStore := models.NewMediaStore(db)
	attemptStore := models.NewAttemptStore(db)
	blacklistStore := models.NewBlacklistStore(db)

	cfg := &domain.Config{
		MetricsEnabled:         true,
		SearchMaxResults:       50,
		SabnzbdCategory:        "books",
		HistoryLookbackLimit:   50,
		CompletedDownloadsPath: t.TempDir(),
		LibraryPath:            t.TempDir(),
	}

	indexer := prowlarr.NewClient(prowlarr.Config{Host: fakeProwlarr(t).URL, APIKey: "key"})
	client := sabnzbd.NewClient(sabnzbd.Config{Host: fakeSabnzbd(t).URL, APIKey: "key"})

	metricsManager := metrics.NewManager()
	searchService := search.NewService(indexer, blacklistStore, cfg)
	downloadService := download.NewService(attemptStore, mediaStore, blacklistStore, client, metricsManager, cfg)
	postProcessService := postprocess.NewService(attemptStore, mediaStore, metricsManager, cfg)

	return NewRouter(Deps{
		Config:             cfg,
		MediaStore:         mediaStore,
		AttemptStore:       attemptStore,
		BlacklistStore:     blacklistStore,
		SearchService:      searchService,
		DownloadService:    downloadService,
		PostProcessService: postProcessService,
		Metrics:            metricsManager,
		Indexer:            indexer,
		DownloadClient:     client,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMediaLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	router := setupRouter(t)

	// Create a media item.
	rec := doJSON(t, router, http.MethodPost, "/api/media", map[string]any{
		"kind":    "book",
		"title":   "Dune Messiah",
		"authors": []string{"Frank Herbert"},
		"isbn13":  "9780441172696",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var item models.MediaItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	// Search for releases.
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/media/%s/search", item.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []search.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "guid-1", results[0].IndexerReleaseID)

	// Initiate the download.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/media/%s/downloads", item.ID), map[string]any{
		"indexer":          results[0].Indexer,
		"indexerReleaseId": results[0].IndexerReleaseID,
		"title":            results[0].Title,
		"protocol":         results[0].Protocol,
		"downloadUrl":      results[0].DownloadURL,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var attempt models.DownloadAttempt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempt))
	assert.Equal(t, models.AttemptStatusSent, attempt.Status)

	// A second initiation conflicts.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/media/%s/downloads", item.ID), map[string]any{
		"indexer":          "alpha",
		"indexerReleaseId": "guid-2",
		"protocol":         "usenet",
		"downloadUrl":      "http://indexer.test/dl/guid-2",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A torrent release is rejected outright, not recorded as an attempt.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/media/%s/downloads", item.ID), map[string]any{
		"indexer":          "alpha",
		"indexerReleaseId": "guid-3",
		"protocol":         "torrent",
		"downloadUrl":      "http://indexer.test/dl/guid-3",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Poll reconciles against the fake queue.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/downloads/%s/poll", attempt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var poll download.PollResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
	assert.Equal(t, models.AttemptStatusDownloading, poll.Attempt.Status)
	assert.InDelta(t, 0.5, poll.Progress, 0.001)

	// Blacklist the release.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/downloads/%s/blacklist", attempt.ID), map[string]any{
		"reason":  "corrupted",
		"details": "unreadable file",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/media/%s/blacklist", item.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []models.BlacklistEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, models.BlacklistReasonCorrupted, entries[0].Reason)

	// The blacklisted release no longer appears in search results.
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/media/%s/search", item.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Empty(t, results)

	// Delete the attempt.
	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/downloads/%s/", attempt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidIDsRejected(t *testing.T) {
	t.Parallel()

	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/media/not-a-uuid/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/downloads/not-a-uuid/poll", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health/liveness", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/health/readiness", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "omnireadarr_downloads_initiated_total")
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package download owns the download attempt lifecycle: initiating attempts
// against the download client, reconciling their status against the client's
// queue and history, blacklisting releases and removing attempts.
package download

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/metrics"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/internal/services/search"
	"github.com/robogeeko/OmniReadarr/pkg/pathutil"
	"github.com/robogeeko/OmniReadarr/pkg/sabnzbd"
)

// supportedProtocol is the only release protocol the download client speaks.
const supportedProtocol = "usenet"

// Client is the download client dependency.
type Client interface {
	AddURL(ctx context.Context, downloadURL, name, category string) (string, error)
	Queue(ctx context.Context) ([]sabnzbd.QueueSlot, error)
	History(ctx context.Context, limit int) ([]sabnzbd.HistorySlot, error)
	Delete(ctx context.Context, nzoID string, deleteFiles bool) error
}

// Service coordinates download attempts for media items.
type Service struct {
	attemptStore   *models.AttemptStore
	mediaStore     *models.MediaStore
	blacklistStore *models.BlacklistStore
	client         Client
	metrics        *metrics.Manager
	category       string
	historyLimit   int

	completedDownloadsPath string
	libraryPath            string

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewService creates a download Service.
func NewService(
	attemptStore *models.AttemptStore,
	mediaStore *models.MediaStore,
	blacklistStore *models.BlacklistStore,
	client Client,
	metricsManager *metrics.Manager,
	cfg *domain.Config,
) *Service {
	historyLimit := cfg.HistoryLookbackLimit
	if historyLimit <= 0 {
		historyLimit = 50
	}

	return &Service{
		attemptStore:   attemptStore,
		mediaStore:     mediaStore,
		blacklistStore: blacklistStore,
		client:         client,
		metrics:        metricsManager,
		category:       cfg.SabnzbdCategory,
		historyLimit:   historyLimit,

		completedDownloadsPath: cfg.CompletedDownloadsPath,
		libraryPath:            cfg.LibraryPath,

		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// mediaLock returns the per-media mutex, creating it on first use. Locks are
// never reclaimed; the map grows with the catalog, which stays small.
func (s *Service) mediaLock(mediaID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[mediaID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[mediaID] = lock
	}
	return lock
}

// Initiate creates a download attempt for the candidate and submits it to the
// download client. At most one attempt per media item may be active; a second
// initiation while one is in flight fails with active_download_exists.
func (s *Service) Initiate(ctx context.Context, mediaID uuid.UUID, candidate search.Result) (*models.DownloadAttempt, error) {
	if candidate.Indexer == "" || candidate.IndexerReleaseID == "" {
		return nil, domain.NewError(domain.ErrKindValidation, "candidate is missing its indexer identity")
	}
	if !strings.EqualFold(candidate.Protocol, supportedProtocol) {
		return nil, domain.NewError(domain.ErrKindValidation,
			"protocol %q is not supported by the download client", candidate.Protocol)
	}
	downloadURL, err := resolveDownloadURL(candidate)
	if err != nil {
		return nil, err
	}

	item, err := s.mediaStore.Get(ctx, mediaID)
	if err != nil {
		if errors.Is(err, models.ErrMediaNotFound) {
			return nil, domain.NewError(domain.ErrKindNotFound, "media item %s not found", mediaID)
		}
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to load media item")
	}

	blacklisted, err := s.blacklistStore.IsBlacklisted(ctx, mediaID, candidate.Indexer, candidate.IndexerReleaseID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to check blacklist")
	}
	if blacklisted {
		return nil, domain.NewError(domain.ErrKindValidation, "release %s/%s is blacklisted for this media item",
			candidate.Indexer, candidate.IndexerReleaseID)
	}

	lock := s.mediaLock(mediaID)
	lock.Lock()
	defer lock.Unlock()

	attempt, err := s.attemptStore.CreateIfNoActive(ctx, &models.DownloadAttempt{
		MediaID:          mediaID,
		Indexer:          candidate.Indexer,
		IndexerReleaseID: candidate.IndexerReleaseID,
		ReleaseTitle:     candidate.Title,
		DownloadURL:      downloadURL,
		Protocol:         candidate.Protocol,
		FileSize:         candidate.SizeBytes,
		Seeders:          candidate.Seeders,
		Leechers:         candidate.Leechers,
		Status:           models.AttemptStatusPending,
	})
	if err != nil {
		if errors.Is(err, models.ErrActiveAttemptExists) {
			return nil, domain.WrapError(domain.ErrKindActiveDownloadExists, err,
				"media item %s already has an active download", mediaID)
		}
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to create download attempt")
	}

	jobID, err := s.client.AddURL(ctx, downloadURL, candidate.Title, s.category)
	if err != nil {
		failMsg := err.Error()
		if setErr := s.attemptStore.SetStatus(ctx, attempt.ID, models.AttemptStatusFailed,
			string(domain.ErrKindConnectivity), failMsg); setErr != nil {
			log.Error().Err(setErr).Str("attemptId", attempt.ID.String()).Msg("Failed to mark attempt failed")
		}
		s.metrics.DownloadsFailed.WithLabelValues(string(domain.ErrKindConnectivity)).Inc()
		return nil, domain.WrapError(domain.ErrKindConnectivity, err, "download client rejected submission")
	}

	if err := s.attemptStore.SetClientJobID(ctx, attempt.ID, jobID); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to record client job id")
	}
	if err := s.attemptStore.SetStatus(ctx, attempt.ID, models.AttemptStatusSent, "", ""); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt sent")
	}

	if err := s.mediaStore.UpdateStatus(ctx, mediaID, models.MediaStatusDownloading); err != nil {
		log.Warn().Err(err).Str("mediaId", mediaID.String()).Msg("Failed to update media status")
	}

	s.metrics.DownloadsInitiated.Inc()

	log.Info().
		Str("mediaId", mediaID.String()).
		Str("attemptId", attempt.ID.String()).
		Str("indexer", candidate.Indexer).
		Str("jobId", jobID).
		Str("title", item.Title).
		Msg("Download initiated")

	return s.attemptStore.Get(ctx, attempt.ID)
}

// resolveDownloadURL picks the URL submitted to the download client: the
// explicit download URL when present, otherwise the release id when it is
// itself a URL (some Prowlarr indexers serve the grab link as the GUID).
func resolveDownloadURL(candidate search.Result) (string, error) {
	if raw := strings.TrimSpace(candidate.DownloadURL); raw != "" {
		if !isHTTPURL(raw) {
			return "", domain.NewError(domain.ErrKindValidation, "download url %q is not http(s)", raw)
		}
		return raw, nil
	}
	if raw := strings.TrimSpace(candidate.IndexerReleaseID); isHTTPURL(raw) {
		return raw, nil
	}
	return "", domain.NewError(domain.ErrKindValidation, "candidate has no usable download url")
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// MarkBlacklisted flags the attempt's release so it is never offered again,
// moves the attempt to the blacklisted state and recomputes the media status.
func (s *Service) MarkBlacklisted(ctx context.Context, attemptID uuid.UUID, reason models.BlacklistReason, details, actor string) (*models.DownloadAttempt, error) {
	attempt, err := s.attemptStore.Get(ctx, attemptID)
	if err != nil {
		if errors.Is(err, models.ErrAttemptNotFound) {
			return nil, domain.NewError(domain.ErrKindNotFound, "download attempt %s not found", attemptID)
		}
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to load download attempt")
	}

	entry := &models.BlacklistEntry{
		MediaID:          attempt.MediaID,
		Indexer:          attempt.Indexer,
		IndexerReleaseID: attempt.IndexerReleaseID,
		ReleaseTitle:     attempt.ReleaseTitle,
		DownloadURL:      attempt.DownloadURL,
		Reason:           reason,
		ReasonDetails:    details,
		Actor:            actor,
	}
	if err := s.blacklistStore.Add(ctx, entry); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to add blacklist entry")
	}

	if err := s.attemptStore.SetStatus(ctx, attemptID, models.AttemptStatusBlacklisted, "", string(entry.Reason)); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt blacklisted")
	}

	// If the blacklisted attempt was the in-flight one, remove the job from the
	// client too. Best effort: the blacklist entry is already durable.
	if attempt.Status.IsActive() && attempt.ClientJobID != "" {
		if err := s.client.Delete(ctx, attempt.ClientJobID, true); err != nil {
			log.Warn().Err(err).Str("jobId", attempt.ClientJobID).Msg("Failed to remove blacklisted job from download client")
		}
	}

	if err := s.recomputeMediaStatus(ctx, attempt.MediaID); err != nil {
		log.Warn().Err(err).Str("mediaId", attempt.MediaID.String()).Msg("Failed to recompute media status")
	}

	s.metrics.BlacklistAdditions.WithLabelValues(string(entry.Reason)).Inc()

	log.Info().
		Str("attemptId", attemptID.String()).
		Str("reason", string(entry.Reason)).
		Str("actor", entry.Actor).
		Msg("Release blacklisted")

	return s.attemptStore.Get(ctx, attemptID)
}

// Delete removes an attempt record. An active job is cancelled at the client
// and downloaded files are removed; both are best effort and never block the
// record deletion.
func (s *Service) Delete(ctx context.Context, attemptID uuid.UUID, deleteFiles bool) error {
	attempt, err := s.attemptStore.Get(ctx, attemptID)
	if err != nil {
		if errors.Is(err, models.ErrAttemptNotFound) {
			return domain.NewError(domain.ErrKindNotFound, "download attempt %s not found", attemptID)
		}
		return domain.WrapError(domain.ErrKindStorage, err, "failed to load download attempt")
	}

	if attempt.ClientJobID != "" && !attempt.Status.IsTerminal() {
		if err := s.client.Delete(ctx, attempt.ClientJobID, deleteFiles); err != nil {
			log.Warn().Err(err).Str("jobId", attempt.ClientJobID).Msg("Failed to cancel job at download client")
		}
	}

	if deleteFiles {
		s.removeAttemptPath(attempt.RawFilePath, s.completedDownloadsPath)
		s.removeAttemptPath(attempt.PostProcessedFilePath, s.libraryPath)
	}

	if err := s.attemptStore.Delete(ctx, attemptID); err != nil {
		return domain.WrapError(domain.ErrKindStorage, err, "failed to delete download attempt")
	}

	if err := s.recomputeMediaStatus(ctx, attempt.MediaID); err != nil {
		log.Warn().Err(err).Str("mediaId", attempt.MediaID.String()).Msg("Failed to recompute media status")
	}

	log.Info().Str("attemptId", attemptID.String()).Bool("deleteFiles", deleteFiles).Msg("Download attempt deleted")

	return nil
}

// removeAttemptPath deletes a tracked file or directory, refusing paths that
// fall outside the owning root. SABnzbd reports a directory as the storage
// path of a multi-file job, so removal handles both shapes.
func (s *Service) removeAttemptPath(path, root string) {
	if path == "" {
		return
	}
	if root == "" || !pathutil.WithinRoot(root, path) {
		log.Warn().Str("path", path).Str("root", root).Msg("Refusing to remove attempt file outside its root")
		return
	}
	if err := os.RemoveAll(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove attempt file")
	}
}

// recomputeMediaStatus derives the media status from its surviving attempts:
// an active attempt keeps it downloading, a downloaded attempt keeps it
// downloaded, otherwise it reverts to wanted. Processed and archived media are
// left alone.
func (s *Service) recomputeMediaStatus(ctx context.Context, mediaID uuid.UUID) error {
	item, err := s.mediaStore.Get(ctx, mediaID)
	if err != nil {
		return err
	}
	if item.Status == models.MediaStatusProcessed || item.Status == models.MediaStatusArchived {
		return nil
	}

	active, err := s.attemptStore.CountByMediaAndStatuses(ctx, mediaID,
		[]models.AttemptStatus{models.AttemptStatusSent, models.AttemptStatusDownloading}, uuid.Nil)
	if err != nil {
		return err
	}
	if active > 0 {
		return s.mediaStore.UpdateStatus(ctx, mediaID, models.MediaStatusDownloading)
	}

	downloaded, err := s.attemptStore.CountByMediaAndStatuses(ctx, mediaID,
		[]models.AttemptStatus{models.AttemptStatusDownloaded}, uuid.Nil)
	if err != nil {
		return err
	}
	if downloaded > 0 {
		return s.mediaStore.UpdateStatus(ctx, mediaID, models.MediaStatusDownloaded)
	}

	return s.mediaStore.UpdateStatus(ctx, mediaID, models.MediaStatusWanted)
}

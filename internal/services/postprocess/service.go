// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package postprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/metrics"
	"github.com/robogeeko/OmniReadarr/internal/models"
)

// Result reports one post-processing run. Warnings carry best-effort failures
// (cover fetch, media status updates) that did not stop the pipeline.
type Result struct {
	Attempt     *models.DownloadAttempt `json:"attempt"`
	LibraryPath string                  `json:"library_path"`
	CoverPath   string                  `json:"cover_path,omitempty"`
	Warnings    []string                `json:"warnings,omitempty"`
}

// Service runs the two post-processing stages over downloaded attempts.
type Service struct {
	attemptStore *models.AttemptStore
	mediaStore   *models.MediaStore
	converter    *Converter
	organizer    *Organizer
	coverFetcher *CoverFetcher
	metrics      *metrics.Manager

	completedDownloadsPath string
}

// NewService creates a post-processing Service.
func NewService(
	attemptStore *models.AttemptStore,
	mediaStore *models.MediaStore,
	metricsManager *metrics.Manager,
	cfg *domain.Config,
) *Service {
	return &Service{
		attemptStore:           attemptStore,
		mediaStore:             mediaStore,
		converter:              NewConverter(cfg.EbookConvertPath, cfg.ConvertTimeoutSeconds),
		organizer:              NewOrganizer(cfg.LibraryPath),
		coverFetcher:           NewCoverFetcher(cfg.CoverFetchTimeoutSeconds),
		metrics:                metricsManager,
		completedDownloadsPath: cfg.CompletedDownloadsPath,
	}
}

func (s *Service) load(ctx context.Context, attemptID uuid.UUID) (*models.DownloadAttempt, *models.MediaItem, error) {
	attempt, err := s.attemptStore.Get(ctx, attemptID)
	if err != nil {
		if errors.Is(err, models.ErrAttemptNotFound) {
			return nil, nil, domain.NewError(domain.ErrKindNotFound, "download attempt %s not found", attemptID)
		}
		return nil, nil, domain.WrapError(domain.ErrKindStorage, err, "failed to load download attempt")
	}

	item, err := s.mediaStore.Get(ctx, attempt.MediaID)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrKindStorage, err, "failed to load media item")
	}

	return attempt, item, nil
}

// sourceFile resolves the file a stage should work from: the recorded raw
// path when it still exists, otherwise discovery in the completed downloads
// directory.
func (s *Service) sourceFile(attempt *models.DownloadAttempt, kind models.MediaKind) (string, error) {
	if attempt.RawFilePath != "" {
		if resolved, err := resolveRecordedPath(attempt.RawFilePath, attempt, kind); err == nil {
			return resolved, nil
		}
	}
	return Discover(s.completedDownloadsPath, attempt, kind)
}

// Convert runs the conversion stage for a downloaded attempt and records the
// converted file on the attempt.
func (s *Service) Convert(ctx context.Context, attemptID uuid.UUID) (*models.DownloadAttempt, error) {
	attempt, item, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptStatusDownloaded {
		return nil, domain.NewError(domain.ErrKindValidation,
			"attempt %s is %s, only downloaded attempts can be converted", attemptID, attempt.Status)
	}

	if item.Kind == models.MediaKindAudiobook {
		// Audiobooks keep their container; conversion is a no-op stage.
		return attempt, nil
	}

	sourcePath, err := s.sourceFile(attempt, item.Kind)
	if err != nil {
		return nil, err
	}

	convertedPath, err := s.converter.Convert(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	if err := s.attemptStore.SetPostProcessedFilePath(ctx, attemptID, convertedPath); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to record converted file")
	}

	return s.attemptStore.Get(ctx, attemptID)
}

// Organize runs the organization stage: the converted (or raw) file is copied
// into the library, the OPF sidecar written, the cover fetched best-effort,
// and the media and attempt records updated.
func (s *Service) Organize(ctx context.Context, attemptID uuid.UUID) (*Result, error) {
	attempt, item, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptStatusDownloaded {
		return nil, domain.NewError(domain.ErrKindValidation,
			"attempt %s is %s, only downloaded attempts can be organized", attemptID, attempt.Status)
	}

	sourcePath := attempt.PostProcessedFilePath
	if sourcePath == "" {
		sourcePath, err = s.sourceFile(attempt, item.Kind)
		if err != nil {
			return nil, err
		}
	}

	destPath, err := s.organizer.Organize(sourcePath, item)
	if err != nil {
		return nil, err
	}

	result := &Result{LibraryPath: destPath}

	// A directory destination (multi-file audiobook) holds its own sidecar.
	destDir := filepath.Dir(destPath)
	if info, statErr := os.Stat(destPath); statErr == nil && info.IsDir() {
		destDir = destPath
	}

	if _, err := WriteOPF(destDir, item); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to write metadata sidecar")
	}

	if item.CoverURL != "" {
		coverPath, err := s.coverFetcher.Fetch(ctx, item.CoverURL, destDir)
		if err != nil {
			log.Warn().Err(err).Str("mediaId", item.ID.String()).Msg("Cover fetch failed")
			result.Warnings = append(result.Warnings, "cover fetch failed: "+err.Error())
		} else {
			result.CoverPath = coverPath
		}
	}

	if err := s.attemptStore.SetPostProcessedFilePath(ctx, attemptID, destPath); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to record library file")
	}
	if err := s.mediaStore.UpdateLibraryPaths(ctx, item.ID, destPath, result.CoverPath); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to update media paths")
	}

	attempt, err = s.attemptStore.Get(ctx, attemptID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to reload download attempt")
	}
	result.Attempt = attempt

	return result, nil
}

// Process runs both stages and moves the attempt's post-process status
// through processing to completed or failed. The media item is marked
// processed on success.
func (s *Service) Process(ctx context.Context, attemptID uuid.UUID) (*Result, error) {
	attempt, _, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptStatusDownloaded {
		return nil, domain.NewError(domain.ErrKindValidation,
			"attempt %s is %s, only downloaded attempts can be processed", attemptID, attempt.Status)
	}

	if err := s.attemptStore.SetPostProcessStatus(ctx, attemptID, models.PostProcessProcessing, "", ""); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt processing")
	}

	if _, err := s.Convert(ctx, attemptID); err != nil {
		s.failPostProcess(ctx, attemptID, err)
		return nil, err
	}

	result, err := s.Organize(ctx, attemptID)
	if err != nil {
		s.failPostProcess(ctx, attemptID, err)
		return nil, err
	}

	if err := s.attemptStore.SetPostProcessStatus(ctx, attemptID, models.PostProcessCompleted, "", ""); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt completed")
	}
	if err := s.mediaStore.UpdateStatus(ctx, result.Attempt.MediaID, models.MediaStatusProcessed); err != nil {
		log.Warn().Err(err).Str("mediaId", result.Attempt.MediaID.String()).Msg("Failed to update media status")
		result.Warnings = append(result.Warnings, "media status update failed")
	}

	s.metrics.FilesProcessed.WithLabelValues("success").Inc()

	attemptAfter, err := s.attemptStore.Get(ctx, attemptID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to reload download attempt")
	}
	result.Attempt = attemptAfter

	log.Info().
		Str("attemptId", attemptID.String()).
		Str("libraryPath", result.LibraryPath).
		Int("warnings", len(result.Warnings)).
		Msg("Post-processing completed")

	return result, nil
}

func (s *Service) failPostProcess(ctx context.Context, attemptID uuid.UUID, cause error) {
	kind := string(domain.KindOf(cause))
	if err := s.attemptStore.SetPostProcessStatus(ctx, attemptID, models.PostProcessFailed, kind, cause.Error()); err != nil {
		log.Error().Err(err).Str("attemptId", attemptID.String()).Msg("Failed to record post-process failure")
	}
	s.metrics.FilesProcessed.WithLabelValues("failure").Inc()
}

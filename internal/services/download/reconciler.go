// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/pkg/sabnzbd"
)

// errorKindClientFailure classifies attempts the download client itself
// reported as failed, as opposed to jobs that vanished from tracking.
const errorKindClientFailure = "failed_download"

// PollResult is the reconciled view of an attempt after one poll.
type PollResult struct {
	Attempt  *models.DownloadAttempt `json:"attempt"`
	Progress float64                 `json:"progress"`
}

// Poll reconciles the attempt against the download client's queue and
// history. Terminal attempts are returned unchanged. A tracked job missing
// from both the queue and the recent history fails the attempt with a
// lost-tracking marker.
func (s *Service) Poll(ctx context.Context, attemptID uuid.UUID) (*PollResult, error) {
	attempt, err := s.attemptStore.Get(ctx, attemptID)
	if err != nil {
		if errors.Is(err, models.ErrAttemptNotFound) {
			return nil, domain.NewError(domain.ErrKindNotFound, "download attempt %s not found", attemptID)
		}
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to load download attempt")
	}

	if attempt.Status.IsTerminal() || attempt.Status == models.AttemptStatusPending {
		progress := 0.0
		if attempt.Status == models.AttemptStatusDownloaded {
			progress = 1
		}
		return &PollResult{Attempt: attempt, Progress: progress}, nil
	}

	queue, err := s.client.Queue(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrKindConnectivity, err, "failed to read download client queue")
	}

	if slot := matchQueueSlot(queue, attempt); slot != nil {
		return s.reconcileQueued(ctx, attempt, slot)
	}

	history, err := s.client.History(ctx, s.historyLimit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrKindConnectivity, err, "failed to read download client history")
	}

	if slot := matchHistorySlot(history, attempt); slot != nil {
		return s.reconcileFinished(ctx, attempt, slot)
	}

	// The client has forgotten a job we were tracking.
	if err := s.attemptStore.SetStatus(ctx, attempt.ID, models.AttemptStatusFailed,
		string(domain.ErrKindLostTracking), "download client no longer reports this job"); err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt lost")
	}
	s.metrics.DownloadsFailed.WithLabelValues(string(domain.ErrKindLostTracking)).Inc()

	log.Warn().
		Str("attemptId", attempt.ID.String()).
		Str("jobId", attempt.ClientJobID).
		Msg("Download job lost from client tracking")

	if err := s.recomputeMediaStatus(ctx, attempt.MediaID); err != nil {
		log.Warn().Err(err).Str("mediaId", attempt.MediaID.String()).Msg("Failed to recompute media status")
	}

	refreshed, err := s.attemptStore.Get(ctx, attempt.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to reload download attempt")
	}
	return &PollResult{Attempt: refreshed}, nil
}

func (s *Service) reconcileQueued(ctx context.Context, attempt *models.DownloadAttempt, slot *sabnzbd.QueueSlot) (*PollResult, error) {
	// Queued, Paused and Downloading all map to downloading internally; the
	// queue slot carries the distinction in its progress only.
	if attempt.Status != models.AttemptStatusDownloading {
		if err := s.attemptStore.SetStatus(ctx, attempt.ID, models.AttemptStatusDownloading, "", ""); err != nil {
			return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt downloading")
		}
	}

	if attempt.ClientJobID == "" && slot.NzoID != "" {
		if err := s.attemptStore.SetClientJobID(ctx, attempt.ID, slot.NzoID); err != nil {
			return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to record recovered job id")
		}
	}

	refreshed, err := s.attemptStore.Get(ctx, attempt.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to reload download attempt")
	}
	return &PollResult{Attempt: refreshed, Progress: slot.Progress()}, nil
}

func (s *Service) reconcileFinished(ctx context.Context, attempt *models.DownloadAttempt, slot *sabnzbd.HistorySlot) (*PollResult, error) {
	switch slot.Status {
	case sabnzbd.StatusCompleted:
		if slot.Storage != "" {
			if err := s.attemptStore.SetRawFilePath(ctx, attempt.ID, slot.Storage); err != nil {
				return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to record raw file path")
			}
		}
		if err := s.attemptStore.SetStatus(ctx, attempt.ID, models.AttemptStatusDownloaded, "", ""); err != nil {
			return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt downloaded")
		}
		if err := s.mediaStore.UpdateStatus(ctx, attempt.MediaID, models.MediaStatusDownloaded); err != nil {
			log.Warn().Err(err).Str("mediaId", attempt.MediaID.String()).Msg("Failed to update media status")
		}
		s.metrics.DownloadsCompleted.Inc()

		log.Info().
			Str("attemptId", attempt.ID.String()).
			Str("storage", slot.Storage).
			Msg("Download completed")

	case sabnzbd.StatusFailed, sabnzbd.StatusDeleted:
		message := slot.FailMessage
		if message == "" {
			message = "download client reported " + strings.ToLower(slot.Status)
		}
		if err := s.attemptStore.SetStatus(ctx, attempt.ID, models.AttemptStatusFailed,
			errorKindClientFailure, message); err != nil {
			return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt failed")
		}
		s.metrics.DownloadsFailed.WithLabelValues(errorKindClientFailure).Inc()

		if err := s.recomputeMediaStatus(ctx, attempt.MediaID); err != nil {
			log.Warn().Err(err).Str("mediaId", attempt.MediaID.String()).Msg("Failed to recompute media status")
		}

		log.Warn().
			Str("attemptId", attempt.ID.String()).
			Str("failMessage", message).
			Msg("Download failed at client")

	default:
		// Anything else in history (e.g. still post-processing inside the
		// client) keeps the attempt in downloading.
		if attempt.Status != models.AttemptStatusDownloading {
			if err := s.attemptStore.SetStatus(ctx, attempt.ID, models.AttemptStatusDownloading, "", ""); err != nil {
				return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to mark attempt downloading")
			}
		}
	}

	refreshed, err := s.attemptStore.Get(ctx, attempt.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to reload download attempt")
	}

	progress := 0.0
	if refreshed.Status == models.AttemptStatusDownloaded {
		progress = 1
	}
	return &PollResult{Attempt: refreshed, Progress: progress}, nil
}

// matchQueueSlot finds the queue slot for an attempt: by job handle when we
// have one, by release title similarity only as a fallback.
func matchQueueSlot(slots []sabnzbd.QueueSlot, attempt *models.DownloadAttempt) *sabnzbd.QueueSlot {
	if attempt.ClientJobID != "" {
		for i := range slots {
			if slots[i].NzoID == attempt.ClientJobID {
				return &slots[i]
			}
		}
		return nil
	}

	for i := range slots {
		if titlesSimilar(attempt.ReleaseTitle, slots[i].Filename) {
			return &slots[i]
		}
	}
	return nil
}

func matchHistorySlot(slots []sabnzbd.HistorySlot, attempt *models.DownloadAttempt) *sabnzbd.HistorySlot {
	if attempt.ClientJobID != "" {
		for i := range slots {
			if slots[i].NzoID == attempt.ClientJobID {
				return &slots[i]
			}
		}
		return nil
	}

	for i := range slots {
		if titlesSimilar(attempt.ReleaseTitle, slots[i].Name) {
			return &slots[i]
		}
	}
	return nil
}

// titlesSimilar normalizes release and job names before comparing, since
// clients commonly rewrite spaces to dots and strip punctuation.
func titlesSimilar(releaseTitle, jobName string) bool {
	a := normalizeTitle(releaseTitle)
	b := normalizeTitle(jobName)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return true
	}
	return fuzzy.MatchNormalizedFold(a, b)
}

func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	for _, sep := range []string{".", "_", "-"} {
		s = strings.ReplaceAll(s, sep, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

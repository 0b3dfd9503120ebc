// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/robogeeko/OmniReadarr/internal/dbinterface"
)

var (
	ErrAttemptNotFound = errors.New("download attempt not found")

	// ErrActiveAttemptExists is returned by CreateIfNoActive when the media
	// item already has an attempt in SENT or DOWNLOADING.
	ErrActiveAttemptExists = errors.New("media item already has an active download attempt")
)

// AttemptStatus is the lifecycle status of a download attempt.
type AttemptStatus string

const (
	AttemptStatusPending     AttemptStatus = "pending"
	AttemptStatusSent        AttemptStatus = "sent"
	AttemptStatusDownloading AttemptStatus = "downloading"
	AttemptStatusDownloaded  AttemptStatus = "downloaded"
	AttemptStatusFailed      AttemptStatus = "failed"
	AttemptStatusBlacklisted AttemptStatus = "blacklisted"
)

// IsTerminal reports whether the status permits no further reconciler
// transitions.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptStatusDownloaded, AttemptStatusFailed, AttemptStatusBlacklisted:
		return true
	}
	return false
}

// IsActive reports whether the status counts against the single-active-attempt
// invariant.
func (s AttemptStatus) IsActive() bool {
	return s == AttemptStatusSent || s == AttemptStatusDownloading
}

// PostProcessStatus tracks the post-processing pipeline for an attempt.
type PostProcessStatus string

const (
	PostProcessPending    PostProcessStatus = "pending"
	PostProcessProcessing PostProcessStatus = "processing"
	PostProcessCompleted  PostProcessStatus = "completed"
	PostProcessFailed     PostProcessStatus = "failed"
)

// DownloadAttempt is one tracked try at acquiring a specific release for a
// media item.
type DownloadAttempt struct {
	ID                      uuid.UUID         `json:"id"`
	MediaID                 uuid.UUID         `json:"media_id"`
	Indexer                 string            `json:"indexer"`
	IndexerReleaseID        string            `json:"indexer_release_id"`
	ReleaseTitle            string            `json:"release_title"`
	DownloadURL             string            `json:"download_url"`
	Protocol                string            `json:"protocol"`
	FileSize                *int64            `json:"file_size,omitempty"`
	Seeders                 *int              `json:"seeders,omitempty"`
	Leechers                *int              `json:"leechers,omitempty"`
	Status                  AttemptStatus     `json:"status"`
	ErrorKind               string            `json:"error_kind"`
	ErrorMessage            string            `json:"error_message"`
	ClientJobID             string            `json:"client_job_id"`
	RawFilePath             string            `json:"raw_file_path"`
	PostProcessedFilePath   string            `json:"post_processed_file_path"`
	PostProcessStatus       PostProcessStatus `json:"post_process_status"`
	PostProcessErrorKind    string            `json:"post_process_error_kind"`
	PostProcessErrorMessage string            `json:"post_process_error_message"`
	AttemptedAt             time.Time         `json:"attempted_at"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// AttemptStore manages download attempts in the database.
type AttemptStore struct {
	db dbinterface.TxBeginner
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(db dbinterface.TxBeginner) *AttemptStore {
	return &AttemptStore{db: db}
}

const attemptColumns = `id, media_id, indexer, indexer_release_id, release_title,
	download_url, protocol, file_size, seeders, leechers, status, error_kind,
	error_message, client_job_id, raw_file_path, post_processed_file_path,
	post_process_status, post_process_error_kind, post_process_error_message,
	attempted_at, created_at, updated_at`

// CreateIfNoActive inserts the attempt only when the owning media item has no
// attempt in SENT or DOWNLOADING. The check and insert run in one transaction
// so concurrent initiations for the same media item cannot both succeed.
func (s *AttemptStore) CreateIfNoActive(ctx context.Context, attempt *DownloadAttempt) (*DownloadAttempt, error) {
	if attempt.MediaID == uuid.Nil {
		return nil, errors.New("media id is required")
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.Status == "" {
		attempt.Status = AttemptStatusPending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM download_attempts
		WHERE media_id = ? AND status IN (?, ?)
	`, attempt.MediaID.String(), string(AttemptStatusSent), string(AttemptStatusDownloading)).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempts: %w", err)
	}
	if active > 0 {
		return nil, ErrActiveAttemptExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO download_attempts (id, media_id, indexer, indexer_release_id,
			release_title, download_url, protocol, file_size, seeders, leechers, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attempt.ID.String(), attempt.MediaID.String(), attempt.Indexer,
		attempt.IndexerReleaseID, attempt.ReleaseTitle, attempt.DownloadURL,
		attempt.Protocol, attempt.FileSize, attempt.Seeders, attempt.Leechers,
		string(attempt.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create download attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit download attempt: %w", err)
	}

	return s.Get(ctx, attempt.ID)
}

// Get retrieves a download attempt by ID.
func (s *AttemptStore) Get(ctx context.Context, id uuid.UUID) (*DownloadAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM download_attempts WHERE id = ?`

	attempt, err := scanAttempt(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get download attempt: %w", err)
	}

	return attempt, nil
}

// ListByMedia retrieves all attempts for a media item, most recent first.
func (s *AttemptStore) ListByMedia(ctx context.Context, mediaID uuid.UUID) ([]*DownloadAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM download_attempts
		WHERE media_id = ? ORDER BY attempted_at DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, mediaID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list download attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*DownloadAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating download attempts: %w", err)
	}

	return attempts, nil
}

// CountByMediaAndStatuses counts the media item's attempts holding any of the
// given statuses, excluding excludeID when non-nil.
func (s *AttemptStore) CountByMediaAndStatuses(ctx context.Context, mediaID uuid.UUID, statuses []AttemptStatus, excludeID uuid.UUID) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	query := `SELECT COUNT(*) FROM download_attempts WHERE media_id = ? AND id != ? AND status IN (`
	args := []any{mediaID.String(), excludeID.String()}
	for i, status := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(status))
	}
	query += ")"

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count download attempts: %w", err)
	}

	return count, nil
}

// SetStatus updates the lifecycle status and error record of an attempt.
// Passing empty error values clears any previous error.
func (s *AttemptStore) SetStatus(ctx context.Context, id uuid.UUID, status AttemptStatus, errorKind, errorMessage string) error {
	query := `
		UPDATE download_attempts
		SET status = ?, error_kind = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	return s.exec(ctx, query, string(status), errorKind, errorMessage, id.String())
}

// SetClientJobID records the external job handle assigned by the download
// client.
func (s *AttemptStore) SetClientJobID(ctx context.Context, id uuid.UUID, jobID string) error {
	query := `UPDATE download_attempts SET client_job_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(ctx, query, jobID, id.String())
}

// SetRawFilePath records the completed download's file location.
func (s *AttemptStore) SetRawFilePath(ctx context.Context, id uuid.UUID, path string) error {
	query := `UPDATE download_attempts SET raw_file_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(ctx, query, path, id.String())
}

// SetPostProcessedFilePath records the converted/organized file location.
func (s *AttemptStore) SetPostProcessedFilePath(ctx context.Context, id uuid.UUID, path string) error {
	query := `UPDATE download_attempts SET post_processed_file_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(ctx, query, path, id.String())
}

// SetPostProcessStatus updates the post-processing status and error record.
func (s *AttemptStore) SetPostProcessStatus(ctx context.Context, id uuid.UUID, status PostProcessStatus, errorKind, errorMessage string) error {
	query := `
		UPDATE download_attempts
		SET post_process_status = ?, post_process_error_kind = ?,
			post_process_error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	return s.exec(ctx, query, string(status), errorKind, errorMessage, id.String())
}

// Delete removes an attempt record.
func (s *AttemptStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM download_attempts WHERE id = ?`
	return s.exec(ctx, query, id.String())
}

func (s *AttemptStore) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update download attempt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAttemptNotFound
	}

	return nil
}

func scanAttempt(row rowScanner) (*DownloadAttempt, error) {
	var (
		attempt           DownloadAttempt
		id                string
		mediaID           string
		status            string
		postProcessStatus string
	)

	err := row.Scan(
		&id, &mediaID, &attempt.Indexer, &attempt.IndexerReleaseID,
		&attempt.ReleaseTitle, &attempt.DownloadURL, &attempt.Protocol,
		&attempt.FileSize, &attempt.Seeders, &attempt.Leechers, &status,
		&attempt.ErrorKind, &attempt.ErrorMessage, &attempt.ClientJobID,
		&attempt.RawFilePath, &attempt.PostProcessedFilePath, &postProcessStatus,
		&attempt.PostProcessErrorKind, &attempt.PostProcessErrorMessage,
		&attempt.AttemptedAt, &attempt.CreatedAt, &attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid attempt id %q: %w", id, err)
	}
	attempt.MediaID, err = uuid.Parse(mediaID)
	if err != nil {
		return nil, fmt.Errorf("invalid media id %q: %w", mediaID, err)
	}
	attempt.Status = AttemptStatus(status)
	attempt.PostProcessStatus = PostProcessStatus(postProcessStatus)

	return &attempt, nil
}

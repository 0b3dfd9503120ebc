// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/robogeeko/OmniReadarr/internal/dbinterface"
)

// BlacklistReason records why a release was blacklisted.
type BlacklistReason string

const (
	BlacklistReasonFailedDownload BlacklistReason = "failed_download"
	BlacklistReasonWrongFile      BlacklistReason = "wrong_file"
	BlacklistReasonCorrupted      BlacklistReason = "corrupted"
	BlacklistReasonLowQuality     BlacklistReason = "low_quality"
	BlacklistReasonManual         BlacklistReason = "manual"
)

// BlacklistEntry identifies a release that must never be offered again for a
// given media item. Entries are keyed (media, indexer, indexer release id) and
// are never mutated after creation.
type BlacklistEntry struct {
	ID               uuid.UUID       `json:"id"`
	MediaID          uuid.UUID       `json:"media_id"`
	Indexer          string          `json:"indexer"`
	IndexerReleaseID string          `json:"indexer_release_id"`
	ReleaseTitle     string          `json:"release_title"`
	DownloadURL      string          `json:"download_url"`
	Reason           BlacklistReason `json:"reason"`
	ReasonDetails    string          `json:"reason_details"`
	Actor            string          `json:"actor"`
	CreatedAt        time.Time       `json:"created_at"`
}

// BlacklistStore manages the release blacklist.
type BlacklistStore struct {
	db dbinterface.Querier
}

// NewBlacklistStore creates a new BlacklistStore.
func NewBlacklistStore(db dbinterface.Querier) *BlacklistStore {
	return &BlacklistStore{db: db}
}

// Add inserts a blacklist entry. A duplicate key is a no-op, not an error.
func (s *BlacklistStore) Add(ctx context.Context, entry *BlacklistEntry) error {
	if entry.MediaID == uuid.Nil {
		return errors.New("media id is required")
	}
	if entry.Indexer == "" || entry.IndexerReleaseID == "" {
		return errors.New("indexer and indexer release id are required")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Reason == "" {
		entry.Reason = BlacklistReasonManual
	}
	if entry.Actor == "" {
		entry.Actor = "user"
	}

	query := `
		INSERT INTO download_blacklist (id, media_id, indexer, indexer_release_id,
			release_title, download_url, reason, reason_details, actor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (media_id, indexer, indexer_release_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID.String(), entry.MediaID.String(), entry.Indexer,
		entry.IndexerReleaseID, entry.ReleaseTitle, entry.DownloadURL,
		string(entry.Reason), entry.ReasonDetails, entry.Actor,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("failed to add blacklist entry: %w", err)
	}

	return nil
}

// IsBlacklisted reports whether the (media, indexer, release) key has a
// blacklist entry.
func (s *BlacklistStore) IsBlacklisted(ctx context.Context, mediaID uuid.UUID, indexer, indexerReleaseID string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM download_blacklist
		WHERE media_id = ? AND indexer = ? AND indexer_release_id = ?
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, mediaID.String(), indexer, indexerReleaseID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}

	return count > 0, nil
}

// ListByMedia retrieves the blacklist entries for a media item, newest first.
func (s *BlacklistStore) ListByMedia(ctx context.Context, mediaID uuid.UUID) ([]*BlacklistEntry, error) {
	query := `
		SELECT id, media_id, indexer, indexer_release_id, release_title,
			download_url, reason, reason_details, actor, created_at
		FROM download_blacklist
		WHERE media_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, mediaID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist entries: %w", err)
	}
	defer rows.Close()

	var entries []*BlacklistEntry
	for rows.Next() {
		entry, err := scanBlacklistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blacklist entries: %w", err)
	}

	return entries, nil
}

func scanBlacklistEntry(row rowScanner) (*BlacklistEntry, error) {
	var (
		entry   BlacklistEntry
		id      string
		mediaID string
		reason  string
	)

	err := row.Scan(
		&id, &mediaID, &entry.Indexer, &entry.IndexerReleaseID,
		&entry.ReleaseTitle, &entry.DownloadURL, &reason,
		&entry.ReasonDetails, &entry.Actor, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid blacklist id %q: %w", id, err)
	}
	entry.MediaID, err = uuid.Parse(mediaID)
	if err != nil {
		return nil, fmt.Errorf("invalid media id %q: %w", mediaID, err)
	}
	entry.Reason = BlacklistReason(reason)

	return &entry, nil
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/robogeeko/OmniReadarr/internal/dbinterface"
)

var ErrMediaNotFound = errors.New("media item not found")

// MediaKind distinguishes the media item variants.
type MediaKind string

const (
	MediaKindBook      MediaKind = "book"
	MediaKindAudiobook MediaKind = "audiobook"
)

// MediaStatus is the acquisition lifecycle of a media item.
type MediaStatus string

const (
	MediaStatusWanted      MediaStatus = "wanted"
	MediaStatusSearching   MediaStatus = "searching"
	MediaStatusDownloading MediaStatus = "downloading"
	MediaStatusDownloaded  MediaStatus = "downloaded"
	MediaStatusProcessed   MediaStatus = "processed"
	MediaStatusArchived    MediaStatus = "archived"
)

// MediaItem is a book or audiobook tracked by the catalog. The download core
// reads identifying fields and mutates only status and the path fields;
// variant-specific metadata (narrators, page counts, ...) is carried opaquely
// in VariantMetadata.
type MediaItem struct {
	ID              uuid.UUID         `json:"id"`
	Kind            MediaKind         `json:"kind"`
	Title           string            `json:"title"`
	Authors         []string          `json:"authors"`
	Description     string            `json:"description"`
	Language        string            `json:"language"`
	Publisher       string            `json:"publisher"`
	PublicationDate string            `json:"publication_date"`
	Genres          []string          `json:"genres"`
	ISBN            string            `json:"isbn"`
	ISBN13          string            `json:"isbn13"`
	VariantMetadata map[string]string `json:"variant_metadata"`
	Status          MediaStatus       `json:"status"`
	CoverURL        string            `json:"cover_url"`
	CoverPath       string            `json:"cover_path"`
	LibraryPath     string            `json:"library_path"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Identifier returns the strongest external identifier available, preferring
// ISBN-13 over ISBN-10.
func (m *MediaItem) Identifier() string {
	if m.ISBN13 != "" {
		return m.ISBN13
	}
	return m.ISBN
}

// MediaStore manages media items in the database.
type MediaStore struct {
	db dbinterface.Querier
}

// NewMediaStore creates a new MediaStore.
func NewMediaStore(db dbinterface.Querier) *MediaStore {
	return &MediaStore{db: db}
}

const mediaColumns = `id, kind, title, authors, description, language, publisher,
	publication_date, genres, isbn, isbn13, variant_metadata, status,
	cover_url, cover_path, library_path, created_at, updated_at`

// Create inserts a new media item. A zero ID is replaced with a fresh UUID and
// an empty status defaults to wanted.
func (s *MediaStore) Create(ctx context.Context, item *MediaItem) (*MediaItem, error) {
	if item.Title == "" {
		return nil, errors.New("title cannot be empty")
	}
	if item.Kind != MediaKindBook && item.Kind != MediaKindAudiobook {
		return nil, fmt.Errorf("invalid media kind %q", item.Kind)
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = MediaStatusWanted
	}

	authors, err := marshalStringList(item.Authors)
	if err != nil {
		return nil, fmt.Errorf("failed to encode authors: %w", err)
	}
	genres, err := marshalStringList(item.Genres)
	if err != nil {
		return nil, fmt.Errorf("failed to encode genres: %w", err)
	}
	variantMeta, err := marshalStringMap(item.VariantMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode variant metadata: %w", err)
	}

	query := `
		INSERT INTO media_items (id, kind, title, authors, description, language,
			publisher, publication_date, genres, isbn, isbn13, variant_metadata,
			status, cover_url, cover_path, library_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		item.ID.String(), string(item.Kind), item.Title, authors, item.Description,
		item.Language, item.Publisher, item.PublicationDate, genres,
		item.ISBN, item.ISBN13, variantMeta, string(item.Status),
		item.CoverURL, item.CoverPath, item.LibraryPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create media item: %w", err)
	}

	return s.Get(ctx, item.ID)
}

// Get retrieves a media item by ID.
func (s *MediaStore) Get(ctx context.Context, id uuid.UUID) (*MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE id = ?`

	item, err := scanMediaItem(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		return nil, fmt.Errorf("failed to get media item: %w", err)
	}

	return item, nil
}

// List retrieves all media items ordered by title.
func (s *MediaStore) List(ctx context.Context) ([]*MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items ORDER BY title ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	defer rows.Close()

	var items []*MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media items: %w", err)
	}

	return items, nil
}

// UpdateStatus sets the lifecycle status of a media item.
func (s *MediaStore) UpdateStatus(ctx context.Context, id uuid.UUID, status MediaStatus) error {
	query := `UPDATE media_items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, string(status), id.String())
	if err != nil {
		return fmt.Errorf("failed to update media status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMediaNotFound
	}

	return nil
}

// UpdateLibraryPaths records the organized library file and optional cover
// path of a media item. An empty coverPath leaves the stored cover untouched.
func (s *MediaStore) UpdateLibraryPaths(ctx context.Context, id uuid.UUID, libraryPath, coverPath string) error {
	query := `
		UPDATE media_items
		SET library_path = ?,
			cover_path = CASE WHEN ? != '' THEN ? ELSE cover_path END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, libraryPath, coverPath, coverPath, id.String())
	if err != nil {
		return fmt.Errorf("failed to update media library paths: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMediaNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaItem(row rowScanner) (*MediaItem, error) {
	var (
		item        MediaItem
		id          string
		kind        string
		status      string
		authors     string
		genres      string
		variantMeta string
	)

	err := row.Scan(
		&id, &kind, &item.Title, &authors, &item.Description, &item.Language,
		&item.Publisher, &item.PublicationDate, &genres, &item.ISBN, &item.ISBN13,
		&variantMeta, &status, &item.CoverURL, &item.CoverPath, &item.LibraryPath,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid media id %q: %w", id, err)
	}
	item.Kind = MediaKind(kind)
	item.Status = MediaStatus(status)

	if err := json.Unmarshal([]byte(authors), &item.Authors); err != nil {
		return nil, fmt.Errorf("invalid authors payload: %w", err)
	}
	if err := json.Unmarshal([]byte(genres), &item.Genres); err != nil {
		return nil, fmt.Errorf("invalid genres payload: %w", err)
	}
	if err := json.Unmarshal([]byte(variantMeta), &item.VariantMetadata); err != nil {
		return nil, fmt.Errorf("invalid variant metadata payload: %w", err)
	}

	return &item, nil
}

func marshalStringList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func marshalStringMap(values map[string]string) (string, error) {
	if values == nil {
		values = map[string]string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

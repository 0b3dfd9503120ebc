// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package search aggregates indexer releases for a media item across query
// variants, deduplicates them, filters blacklisted releases and orders the
// survivors deterministically.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/pkg/prowlarr"
)

// Result is a release candidate annotated with the variant that produced it.
type Result struct {
	Indexer          string     `json:"indexer"`
	IndexerReleaseID string     `json:"indexer_release_id"`
	Title            string     `json:"title"`
	Protocol         string     `json:"protocol"`
	DownloadURL      string     `json:"download_url"`
	InfoURL          string     `json:"info_url,omitempty"`
	SizeBytes        *int64     `json:"size_bytes,omitempty"`
	Seeders          *int       `json:"seeders,omitempty"`
	Leechers         *int       `json:"leechers,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	Priority         int        `json:"priority"`
	Query            string     `json:"query"`
}

// Searcher is the indexer aggregate search dependency.
type Searcher interface {
	Search(ctx context.Context, query string, category, limit int) ([]prowlarr.Release, error)
}

// BlacklistChecker reports whether a release is blacklisted for a media item.
type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, mediaID uuid.UUID, indexer, indexerReleaseID string) (bool, error)
}

// Service coordinates variant fan-out against the indexer aggregator.
type Service struct {
	indexer      Searcher
	blacklist    BlacklistChecker
	category     int
	maxResults   int
	variantOrder string
}

// NewService creates a search Service.
func NewService(indexer Searcher, blacklist BlacklistChecker, cfg *domain.Config) *Service {
	maxResults := cfg.SearchMaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	return &Service{
		indexer:      indexer,
		blacklist:    blacklist,
		category:     cfg.SearchCategory,
		maxResults:   maxResults,
		variantOrder: cfg.SearchVariantOrder,
	}
}

type dedupeKey struct {
	indexer   string
	releaseID string
}

// Search runs all query variants for the media item concurrently and returns
// the merged candidate list. Partial indexer failures are tolerated; only when
// every variant fails is an indexer_unavailable error returned.
func (s *Service) Search(ctx context.Context, item *models.MediaItem) ([]Result, error) {
	variants := BuildVariants(item, s.variantOrder)
	if len(variants) == 0 {
		return nil, domain.NewError(domain.ErrKindValidation, "media item has no searchable fields")
	}

	var (
		mu       sync.Mutex
		merged   = make(map[dedupeKey]Result)
		failures int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, variant := range variants {
		variant := variant
		g.Go(func() error {
			releases, err := s.indexer.Search(gctx, variant.Query, s.category, s.maxResults)
			if err != nil {
				log.Warn().Err(err).
					Str("variant", variant.Label).
					Str("query", variant.Query).
					Msg("Search variant failed")

				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, release := range releases {
				key := dedupeKey{indexer: release.Indexer, releaseID: release.ReleaseID()}
				if existing, ok := merged[key]; ok && existing.Priority <= variant.Priority {
					continue
				}
				merged[key] = toResult(release, variant)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if failures == len(variants) {
		return nil, domain.WrapError(domain.ErrKindIndexerUnavailable, lastErr, "all search variants failed")
	}

	results := make([]Result, 0, len(merged))
	for key, result := range merged {
		blacklisted, err := s.blacklist.IsBlacklisted(ctx, item.ID, key.indexer, key.releaseID)
		if err != nil {
			return nil, domain.WrapError(domain.ErrKindStorage, err, "failed to check blacklist")
		}
		if blacklisted {
			continue
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Priority != results[j].Priority {
			return results[i].Priority < results[j].Priority
		}
		indexerI := strings.ToLower(results[i].Indexer)
		indexerJ := strings.ToLower(results[j].Indexer)
		if indexerI != indexerJ {
			return indexerI < indexerJ
		}
		return strings.ToLower(results[i].Title) < strings.ToLower(results[j].Title)
	})

	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}

	log.Debug().
		Str("mediaId", item.ID.String()).
		Int("variants", len(variants)).
		Int("failedVariants", failures).
		Int("results", len(results)).
		Msg("Search completed")

	return results, nil
}

func toResult(release prowlarr.Release, variant Variant) Result {
	return Result{
		Indexer:          release.Indexer,
		IndexerReleaseID: release.ReleaseID(),
		Title:            release.Title,
		Protocol:         release.Protocol,
		DownloadURL:      release.DownloadURL,
		InfoURL:          release.InfoURL,
		SizeBytes:        release.Size,
		Seeders:          release.Seeders,
		Leechers:         release.Peers,
		PublishedAt:      release.PublishDate,
		Priority:         variant.Priority,
		Query:            variant.Query,
	}
}

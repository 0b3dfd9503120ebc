// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"strings"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/models"
)

// Variant is one query formulation derived from a media item. Lower priority
// values indicate more precise formulations and win during deduplication.
type Variant struct {
	Query    string
	Priority int
	Label    string
}

// BuildVariants derives the query variants for a media item in the configured
// order. Variants whose source fields are absent are skipped, so an item with
// no identifier and no authors still yields a title-only query.
func BuildVariants(item *models.MediaItem, order string) []Variant {
	title := strings.TrimSpace(item.Title)
	identifier := strings.TrimSpace(item.Identifier())

	var author string
	if len(item.Authors) > 0 {
		author = strings.TrimSpace(item.Authors[0])
	}

	var variants []Variant
	add := func(label, query string) {
		query = strings.TrimSpace(query)
		if query == "" {
			return
		}
		variants = append(variants, Variant{
			Query:    query,
			Priority: len(variants),
			Label:    label,
		})
	}

	titleVariants := func() {
		if author != "" {
			add("title+author", title+" "+author)
			add("author+title", author+" "+title)
		}
		add("title", title)
	}

	switch order {
	case domain.VariantOrderTitleFirst:
		titleVariants()
		add("identifier", identifier)
	default:
		add("identifier", identifier)
		titleVariants()
	}

	return variants
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/robogeeko/OmniReadarr/internal/metrics"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/internal/services/search"
)

type SearchHandler struct {
	mediaStore *models.MediaStore
	service    *search.Service
	metrics    *metrics.Manager
}

func NewSearchHandler(mediaStore *models.MediaStore, service *search.Service, metricsManager *metrics.Manager) *SearchHandler {
	return &SearchHandler{mediaStore: mediaStore, service: service, metrics: metricsManager}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := parseUUIDParam(w, r, "mediaID")
	if !ok {
		return
	}

	item, err := h.mediaStore.Get(r.Context(), mediaID)
	if err != nil {
		if errors.Is(err, models.ErrMediaNotFound) {
			RespondError(w, http.StatusNotFound, "Media item not found")
			return
		}
		RespondError(w, http.StatusInternalServerError, "Failed to get media item")
		return
	}

	results, err := h.service.Search(r.Context(), item)
	if err != nil {
		h.metrics.SearchesTotal.WithLabelValues("failure").Inc()
		RespondDomainError(w, err)
		return
	}

	h.metrics.SearchesTotal.WithLabelValues("success").Inc()

	if results == nil {
		results = []search.Result{}
	}
	RespondJSON(w, http.StatusOK, results)
}

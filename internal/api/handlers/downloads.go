// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/internal/services/download"
	"github.com/robogeeko/OmniReadarr/internal/services/search"
)

type DownloadHandler struct {
	service      *download.Service
	attemptStore *models.AttemptStore
	blacklist    *models.BlacklistStore
}

func NewDownloadHandler(service *download.Service, attemptStore *models.AttemptStore, blacklist *models.BlacklistStore) *DownloadHandler {
	return &DownloadHandler{service: service, attemptStore: attemptStore, blacklist: blacklist}
}

type InitiatePayload struct {
	Indexer          string     `json:"indexer"`
	IndexerReleaseID string     `json:"indexerReleaseId"`
	Title            string     `json:"title"`
	Protocol         string     `json:"protocol"`
	DownloadURL      string     `json:"downloadUrl"`
	SizeBytes        *int64     `json:"sizeBytes"`
	Seeders          *int       `json:"seeders"`
	Leechers         *int       `json:"leechers"`
	PublishedAt      *time.Time `json:"publishedAt"`
}

func (h *DownloadHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := parseUUIDParam(w, r, "mediaID")
	if !ok {
		return
	}

	var payload InitiatePayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	attempt, err := h.service.Initiate(r.Context(), mediaID, search.Result{
		Indexer:          payload.Indexer,
		IndexerReleaseID: payload.IndexerReleaseID,
		Title:            payload.Title,
		Protocol:         payload.Protocol,
		DownloadURL:      payload.DownloadURL,
		SizeBytes:        payload.SizeBytes,
		Seeders:          payload.Seeders,
		Leechers:         payload.Leechers,
		PublishedAt:      payload.PublishedAt,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, attempt)
}

func (h *DownloadHandler) ListByMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := parseUUIDParam(w, r, "mediaID")
	if !ok {
		return
	}

	attempts, err := h.attemptStore.ListByMedia(r.Context(), mediaID)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "Failed to list download attempts")
		return
	}

	if attempts == nil {
		attempts = []*models.DownloadAttempt{}
	}
	RespondJSON(w, http.StatusOK, attempts)
}

func (h *DownloadHandler) Get(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := parseUUIDParam(w, r, "attemptID")
	if !ok {
		return
	}

	attempt, err := h.attemptStore.Get(r.Context(), attemptID)
	if err != nil {
		if errors.Is(err, models.ErrAttemptNotFound) {
			RespondError(w, http.StatusNotFound, "Download attempt not found")
			return
		}
		RespondError(w, http.StatusInternalServerError, "Failed to get download attempt")
		return
	}

	RespondJSON(w, http.StatusOK, attempt)
}

// Poll reconciles the attempt against the download client and returns the
// refreshed state with progress.
func (h *DownloadHandler) Poll(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := parseUUIDParam(w, r, "attemptID")
	if !ok {
		return
	}

	result, err := h.service.Poll(r.Context(), attemptID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

type BlacklistPayload struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
	Actor   string `json:"actor"`
}

func (h *DownloadHandler) Blacklist(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := parseUUIDParam(w, r, "attemptID")
	if !ok {
		return
	}

	var payload BlacklistPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	attempt, err := h.service.MarkBlacklisted(r.Context(), attemptID,
		models.BlacklistReason(payload.Reason), payload.Details, payload.Actor)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, attempt)
}

func (h *DownloadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := parseUUIDParam(w, r, "attemptID")
	if !ok {
		return
	}

	deleteFiles := r.URL.Query().Get("deleteFiles") == "true"

	if err := h.service.Delete(r.Context(), attemptID, deleteFiles); err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Download attempt deleted"})
}

func (h *DownloadHandler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := parseUUIDParam(w, r, "mediaID")
	if !ok {
		return
	}

	entries, err := h.blacklist.ListByMedia(r.Context(), mediaID)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "Failed to list blacklist entries")
		return
	}

	if entries == nil {
		entries = []*models.BlacklistEntry{}
	}
	RespondJSON(w, http.StatusOK, entries)
}

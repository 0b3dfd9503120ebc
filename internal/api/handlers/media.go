// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/robogeeko/OmniReadarr/internal/models"
)

type MediaHandler struct {
	store *models.MediaStore
}

func NewMediaHandler(store *models.MediaStore) *MediaHandler {
	return &MediaHandler{store: store}
}

type MediaPayload struct {
	Kind            string            `json:"kind"`
	Title           string            `json:"title"`
	Authors         []string          `json:"authors"`
	Description     string            `json:"description"`
	Language        string            `json:"language"`
	Publisher       string            `json:"publisher"`
	PublicationDate string            `json:"publicationDate"`
	Genres          []string          `json:"genres"`
	ISBN            string            `json:"isbn"`
	ISBN13          string            `json:"isbn13"`
	VariantMetadata map[string]string `json:"variantMetadata"`
	CoverURL        string            `json:"coverUrl"`
}

func (h *MediaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload MediaPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	item, err := h.store.Create(r.Context(), &models.MediaItem{
		Kind:            models.MediaKind(payload.Kind),
		Title:           payload.Title,
		Authors:         payload.Authors,
		Description:     payload.Description,
		Language:        payload.Language,
		Publisher:       payload.Publisher,
		PublicationDate: payload.PublicationDate,
		Genres:          payload.Genres,
		ISBN:            payload.ISBN,
		ISBN13:          payload.ISBN13,
		VariantMetadata: payload.VariantMetadata,
		CoverURL:        payload.CoverURL,
	})
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusCreated, item)
}

func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "Failed to list media items")
		return
	}

	RespondJSON(w, http.StatusOK, items)
}

func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "mediaID")
	if !ok {
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrMediaNotFound) {
			RespondError(w, http.StatusNotFound, "Media item not found")
			return
		}
		RespondError(w, http.StatusInternalServerError, "Failed to get media item")
		return
	}

	RespondJSON(w, http.StatusOK, item)
}

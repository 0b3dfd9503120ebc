// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/robogeeko/OmniReadarr/internal/services/postprocess"
)

type PostProcessHandler struct {
	service *postprocess.Service
}

func NewPostProcessHandler(service *postprocess.Service) *PostProcessHandler {
	return &PostProcessHandler{service: service}
}

// Process runs the full pipeline: convert then organize.
func (h *PostProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := parseUUIDParam(w, r, "attemptID")
	if !ok {
		return
	}

	result, err := h.service.Process(r.Context(), attemptID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Convert runs only the conversion stage.
func (h *PostProcessHandler) Convert(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := parseUUIDParam(w, r, "attemptID")
	if !ok {
		return
	}

	attempt, err := h.service.Convert(r.Context(), attemptID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, attempt)
}

// Organize runs only the organization stage.
func (h *PostProcessHandler) Organize(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := parseUUIDParam(w, r, "attemptID")
	if !ok {
		return
	}

	result, err := h.service.Organize(r.Context(), attemptID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

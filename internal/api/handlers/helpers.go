// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robogeeko/OmniReadarr/internal/domain"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondDomainError maps a domain error kind to an HTTP status. Unclassified
// errors become 500s with a generic body so transport details never leak.
func RespondDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)

	var status int
	switch kind {
	case domain.ErrKindValidation:
		status = http.StatusBadRequest
	case domain.ErrKindNotFound:
		status = http.StatusNotFound
	case domain.ErrKindActiveDownloadExists:
		status = http.StatusConflict
	case domain.ErrKindAmbiguousFile:
		status = http.StatusConflict
	case domain.ErrKindConversionFailed:
		status = http.StatusUnprocessableEntity
	case domain.ErrKindConnectivity, domain.ErrKindIndexerUnavailable:
		status = http.StatusBadGateway
	case domain.ErrKindLostTracking:
		status = http.StatusGone
	default:
		log.Error().Err(err).Msg("Unclassified error in API handler")
		RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	RespondJSON(w, status, ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

// DecodeJSON decodes the request body into dest. Returns false if decoding
// fails (error already sent to the client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// parseUUIDParam extracts a UUID path parameter. Returns uuid.Nil and false
// after responding when the value is malformed.
func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so callers and API handlers can react
// without inspecting transport-level errors.
type ErrorKind string

const (
	// ErrKindValidation marks bad input rejected before any state mutation.
	ErrKindValidation ErrorKind = "validation"
	// ErrKindConnectivity marks an unreachable or timed-out collaborator.
	ErrKindConnectivity ErrorKind = "connectivity"
	// ErrKindActiveDownloadExists rejects initiate when the media item
	// already has an attempt in SENT or DOWNLOADING.
	ErrKindActiveDownloadExists ErrorKind = "active_download_exists"
	// ErrKindAmbiguousFile marks multiple equally-good discovery candidates.
	ErrKindAmbiguousFile ErrorKind = "ambiguous_file"
	// ErrKindConversionFailed marks a failed run of the external converter.
	// The source file is left untouched.
	ErrKindConversionFailed ErrorKind = "conversion_failed"
	// ErrKindNotFound marks a missing record or file.
	ErrKindNotFound ErrorKind = "not_found"
	// ErrKindLostTracking marks a previously-tracked download job that the
	// client no longer reports in its queue or history.
	ErrKindLostTracking ErrorKind = "lost_tracking"
	// ErrKindStorage marks persistence or filesystem failures.
	ErrKindStorage ErrorKind = "storage"
	// ErrKindIndexerUnavailable marks a search where every query variant failed.
	ErrKindIndexerUnavailable ErrorKind = "indexer_unavailable"
)

// Error is a domain failure with a stable kind and human-readable detail.
// It wraps the underlying cause where one exists.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a domain error without an underlying cause.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a domain error wrapping err.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

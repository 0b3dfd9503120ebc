// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathutil provides filesystem path sanitization helpers shared by
// the library organizer and anything else that derives directory names from
// user-visible metadata.
package pathutil

import (
	"path/filepath"
	"strings"
)

// illegal characters for path segments across platforms (Windows superset)
const illegalChars = `<>:"/\|?*`

// Windows reserved device names that cannot be used as file or directory names.
var windowsReservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizePathSegment makes a string safe for use as a single path segment.
// Illegal characters are stripped, runs of whitespace are collapsed, trailing
// dots and spaces are removed, and Windows reserved names are prefixed with
// an underscore. The result is never empty: fully-illegal input yields "_".
func SanitizePathSegment(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range name {
		if strings.ContainsRune(illegalChars, r) || r < 0x20 {
			continue
		}
		b.WriteRune(r)
	}

	sanitized := strings.Join(strings.Fields(b.String()), " ")
	sanitized = strings.TrimRight(sanitized, ". ")

	if sanitized == "" {
		return "_"
	}

	if _, reserved := windowsReservedNames[strings.ToUpper(sanitized)]; reserved {
		return "_" + sanitized
	}

	return sanitized
}

// WithinRoot reports whether path resolves to a location inside root.
// Both paths are cleaned before comparison; relative escapes ("..") are
// rejected. Used to keep discovery and organization scoped to configured
// directories.
func WithinRoot(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)

	if root == path {
		return true
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package postprocess turns completed downloads into organized library files:
// file discovery, format conversion, library organization, metadata sidecars
// and cover art.
package postprocess

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/pkg/pathutil"
)

var ebookExtensions = map[string]bool{
	".epub": true,
	".mobi": true,
	".azw":  true,
	".azw3": true,
	".pdf":  true,
	".txt":  true,
	".rtf":  true,
	".fb2":  true,
	".lit":  true,
}

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".m4b":  true,
	".flac": true,
	".ogg":  true,
	".aac":  true,
}

func extensionsFor(kind models.MediaKind) map[string]bool {
	if kind == models.MediaKindAudiobook {
		return audioExtensions
	}
	return ebookExtensions
}

// match tiers, strongest first
const (
	tierHandle = 3
	tierExact  = 2
	tierFuzzy  = 1
	tierNone   = 0
)

// Discover locates the downloaded file for an attempt under the completed
// downloads root. The client job handle in the path is the strongest signal,
// an exact normalized title match second, fuzzy title similarity last. Equally
// good candidates at the winning tier are refused as ambiguous rather than
// guessed between.
func Discover(root string, attempt *models.DownloadAttempt, kind models.MediaKind) (string, error) {
	exts := extensionsFor(kind)
	wantTitle := normalizeName(attempt.ReleaseTitle)

	type candidate struct {
		path string
		tier int
	}

	var candidates []candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !pathutil.WithinRoot(root, path) {
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		candidates = append(candidates, candidate{path: path, tier: matchTier(path, attempt, wantTitle)})
		return nil
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrKindStorage, err, "failed to scan completed downloads")
	}

	if len(candidates) == 0 {
		return "", domain.NewError(domain.ErrKindNotFound, "no media file found under %s for %q", root, attempt.ReleaseTitle)
	}

	best := tierNone
	for _, c := range candidates {
		if c.tier > best {
			best = c.tier
		}
	}

	var winners []string
	for _, c := range candidates {
		if c.tier == best {
			winners = append(winners, c.path)
		}
	}

	// A multi-file audiobook is one job directory of tracks; it is organized
	// as a unit instead of picking a single track out of it.
	if kind == models.MediaKindAudiobook && len(winners) > 1 {
		if parent := commonParent(winners); parent != "" && parent != filepath.Clean(root) {
			return parent, nil
		}
	}

	if best == tierNone && len(winners) > 1 {
		return "", domain.NewError(domain.ErrKindAmbiguousFile,
			"%d unmatched media files under %s for %q", len(winners), root, attempt.ReleaseTitle)
	}
	if len(winners) > 1 {
		winners = preferExtension(winners, kind)
	}
	if len(winners) > 1 {
		return "", domain.NewError(domain.ErrKindAmbiguousFile,
			"%d equally likely files for %q", len(winners), attempt.ReleaseTitle)
	}

	return winners[0], nil
}

func matchTier(path string, attempt *models.DownloadAttempt, wantTitle string) int {
	if attempt.ClientJobID != "" && strings.Contains(path, attempt.ClientJobID) {
		return tierHandle
	}

	if wantTitle == "" {
		return tierNone
	}

	base := normalizeName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	parent := normalizeName(filepath.Base(filepath.Dir(path)))

	if base == wantTitle || parent == wantTitle {
		return tierExact
	}
	if strings.Contains(base, wantTitle) || strings.Contains(parent, wantTitle) {
		return tierExact
	}
	if fuzzy.MatchNormalizedFold(wantTitle, base) || fuzzy.MatchNormalizedFold(wantTitle, parent) {
		return tierFuzzy
	}

	return tierNone
}

// preferExtension narrows a tie to the preferred container for the media
// kind: epub for books, m4b for audiobooks. Ties that stay ties remain
// ambiguous.
func preferExtension(paths []string, kind models.MediaKind) []string {
	preferred := ".epub"
	if kind == models.MediaKindAudiobook {
		preferred = ".m4b"
	}

	var matches []string
	for _, p := range paths {
		if strings.ToLower(filepath.Ext(p)) == preferred {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return paths
	}
	return matches
}

// commonParent returns the shared immediate parent directory of paths, ""
// when they do not all share one.
func commonParent(paths []string) string {
	parent := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		if filepath.Dir(p) != parent {
			return ""
		}
	}
	return parent
}

// resolveRecordedPath turns a recorded raw path into a concrete source.
// Download clients report a directory for multi-file jobs; a recorded file is
// used as-is, a directory holding several audiobook tracks is kept whole, and
// any other recorded directory is searched like the downloads root.
func resolveRecordedPath(recorded string, attempt *models.DownloadAttempt, kind models.MediaKind) (string, error) {
	info, err := os.Stat(recorded)
	if err != nil {
		return "", domain.WrapError(domain.ErrKindNotFound, err, "recorded file %s is missing", recorded)
	}
	if !info.IsDir() {
		return recorded, nil
	}
	if kind == models.MediaKindAudiobook {
		if n, err := countMediaFiles(recorded, audioExtensions); err == nil && n > 1 {
			return recorded, nil
		}
	}
	return Discover(recorded, attempt, kind)
}

func countMediaFiles(root string, exts map[string]bool) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && exts[strings.ToLower(filepath.Ext(path))] {
			count++
		}
		return nil
	})
	return count, err
}

func normalizeName(s string) string {
	s = strings.ToLower(s)
	for _, sep := range []string{".", "_", "-"} {
		s = strings.ReplaceAll(s, sep, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package postprocess

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/pkg/pathutil"
)

// Organizer copies processed files into the Author/Title library layout.
type Organizer struct {
	libraryPath string
}

// NewOrganizer creates an Organizer rooted at libraryPath.
func NewOrganizer(libraryPath string) *Organizer {
	return &Organizer{libraryPath: libraryPath}
}

// Organize copies sourcePath into the library under a sanitized
// Author/Title directory and returns the destination path. A source file
// lands as a single renamed file; a source directory (multi-file audiobooks)
// is copied whole and the Author/Title directory itself is returned. The
// source is never moved or deleted. Re-organizing the same item is a no-op; a
// directory collision with a different item is resolved deterministically by
// suffixing the media id.
func (o *Organizer) Organize(sourcePath string, item *models.MediaItem) (string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", domain.WrapError(domain.ErrKindNotFound, err, "source file %s is missing", sourcePath)
	}
	if info.IsDir() {
		return o.organizeDirectory(sourcePath, item)
	}

	dir, err := o.targetDir(item)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", domain.WrapError(domain.ErrKindStorage, err, "failed to create library directory")
	}

	filename := pathutil.SanitizePathSegment(item.Title) + strings.ToLower(filepath.Ext(sourcePath))
	destPath := filepath.Join(dir, filename)

	if destInfo, err := os.Stat(destPath); err == nil {
		if destInfo.Size() == info.Size() {
			log.Debug().Str("path", destPath).Msg("Library file already in place")
			return destPath, nil
		}
	}

	if err := copyFile(sourcePath, destPath); err != nil {
		return "", domain.WrapError(domain.ErrKindStorage, err, "failed to copy file into library")
	}

	log.Info().
		Str("source", sourcePath).
		Str("dest", destPath).
		Msg("Organized file into library")

	return destPath, nil
}

// organizeDirectory copies every media file under sourceDir into the
// Author/Title target, preserving the relative layout (disc subdirectories
// and the like). Non-media files (nfo, artwork) stay behind.
func (o *Organizer) organizeDirectory(sourceDir string, item *models.MediaItem) (string, error) {
	dir, err := o.targetDir(item)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", domain.WrapError(domain.ErrKindStorage, err, "failed to create library directory")
	}

	exts := extensionsFor(item.Kind)
	copied := 0
	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return err
		}

		srcInfo, err := os.Stat(path)
		if err != nil {
			return err
		}
		if destInfo, err := os.Stat(destPath); err == nil && destInfo.Size() == srcInfo.Size() {
			return nil
		}
		if err := copyFile(path, destPath); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrKindStorage, err, "failed to copy directory into library")
	}

	log.Info().
		Str("source", sourceDir).
		Str("dest", dir).
		Int("copied", copied).
		Msg("Organized directory into library")

	return dir, nil
}

// targetDir resolves the Author/Title directory, disambiguating when the
// title directory already belongs to a different media item.
func (o *Organizer) targetDir(item *models.MediaItem) (string, error) {
	author := "Unknown Author"
	if len(item.Authors) > 0 && strings.TrimSpace(item.Authors[0]) != "" {
		author = item.Authors[0]
	}

	authorSegment := pathutil.SanitizePathSegment(author)
	titleSegment := pathutil.SanitizePathSegment(item.Title)

	dir := filepath.Join(o.libraryPath, authorSegment, titleSegment)
	if !pathutil.WithinRoot(o.libraryPath, dir) {
		return "", domain.NewError(domain.ErrKindValidation, "library path escape for %q / %q", author, item.Title)
	}

	owner, err := dirOwner(dir)
	if err != nil {
		return "", domain.WrapError(domain.ErrKindStorage, err, "failed to inspect library directory")
	}
	if owner == "" || owner == item.ID.String() {
		return dir, nil
	}

	// Same author and title as another item; suffix with the id prefix so the
	// same item always lands in the same place.
	suffixed := fmt.Sprintf("%s (%s)", titleSegment, item.ID.String()[:8])
	return filepath.Join(o.libraryPath, authorSegment, suffixed), nil
}

// dirOwner returns the media id recorded in the directory's OPF sidecar, ""
// when the directory is absent, empty, or carries no sidecar.
func dirOwner(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, opfFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	var pkg struct {
		Metadata struct {
			Identifiers []struct {
				ID    string `xml:"id,attr"`
				Value string `xml:",chardata"`
			} `xml:"identifier"`
		} `xml:"metadata"`
	}
	if err := xml.Unmarshal(data, &pkg); err != nil {
		// Unreadable sidecar: treat as foreign so we never overwrite it.
		return "unknown", nil
	}

	for _, ident := range pkg.Metadata.Identifiers {
		if ident.ID == "uuid_id" {
			return strings.TrimSpace(ident.Value), nil
		}
	}
	return "unknown", nil
}

func copyFile(sourcePath, destPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer source.Close()

	tmpPath := destPath + ".partial"
	dest, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, destPath)
}

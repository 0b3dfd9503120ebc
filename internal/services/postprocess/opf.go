// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package postprocess

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robogeeko/OmniReadarr/internal/models"
)

const opfFilename = "metadata.opf"

type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Xmlns    string      `xml:"xmlns,attr"`
	Version  string      `xml:"version,attr"`
	UniqueID string      `xml:"unique-identifier,attr"`
	Metadata opfMetadata `xml:"metadata"`
}

type opfMetadata struct {
	XmlnsDC     string          `xml:"xmlns:dc,attr"`
	XmlnsOPF    string          `xml:"xmlns:opf,attr"`
	Identifiers []opfIdentifier `xml:"dc:identifier"`
	Title       string          `xml:"dc:title"`
	Creators    []opfCreator    `xml:"dc:creator"`
	Language    string          `xml:"dc:language"`
	Description string          `xml:"dc:description,omitempty"`
	Publisher   string          `xml:"dc:publisher,omitempty"`
	Date        string          `xml:"dc:date,omitempty"`
	Subjects    []string        `xml:"dc:subject"`
}

type opfIdentifier struct {
	ID     string `xml:"id,attr,omitempty"`
	Scheme string `xml:"opf:scheme,attr,omitempty"`
	Value  string `xml:",chardata"`
}

type opfCreator struct {
	Role  string `xml:"opf:role,attr"`
	Value string `xml:",chardata"`
}

// WriteOPF writes a Calibre-compatible metadata.opf sidecar into dir. An
// existing sidecar is overwritten.
func WriteOPF(dir string, item *models.MediaItem) (string, error) {
	language := item.Language
	if language == "" {
		language = "en"
	}

	identifiers := []opfIdentifier{
		{ID: "uuid_id", Scheme: "uuid", Value: item.ID.String()},
	}
	if item.ISBN13 != "" {
		identifiers = append(identifiers, opfIdentifier{Scheme: "ISBN", Value: item.ISBN13})
	} else if item.ISBN != "" {
		identifiers = append(identifiers, opfIdentifier{Scheme: "ISBN", Value: item.ISBN})
	}

	creators := make([]opfCreator, 0, len(item.Authors))
	for _, author := range item.Authors {
		creators = append(creators, opfCreator{Role: "aut", Value: author})
	}

	pkg := opfPackage{
		Xmlns:    "http://www.idpf.org/2007/opf",
		Version:  "2.0",
		UniqueID: "uuid_id",
		Metadata: opfMetadata{
			XmlnsDC:     "http://purl.org/dc/elements/1.1/",
			XmlnsOPF:    "http://www.idpf.org/2007/opf",
			Identifiers: identifiers,
			Title:       item.Title,
			Creators:    creators,
			Language:    language,
			Description: item.Description,
			Publisher:   item.Publisher,
			Date:        item.PublicationDate,
			Subjects:    item.Genres,
		},
	}

	data, err := xml.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode opf metadata: %w", err)
	}

	path := filepath.Join(dir, opfFilename)
	content := append([]byte(xml.Header), data...)
	content = append(content, '\n')
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write opf sidecar: %w", err)
	}

	return path, nil
}

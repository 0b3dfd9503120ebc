// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Search variant ordering strategies. See Config.SearchVariantOrder.
const (
	VariantOrderIdentifierFirst = "identifier-first"
	VariantOrderTitleFirst      = "title-first"
)

// Config represents the application configuration. It is loaded once at
// startup and injected into services at construction; nothing reads
// configuration at runtime.
type Config struct {
	Version string

	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	MetricsEnabled bool `toml:"metricsEnabled" mapstructure:"metricsEnabled"`

	// Prowlarr indexer aggregator.
	ProwlarrHost           string `toml:"prowlarrHost" mapstructure:"prowlarrHost"`
	ProwlarrAPIKey         string `toml:"prowlarrApiKey" mapstructure:"prowlarrApiKey"`
	ProwlarrTimeoutSeconds int    `toml:"prowlarrTimeoutSeconds" mapstructure:"prowlarrTimeoutSeconds"`

	// SABnzbd download client.
	SabnzbdHost           string `toml:"sabnzbdHost" mapstructure:"sabnzbdHost"`
	SabnzbdAPIKey         string `toml:"sabnzbdApiKey" mapstructure:"sabnzbdApiKey"`
	SabnzbdCategory       string `toml:"sabnzbdCategory" mapstructure:"sabnzbdCategory"`
	SabnzbdTimeoutSeconds int    `toml:"sabnzbdTimeoutSeconds" mapstructure:"sabnzbdTimeoutSeconds"`

	// SearchVariantOrder picks the priority order for search query variants:
	// "identifier-first" (default) tries ISBN queries before title/author,
	// "title-first" tries title+author before identifiers.
	SearchVariantOrder string `toml:"searchVariantOrder" mapstructure:"searchVariantOrder"`
	SearchCategory     int    `toml:"searchCategory" mapstructure:"searchCategory"`
	SearchMaxResults   int    `toml:"searchMaxResults" mapstructure:"searchMaxResults"`

	// Post-processing paths and tools.
	CompletedDownloadsPath   string `toml:"completedDownloadsPath" mapstructure:"completedDownloadsPath"`
	LibraryPath              string `toml:"libraryPath" mapstructure:"libraryPath"`
	EbookConvertPath         string `toml:"ebookConvertPath" mapstructure:"ebookConvertPath"`
	ConvertTimeoutSeconds    int    `toml:"convertTimeoutSeconds" mapstructure:"convertTimeoutSeconds"`
	CoverFetchTimeoutSeconds int    `toml:"coverFetchTimeoutSeconds" mapstructure:"coverFetchTimeoutSeconds"`
	HistoryLookbackLimit     int    `toml:"historyLookbackLimit" mapstructure:"historyLookbackLimit"`
}

// Validate checks required settings and normalizes enum-style values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProwlarrHost) == "" {
		return errors.New("prowlarrHost is required")
	}
	if strings.TrimSpace(c.SabnzbdHost) == "" {
		return errors.New("sabnzbdHost is required")
	}
	if strings.TrimSpace(c.LibraryPath) == "" {
		return errors.New("libraryPath is required")
	}
	if strings.TrimSpace(c.CompletedDownloadsPath) == "" {
		return errors.New("completedDownloadsPath is required")
	}

	switch c.SearchVariantOrder {
	case "", VariantOrderIdentifierFirst, VariantOrderTitleFirst:
	default:
		return fmt.Errorf("invalid searchVariantOrder %q (want %q or %q)",
			c.SearchVariantOrder, VariantOrderIdentifierFirst, VariantOrderTitleFirst)
	}

	return nil
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package prowlarr provides a minimal Prowlarr API wrapper for aggregate
// release searches.
package prowlarr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the options for constructing a Client.
type Config struct {
	Host       string
	APIKey     string
	Timeout    int
	HTTPClient *http.Client
	UserAgent  string
}

// Client provides access to Prowlarr's aggregate search API.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// NewClient constructs a new Client using the provided configuration.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "omnireadarr"
	}

	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		userAgent:  ua,
	}
}

// Release is one candidate offered by an indexer for a search query.
type Release struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Indexer     string     `json:"indexer"`
	IndexerID   int        `json:"indexerId"`
	Size        *int64     `json:"size"`
	Seeders     *int       `json:"seeders"`
	Peers       *int       `json:"peers"`
	Protocol    string     `json:"protocol"`
	DownloadURL string     `json:"downloadUrl"`
	InfoURL     string     `json:"infoUrl,omitempty"`
	PublishDate *time.Time `json:"publishDate,omitempty"`
}

// ReleaseID returns the indexer-local identifier of the release. Prowlarr
// exposes the GUID as the stable per-indexer id.
func (r *Release) ReleaseID() string {
	return r.GUID
}

// Search runs a query against Prowlarr's aggregate search endpoint.
// A category of 0 means no category restriction.
func (c *Client) Search(ctx context.Context, query string, category, limit int) ([]Release, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("prowlarr query is required")
	}
	if c.httpClient == nil {
		return nil, fmt.Errorf("prowlarr HTTP client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}

	endpoint, err := url.JoinPath(c.host, "api", "v1", "search")
	if err != nil {
		return nil, fmt.Errorf("failed to build prowlarr endpoint: %w", err)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	if category > 0 {
		params.Set("categories", strconv.Itoa(category))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build prowlarr request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prowlarr request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// continue
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("prowlarr returned %d (unauthorized)", resp.StatusCode)
	default:
		return nil, fmt.Errorf("prowlarr unexpected status %d", resp.StatusCode)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("failed to decode prowlarr response: %w", err)
	}

	return releases, nil
}

// Test verifies connectivity and authentication against the Prowlarr instance.
func (c *Client) Test(ctx context.Context) error {
	if c.httpClient == nil {
		return fmt.Errorf("prowlarr HTTP client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint, err := url.JoinPath(c.host, "api", "v1", "system", "status")
	if err != nil {
		return fmt.Errorf("failed to build prowlarr endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build prowlarr request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query prowlarr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("prowlarr returned status %d", resp.StatusCode)
	}

	return nil
}

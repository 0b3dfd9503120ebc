// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sabnzbd provides a client for the SABnzbd JSON API covering job
// submission, queue and history inspection, and job deletion.
package sabnzbd

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

// Job statuses reported by SABnzbd.
const (
	StatusCompleted   = "Completed"
	StatusDownloading = "Downloading"
	StatusQueued      = "Queued"
	StatusPaused      = "Paused"
	StatusFailed      = "Failed"
	StatusDeleted     = "Deleted"
)

// Config holds the options for constructing a Client.
type Config struct {
	Host       string
	APIKey     string
	Timeout    int
	HTTPClient *http.Client
}

// Client provides access to a SABnzbd instance.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
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

	return &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
	}
}

// QueueSlot is one in-flight job in the SABnzbd queue.
type QueueSlot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	MB         string `json:"mb"`
	MBLeft     string `json:"mbleft"`
	Percentage string `json:"percentage"`
}

// Progress returns the completed fraction of the job in [0, 1].
func (s *QueueSlot) Progress() float64 {
	pct, err := strconv.ParseFloat(s.Percentage, 64)
	if err != nil {
		return 0
	}
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 1
	}
	return pct / 100
}

// HistorySlot is one finished (or failed) job in the SABnzbd history.
type HistorySlot struct {
	NzoID       string `json:"nzo_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Storage     string `json:"storage"`
	FailMessage string `json:"fail_message"`
	Bytes       int64  `json:"bytes"`
}

type queueResponse struct {
	Queue struct {
		Slots []QueueSlot `json:"slots"`
	} `json:"queue"`
}

type historyResponse struct {
	History struct {
		Slots []HistorySlot `json:"slots"`
	} `json:"history"`
}

type addURLResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

type statusResponse struct {
	Status bool   `json:"status"`
	Error  string `json:"error"`
}

func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	if c.httpClient == nil {
		return fmt.Errorf("sabnzbd HTTP client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint, err := url.JoinPath(c.host, "api")
	if err != nil {
		return fmt.Errorf("failed to build sabnzbd endpoint: %w", err)
	}

	params.Set("apikey", c.apiKey)
	params.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build sabnzbd request: %w", err)
	}
	req.URL.RawQuery = params.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sabnzbd request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sabnzbd unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sabnzbd response: %w", err)
	}

	return nil
}

// AddURL submits a download URL and returns the assigned job id. The job name
// and category are optional.
func (c *Client) AddURL(ctx context.Context, downloadURL, name, category string) (string, error) {
	if strings.TrimSpace(downloadURL) == "" {
		return "", fmt.Errorf("download url is required")
	}

	params := url.Values{}
	params.Set("mode", "addurl")
	params.Set("name", downloadURL)
	if name != "" {
		params.Set("nzbname", name)
	}
	if category != "" {
		params.Set("cat", category)
	}

	var resp addURLResponse
	if err := c.call(ctx, params, &resp); err != nil {
		return "", err
	}

	if !resp.Status {
		if resp.Error != "" {
			return "", fmt.Errorf("sabnzbd rejected url: %s", resp.Error)
		}
		return "", fmt.Errorf("sabnzbd rejected url")
	}
	if len(resp.NzoIDs) == 0 {
		return "", fmt.Errorf("sabnzbd accepted url but returned no job id")
	}

	return resp.NzoIDs[0], nil
}

// Queue returns the current download queue.
func (c *Client) Queue(ctx context.Context) ([]QueueSlot, error) {
	params := url.Values{}
	params.Set("mode", "queue")

	var resp queueResponse
	if err := c.call(ctx, params, &resp); err != nil {
		return nil, err
	}

	return resp.Queue.Slots, nil
}

// History returns up to limit of the most recent finished jobs.
func (c *Client) History(ctx context.Context, limit int) ([]HistorySlot, error) {
	params := url.Values{}
	params.Set("mode", "history")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp historyResponse
	if err := c.call(ctx, params, &resp); err != nil {
		return nil, err
	}

	return resp.History.Slots, nil
}

// DeleteQueueJob removes a job from the queue.
func (c *Client) DeleteQueueJob(ctx context.Context, nzoID string) error {
	params := url.Values{}
	params.Set("mode", "queue")
	params.Set("name", "delete")
	params.Set("value", nzoID)

	var resp statusResponse
	if err := c.call(ctx, params, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return fmt.Errorf("sabnzbd failed to delete queue job %s", nzoID)
	}

	return nil
}

// DeleteHistoryJob removes a job from the history, optionally deleting its
// downloaded files.
func (c *Client) DeleteHistoryJob(ctx context.Context, nzoID string, deleteFiles bool) error {
	params := url.Values{}
	params.Set("mode", "history")
	params.Set("name", "delete")
	params.Set("value", nzoID)
	if deleteFiles {
		params.Set("del_files", "1")
	}

	var resp statusResponse
	if err := c.call(ctx, params, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return fmt.Errorf("sabnzbd failed to delete history job %s", nzoID)
	}

	return nil
}

// Delete removes a job wherever it lives: it tries the queue first, then the
// history. Returns an error only if both removals fail.
func (c *Client) Delete(ctx context.Context, nzoID string, deleteFiles bool) error {
	queueErr := c.DeleteQueueJob(ctx, nzoID)
	if queueErr == nil {
		return nil
	}

	if historyErr := c.DeleteHistoryJob(ctx, nzoID, deleteFiles); historyErr != nil {
		return fmt.Errorf("job %s not removable from queue (%v) or history: %w", nzoID, queueErr, historyErr)
	}

	return nil
}

// Test verifies connectivity and authentication against the SABnzbd instance.
func (c *Client) Test(ctx context.Context) error {
	params := url.Values{}
	params.Set("mode", "version")

	var resp struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, params, &resp); err != nil {
		return err
	}
	if resp.Version == "" {
		return fmt.Errorf("sabnzbd returned no version, check the API key")
	}

	return nil
}

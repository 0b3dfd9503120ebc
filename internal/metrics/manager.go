// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes acquisition lifecycle counters on a dedicated
// Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Manager owns the Prometheus registry and the application counters.
type Manager struct {
	registry *prometheus.Registry

	SearchesTotal      *prometheus.CounterVec
	DownloadsInitiated prometheus.Counter
	DownloadsCompleted prometheus.Counter
	DownloadsFailed    *prometheus.CounterVec
	FilesProcessed     *prometheus.CounterVec
	BlacklistAdditions *prometheus.CounterVec
}

// NewManager creates a Manager with all counters registered alongside the
// standard Go and process collectors.
func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	m := &Manager{
		registry: registry,
		SearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnireadarr_searches_total",
			Help: "Total number of release searches by outcome",
		}, []string{"outcome"}),
		DownloadsInitiated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnireadarr_downloads_initiated_total",
			Help: "Total number of download attempts sent to the download client",
		}),
		DownloadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnireadarr_downloads_completed_total",
			Help: "Total number of download attempts that reached the downloaded state",
		}),
		DownloadsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnireadarr_downloads_failed_total",
			Help: "Total number of failed download attempts by error kind",
		}, []string{"kind"}),
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnireadarr_files_processed_total",
			Help: "Total number of post-processing runs by outcome",
		}, []string{"outcome"}),
		BlacklistAdditions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnireadarr_blacklist_additions_total",
			Help: "Total number of blacklist entries created by reason",
		}, []string{"reason"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SearchesTotal,
		m.DownloadsInitiated,
		m.DownloadsCompleted,
		m.DownloadsFailed,
		m.FilesProcessed,
		m.BlacklistAdditions,
	)

	return m
}

// Registry returns the registry for HTTP exposition.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
)

// Tester verifies connectivity to an external collaborator.
type Tester interface {
	Test(ctx context.Context) error
}

type HealthHandler struct {
	indexer        Tester
	downloadClient Tester
}

func NewHealthHandler(indexer, downloadClient Tester) *HealthHandler {
	return &HealthHandler{indexer: indexer, downloadClient: downloadClient}
}

type healthStatus struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// Liveness always succeeds while the process is serving.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, healthStatus{Status: "ok"})
}

// Readiness tests the indexer and the download client; a failing dependency
// yields 503 with per-service detail.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string, 2)
	healthy := true

	for name, tester := range map[string]Tester{
		"prowlarr": h.indexer,
		"sabnzbd":  h.downloadClient,
	} {
		if err := tester.Test(r.Context()); err != nil {
			services[name] = err.Error()
			healthy = false
		} else {
			services[name] = "ok"
		}
	}

	status := http.StatusOK
	body := healthStatus{Status: "ok", Services: services}
	if !healthy {
		status = http.StatusServiceUnavailable
		body.Status = "degraded"
	}

	RespondJSON(w, status, body)
}

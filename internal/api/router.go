// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api assembles the HTTP surface: routing, middleware and server
// lifecycle.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/robogeeko/OmniReadarr/internal/api/handlers"
	"github.com/robogeeko/OmniReadarr/internal/domain"
	"github.com/robogeeko/OmniReadarr/internal/metrics"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/internal/services/download"
	"github.com/robogeeko/OmniReadarr/internal/services/postprocess"
	"github.com/robogeeko/OmniReadarr/internal/services/search"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config             *domain.Config
	MediaStore         *models.MediaStore
	AttemptStore       *models.AttemptStore
	BlacklistStore     *models.BlacklistStore
	SearchService      *search.Service
	DownloadService    *download.Service
	PostProcessService *postprocess.Service
	Metrics            *metrics.Manager
	Indexer            handlers.Tester
	DownloadClient     handlers.Tester
}

// NewRouter builds the chi router with all API routes mounted under /api.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	mediaHandler := handlers.NewMediaHandler(deps.MediaStore)
	searchHandler := handlers.NewSearchHandler(deps.MediaStore, deps.SearchService, deps.Metrics)
	downloadHandler := handlers.NewDownloadHandler(deps.DownloadService, deps.AttemptStore, deps.BlacklistStore)
	postProcessHandler := handlers.NewPostProcessHandler(deps.PostProcessService)
	healthHandler := handlers.NewHealthHandler(deps.Indexer, deps.DownloadClient)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health/liveness", healthHandler.Liveness)
		r.Get("/health/readiness", healthHandler.Readiness)

		r.Route("/media", func(r chi.Router) {
			r.Get("/", mediaHandler.List)
			r.Post("/", mediaHandler.Create)

			r.Route("/{mediaID}", func(r chi.Router) {
				r.Get("/", mediaHandler.Get)
				r.Get("/search", searchHandler.Search)
				r.Get("/downloads", downloadHandler.ListByMedia)
				r.Post("/downloads", downloadHandler.Initiate)
				r.Get("/blacklist", downloadHandler.ListBlacklist)
			})
		})

		r.Route("/downloads/{attemptID}", func(r chi.Router) {
			r.Get("/", downloadHandler.Get)
			r.Post("/poll", downloadHandler.Poll)
			r.Post("/blacklist", downloadHandler.Blacklist)
			r.Delete("/", downloadHandler.Delete)

			r.Post("/process", postProcessHandler.Process)
			r.Post("/convert", postProcessHandler.Convert)
			r.Post("/organize", postProcessHandler.Organize)
		})
	})

	if deps.Config.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			deps.Metrics.Registry(),
			promhttp.HandlerOpts{},
		))
	}

	return r
}

// Server wraps the HTTP listener lifecycle.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server bound to the configured host and port.
func NewServer(cfg *domain.Config, handler http.Handler) *Server {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

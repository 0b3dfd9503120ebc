// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robogeeko/OmniReadarr/internal/api"
	"github.com/robogeeko/OmniReadarr/internal/config"
	"github.com/robogeeko/OmniReadarr/internal/database"
	"github.com/robogeeko/OmniReadarr/internal/logger"
	"github.com/robogeeko/OmniReadarr/internal/metrics"
	"github.com/robogeeko/OmniReadarr/internal/models"
	"github.com/robogeeko/OmniReadarr/internal/services/download"
	"github.com/robogeeko/OmniReadarr/internal/services/postprocess"
	"github.com/robogeeko/OmniReadarr/internal/services/search"
	"github.com/robogeeko/OmniReadarr/pkg/prowlarr"
	"github.com/robogeeko/OmniReadarr/pkg/sabnzbd"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "omnireadarr",
		Short: "Book and audiobook download lifecycle orchestrator",
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("omnireadarr %s", version)
			if commit != "" {
				cmd.Printf(" (%s)", commit)
			}
			if date != "" {
				cmd.Printf(" built %s", date)
			}
			cmd.Println()
		},
	}
}

func RunServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file or directory")

	return cmd
}

func serve(ctx context.Context, configPath string) error {
	appConfig, err := config.New(configPath, version)
	if err != nil {
		return err
	}
	cfg := appConfig.Config

	logger.Setup(cfg)

	db, err := database.New(appConfig.DatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	mediaStore := models.NewMediaStore(db)
	attemptStore := models.NewAttemptStore(db)
	blacklistStore := models.NewBlacklistStore(db)

	indexer := prowlarr.NewClient(prowlarr.Config{
		Host:    cfg.ProwlarrHost,
		APIKey:  cfg.ProwlarrAPIKey,
		Timeout: cfg.ProwlarrTimeoutSeconds,
	})
	downloadClient := sabnzbd.NewClient(sabnzbd.Config{
		Host:    cfg.SabnzbdHost,
		APIKey:  cfg.SabnzbdAPIKey,
		Timeout: cfg.SabnzbdTimeoutSeconds,
	})

	metricsManager := metrics.NewManager()

	searchService := search.NewService(indexer, blacklistStore, cfg)
	downloadService := download.NewService(attemptStore, mediaStore, blacklistStore, downloadClient, metricsManager, cfg)
	postProcessService := postprocess.NewService(attemptStore, mediaStore, metricsManager, cfg)

	router := api.NewRouter(api.Deps{
		Config:             cfg,
		MediaStore:         mediaStore,
		AttemptStore:       attemptStore,
		BlacklistStore:     blacklistStore,
		SearchService:      searchService,
		DownloadService:    downloadService,
		PostProcessService: postProcessService,
		Metrics:            metricsManager,
		Indexer:            indexer,
		DownloadClient:     downloadClient,
	})

	server := api.NewServer(cfg, router)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info().
		Str("version", version).
		Str("config", appConfig.ConfigPath()).
		Msg("omnireadarr started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

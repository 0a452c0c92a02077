// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/buildinfo"
	"github.com/autobrr/archivarr/internal/config"
	"github.com/autobrr/archivarr/internal/database"
	"github.com/autobrr/archivarr/internal/metrics/collector"
	"github.com/autobrr/archivarr/internal/services/connectors"
	"github.com/autobrr/archivarr/internal/services/enrichment"
	"github.com/autobrr/archivarr/internal/services/indexer"
	"github.com/autobrr/archivarr/internal/services/posters"
	"github.com/autobrr/archivarr/pkg/arr"
	"github.com/autobrr/archivarr/pkg/tmdb"
)

// app holds the configuration and database shared by every command.
type app struct {
	cfg *config.AppConfig
	db  *database.DB
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.New(configPath, buildinfo.Version)
	if err != nil {
		return nil, err
	}
	cfg.SetupLogging()

	dbPath := cfg.GetDatabasePath()
	db, err := database.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	log.Debug().Str("config", cfg.ConfigPath()).Str("database", dbPath).Msg("archivarr: opened database")

	return &app{cfg: cfg, db: db}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) resolver(metrics *collector.EnrichmentCollector) *enrichment.Resolver {
	c := a.cfg.Config
	timeout := c.ProviderTimeoutSeconds
	httpClient := arr.NewRetryingHTTPClient(time.Duration(timeout)*time.Second, 2, time.Second)

	return enrichment.NewResolver(a.db, enrichment.Config{
		Sonarr: arr.NewClient(arr.AppSonarr, arr.Config{
			Host:       c.SonarrURL,
			APIKey:     c.SonarrAPIKey,
			Timeout:    timeout,
			HTTPClient: httpClient,
			UserAgent:  buildinfo.UserAgent,
		}),
		Radarr: arr.NewClient(arr.AppRadarr, arr.Config{
			Host:       c.RadarrURL,
			APIKey:     c.RadarrAPIKey,
			Timeout:    timeout,
			HTTPClient: httpClient,
			UserAgent:  buildinfo.UserAgent,
		}),
		TMDB: tmdb.NewClient(tmdb.Config{
			BaseURL:           c.TMDBBaseURL,
			APIKey:            c.TMDBAPIKey,
			Timeout:           timeout,
			RequestsPerSecond: c.TMDBRequestsPerSecond,
			UserAgent:         buildinfo.UserAgent,
		}),
		Timeout: time.Duration(timeout) * time.Second,
		Metrics: metrics,
	})
}

func (a *app) posters(metrics *collector.EnrichmentCollector) (*posters.Cache, error) {
	return posters.New(a.db, posters.Config{
		Dir:       a.cfg.GetPosterDir(),
		Timeout:   time.Duration(a.cfg.Config.PosterTimeoutSeconds) * time.Second,
		UserAgent: buildinfo.UserAgent,
		Metrics:   metrics,
	})
}

func (a *app) connectors() *connectors.Service {
	return connectors.NewService(a.db, connectors.Options{
		Connectors: a.cfg.Config.Connectors,
		UserAgent:  buildinfo.UserAgent,
	})
}

func (a *app) indexer(opts indexer.Options) *indexer.Service {
	opts.PruneMissing = opts.PruneMissing || a.cfg.Config.PruneMissing
	return indexer.NewService(a.db, opts)
}

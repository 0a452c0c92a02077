// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/archivarr/internal/api"
	"github.com/autobrr/archivarr/internal/buildinfo"
	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/metrics"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/internal/services/enrichment"
	"github.com/autobrr/archivarr/internal/services/indexer"
)

const shutdownTimeout = 15 * time.Second

func RunServeCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, enrichment workers and optional drive watcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	c := a.cfg.Config
	stats := models.NewStatsStore(a.db)
	manager := metrics.NewManager(stats)

	resolver := a.resolver(manager.Enrichment)
	queue := enrichment.NewQueue(resolver, c.EnrichQueueSize, c.EnrichWorkers)

	cache, err := a.posters(manager.Enrichment)
	if err != nil {
		return err
	}
	queue.SetPosterCache(cache)

	svc := a.indexer(indexer.Options{
		Queue:   queue,
		Metrics: manager.Indexer,
	})

	if len(c.Connectors) > 0 {
		if _, err := a.connectors().Register(ctx, c.Connectors); err != nil {
			log.Error().Err(err).Msg("archivarr: failed to register connectors")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Run(gctx)
	})

	if c.WatchEnabled && len(c.ScanRoots) > 0 {
		watcher, err := indexer.NewWatcher(svc, c.ScanRoots, time.Duration(c.WatchDebounceSeconds)*time.Second, manager.Indexer)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	var metricsServer *metrics.Server
	if c.MetricsEnabled {
		metricsServer = metrics.NewMetricsServer(manager, c.MetricsHost, c.MetricsPort, c.MetricsBasicAuthUsers)
		g.Go(metricsServer.ListenAndServe)
	}

	server := api.NewServer(&api.Dependencies{
		Scanner:   svc,
		Roots:     func() []domain.ScanRoot { return c.ScanRoots },
		Sweeper:   resolver,
		Posters:   cache,
		Stats:     stats,
		DB:        a.db.Conn(),
		PosterDir: cache.Dir(),
		Version:   buildinfo.Version,
	})
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	g.Go(func() error {
		return server.ListenAndServe(addr)
	})

	if c.ScanOnStart && len(c.ScanRoots) > 0 {
		if _, err := svc.StartScan(gctx, c.ScanRoots); err != nil {
			log.Warn().Err(err).Msg("archivarr: scan on start was not started")
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("archivarr: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		errs = append(errs, server.Shutdown(shutdownCtx))
		if metricsServer != nil {
			errs = append(errs, metricsServer.Shutdown(shutdownCtx))
		}
		svc.Wait()
		queue.Close()
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

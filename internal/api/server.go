// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api is the thin HTTP adapter over the archive engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/api/handlers"
	"github.com/autobrr/archivarr/internal/api/middleware"
	"github.com/autobrr/archivarr/internal/api/sse"
	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/internal/services/indexer"
)

// Scanner is the subset of indexer.Service the server drives.
type Scanner interface {
	handlers.ScanStarter
	Tracker() *indexer.Tracker
}

// Dependencies are the engine parts exposed over HTTP. Sweeper and Posters
// may be nil.
type Dependencies struct {
	Scanner   Scanner
	Roots     func() []domain.ScanRoot
	Sweeper   handlers.Sweeper
	Posters   handlers.PosterRefresher
	Stats     handlers.ArchiveStatsSource
	DB        handlers.Pinger
	PosterDir string
	Version   string
}

type Server struct {
	deps     *Dependencies
	ctx      context.Context //nolint:containedctx // parent of background work started by handlers
	cancel   context.CancelFunc
	progress *sse.ProgressStream
	jobs     *handlers.JobsHandler
	server   *http.Server
}

func NewServer(deps *Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler builds the router.
func (s *Server) Handler() (*chi.Mux, error) {
	if s.deps == nil || s.deps.Scanner == nil {
		return nil, errors.New("api: scanner is required")
	}
	if s.deps.Stats == nil {
		return nil, errors.New("api: stats source is required")
	}

	roots := s.deps.Roots
	if roots == nil {
		roots = func() []domain.ScanRoot { return nil }
	}

	tracker := s.deps.Scanner.Tracker()
	if s.progress == nil {
		s.progress = sse.NewProgressStream(tracker)
	}
	if s.jobs == nil {
		s.jobs = handlers.NewJobsHandler(s.ctx, s.deps.Sweeper, s.deps.Posters)
	}

	scanHandler := handlers.NewScanHandler(s.ctx, s.deps.Scanner, tracker, roots)
	statsHandler := handlers.NewStatsHandler(s.deps.Stats)

	var health *handlers.HealthHandler
	if s.deps.DB != nil {
		health = handlers.NewHealthHandler(s.deps.DB)
	} else {
		health = handlers.NewHealthHandler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(log.With().Str("component", "api").Logger()))

	c := cors.New(cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		AllowOriginFunc:  func(string) bool { return true },
	})
	r.Use(c.Handler)

	r.Route("/health", health.Routes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/scan/events", s.progress.Serve)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))

			r.Post("/scan", scanHandler.StartScan)
			r.Get("/scan/status", scanHandler.Status)
			r.Post("/enrich", s.jobs.StartEnrich)
			r.Post("/posters", s.jobs.StartPosters)
			r.Get("/jobs", s.jobs.Status)
			r.Get("/stats", statsHandler.Archive)
		})
	})

	if s.deps.PosterDir != "" {
		fs := http.StripPrefix(models.LocalPosterPrefix, http.FileServer(http.Dir(s.deps.PosterDir)))
		r.Get(models.LocalPosterPrefix+"*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=86400")
			fs.ServeHTTP(w, r)
		})
	}

	return r, nil
}

// ListenAndServe serves the router on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	router, err := s.Handler()
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Str("version", s.deps.Version).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels background jobs and waits for
// them to return.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.progress != nil {
		errs = append(errs, s.progress.Shutdown(ctx))
	}
	if s.server != nil {
		errs = append(errs, s.server.Shutdown(ctx))
	}
	s.cancel()
	if s.jobs != nil {
		s.jobs.Wait()
	}
	return errors.Join(errs...)
}

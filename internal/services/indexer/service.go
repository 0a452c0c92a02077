// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package indexer walks the configured scan roots, keeps the media tables
// in step with the files found there and publishes scan progress.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/dbinterface"
	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/metrics/collector"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/internal/services/enrichment"
)

var ErrScanInProgress = errors.New("scan already in progress")

// Sweeper enriches every media row that has no metadata yet.
type Sweeper interface {
	EnrichMissing(ctx context.Context) (*enrichment.SweepSummary, error)
}

type Options struct {
	// PruneMissing deletes file rows of a scanned drive that were not seen
	// during the walk, then media rows left without files.
	PruneMissing bool

	// Queue receives a request for every media touched by the walk. After
	// the walk, media still missing metadata are submitted again.
	Queue Enqueuer

	// Sweeper runs synchronously after the walk when Queue is nil.
	Sweeper Sweeper

	Metrics *collector.IndexerCollector
}

// Summary describes a finished run.
type Summary struct {
	RunID      string                   `json:"runId"`
	StartedAt  time.Time                `json:"startedAt"`
	FinishedAt time.Time                `json:"finishedAt"`
	Roots      []RootSummary            `json:"roots"`
	Files      int                      `json:"files"`
	Indexed    int                      `json:"indexed"`
	Skipped    int                      `json:"skipped"`
	Errors     int                      `json:"errors"`
	Pruned     int                      `json:"pruned"`
	Orphans    int64                    `json:"orphans"`
	Aggregated int64                    `json:"aggregated"`
	Requeued   int                      `json:"requeued"`
	Enrichment *enrichment.SweepSummary `json:"enrichment,omitempty"`
}

func (s *Summary) add(root *RootSummary) {
	s.Roots = append(s.Roots, *root)
	s.Files += root.Files
	s.Indexed += root.Indexed
	s.Skipped += root.Skipped
	s.Errors += root.Errors
	s.Pruned += root.Pruned
}

// Service runs scans one at a time.
type Service struct {
	opts      Options
	drives    *models.DriveStore
	media     *models.MediaStore
	files     *models.FileStore
	aggregate *models.AggregateStore
	tracker   *Tracker
	logger    zerolog.Logger

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewService(db dbinterface.TxRunner, opts Options) *Service {
	return &Service{
		opts:      opts,
		drives:    models.NewDriveStore(db),
		media:     models.NewMediaStore(db),
		files:     models.NewFileStore(db),
		aggregate: models.NewAggregateStore(db),
		tracker:   NewTracker(),
		logger:    log.With().Str("component", "indexer").Logger(),
	}
}

func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Scan indexes roots and returns once the run, including the post-scan
// enrichment pass, has finished.
func (s *Service) Scan(ctx context.Context, roots []domain.ScanRoot) (*Summary, error) {
	if !s.mu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer s.mu.Unlock()

	return s.run(ctx, uuid.NewString(), roots)
}

// StartScan runs Scan in the background and returns the run id. ctx must
// outlive the caller's request.
func (s *Service) StartScan(ctx context.Context, roots []domain.ScanRoot) (string, error) {
	if !s.mu.TryLock() {
		return "", ErrScanInProgress
	}

	runID := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.mu.Unlock()

		if _, err := s.run(ctx, runID, roots); err != nil {
			s.logger.Error().Err(err).Str("runId", runID).Msg("indexer: background scan failed")
		}
	}()

	return runID, nil
}

// Wait blocks until background scans have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, runID string, roots []domain.ScanRoot) (*Summary, error) {
	started := time.Now()
	summary := &Summary{RunID: runID, StartedAt: started}
	l := s.logger.With().Str("runId", runID).Logger()

	events := make(chan Event, 256)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		s.tracker.Consume(events)
	}()

	w := &walker{
		runID:   runID,
		drives:  s.drives,
		media:   s.media,
		files:   s.files,
		enqueue: s.opts.Queue,
		events:  events,
		metrics: s.opts.Metrics,
		logger:  l,
	}

	w.emit(Event{Kind: EventRunStarted})
	l.Info().Int("roots", len(roots)).Msg("indexer: scan started")

	runErr := s.walkRoots(ctx, w, roots, summary)

	// rows written before a cancellation still get their rollups
	aggCtx := context.WithoutCancel(ctx)
	if s.opts.PruneMissing && runErr == nil {
		orphans, err := s.media.PruneOrphans(aggCtx)
		if err != nil {
			l.Error().Err(err).Msg("indexer: failed to prune orphaned media")
		}
		summary.Orphans = orphans
	}

	aggregated, err := s.aggregate.Recompute(aggCtx)
	if err != nil {
		l.Error().Err(err).Msg("indexer: failed to recompute aggregates")
		if runErr == nil {
			runErr = fmt.Errorf("recompute aggregates: %w", err)
		}
	}
	summary.Aggregated = aggregated
	s.opts.Metrics.AddAggregated(aggregated)

	if runErr == nil {
		s.enrichMissing(ctx, summary, &l)
	}

	summary.FinishedAt = time.Now()
	done := Event{Kind: EventRunDone}
	if runErr != nil {
		done.Error = runErr.Error()
	}
	w.emit(done)
	close(events)
	<-consumed

	status := "success"
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = "canceled"
	case runErr != nil:
		status = "error"
	case summary.Errors > 0:
		status = "partial"
	}
	s.opts.Metrics.ObserveScan(status, summary.FinishedAt.Sub(started))

	l.Info().
		Str("status", status).
		Int("files", summary.Files).
		Int("indexed", summary.Indexed).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Int("pruned", summary.Pruned).
		Int64("aggregated", summary.Aggregated).
		Dur("took", summary.FinishedAt.Sub(started)).
		Msg("indexer: scan finished")

	return summary, runErr
}

// walkRoots walks every root in order. A root that cannot be walked is
// recorded and the next one is tried; only cancellation stops the run.
func (s *Service) walkRoots(ctx context.Context, w *walker, roots []domain.ScanRoot, summary *Summary) error {
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}

		rootKey := root.Path
		if p, err := root.NormalizedPath(); err == nil {
			rootKey = p
		}
		w.emit(Event{Kind: EventRootStarted, Root: rootKey})

		seen := make(map[string]struct{})
		rootSum, err := w.walkRoot(ctx, root, seen)
		if rootSum == nil {
			rootSum = &RootSummary{Name: root.DisplayName(), Path: rootKey}
		}

		if err == nil && s.opts.PruneMissing {
			pruned, pruneErr := s.files.PruneDrive(ctx, rootSum.DriveID, seen)
			if pruneErr != nil {
				w.logger.Error().Err(pruneErr).Str("root", rootKey).Msg("indexer: failed to prune missing files")
			}
			rootSum.Pruned = pruned
		}

		if err != nil {
			rootSum.Error = err.Error()
			w.logger.Error().Err(err).Str("root", rootKey).Msg("indexer: scan root failed")
		}
		summary.add(rootSum)
		w.emit(Event{Kind: EventRootDone, Root: rootKey, Error: rootSum.Error})

		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// enrichMissing gives media that still lack metadata another chance. With
// a queue the requests are handed to the workers, otherwise the sweep runs
// inline.
func (s *Service) enrichMissing(ctx context.Context, summary *Summary, l *zerolog.Logger) {
	switch {
	case s.opts.Queue != nil:
		missing, err := s.media.List(ctx, models.MediaFilter{MissingMetadata: true})
		if err != nil {
			l.Error().Err(err).Msg("indexer: failed to list media missing metadata")
			return
		}
		for _, m := range missing {
			if err := s.opts.Queue.Submit(enrichment.RequestFor(m, false)); err != nil {
				s.opts.Metrics.IncQueueDrop()
				continue
			}
			summary.Requeued++
		}
		if summary.Requeued < len(missing) {
			l.Warn().Int("missing", len(missing)).Int("queued", summary.Requeued).Msg("indexer: enrichment queue could not take every request")
		}

	case s.opts.Sweeper != nil:
		sweep, err := s.opts.Sweeper.EnrichMissing(ctx)
		if err != nil {
			l.Error().Err(err).Msg("indexer: enrichment sweep failed")
		}
		summary.Enrichment = sweep
	}
}

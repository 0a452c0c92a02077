// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package enrichment

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueClosed = errors.New("enrichment queue closed")
	ErrQueueFull   = errors.New("enrichment queue full")
)

// Enricher resolves a single request.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (*Result, error)
}

// PosterCacher localizes the images of a resolved media row.
type PosterCacher interface {
	Cache(ctx context.Context, mediaID string) (string, error)
}

// Queue buffers media-touched requests for a pool of workers. Submit never
// blocks, and a media id that is queued or being resolved is not added twice.
type Queue struct {
	enricher Enricher
	posters  PosterCacher
	workers  int
	ch       chan Request

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

func NewQueue(enricher Enricher, size, workers int) *Queue {
	if size <= 0 {
		size = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		enricher: enricher,
		workers:  workers,
		ch:       make(chan Request, size),
		pending:  make(map[string]struct{}),
	}
}

// SetPosterCache makes workers cache posters of every resolved request.
// Call it before Run.
func (q *Queue) SetPosterCache(p PosterCacher) {
	q.posters = p
}

// Submit enqueues req. It returns ErrQueueFull when the buffer is full and
// ErrQueueClosed after Close.
func (q *Queue) Submit(req Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.pending[req.MediaID]; ok {
		return nil
	}

	select {
	case q.ch <- req:
		q.pending[req.MediaID] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of requests queued or being resolved.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting requests. Workers finish what is already queued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Run processes requests until Close drains the queue or ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case req, ok := <-q.ch:
					if !ok {
						return nil
					}
					q.process(ctx, req)
					q.done(req.MediaID)
				}
			}
		})
	}
	return g.Wait()
}

func (q *Queue) done(mediaID string) {
	q.mu.Lock()
	delete(q.pending, mediaID)
	q.mu.Unlock()
}

func (q *Queue) process(ctx context.Context, req Request) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("mediaId", req.MediaID).Msg("enrichment: worker recovered from panic")
		}
	}()

	res, err := q.enricher.Enrich(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("mediaId", req.MediaID).Str("title", req.Title).Msg("enrichment: request failed")
		}
		return
	}

	if q.posters == nil || res == nil || res.Outcome != OutcomeResolved {
		return
	}
	if _, err := q.posters.Cache(ctx, req.MediaID); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("mediaId", req.MediaID).Msg("enrichment: poster caching failed")
	}
}

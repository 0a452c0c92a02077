// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/services/enrichment"
	"github.com/autobrr/archivarr/internal/services/posters"
)

// Sweeper runs the enrichment sweeps.
type Sweeper interface {
	EnrichMissing(ctx context.Context) (*enrichment.SweepSummary, error)
	ReEnrichAll(ctx context.Context) (*enrichment.SweepSummary, error)
}

// PosterRefresher localizes every stored poster reference.
type PosterRefresher interface {
	RefreshAll(ctx context.Context) (*posters.RefreshSummary, error)
}

// JobStatus describes the last run of a background job.
type JobStatus struct {
	Name       string     `json:"name"`
	Running    bool       `json:"running"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// job runs one background task at a time and remembers its last result.
type job struct {
	name string

	mu     sync.Mutex
	status JobStatus
	wg     sync.WaitGroup
}

func (j *job) start(ctx context.Context, fn func(ctx context.Context) (any, error)) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.Running {
		return false
	}
	now := time.Now().UTC()
	j.status = JobStatus{Name: j.name, Running: true, StartedAt: &now}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		result, err := fn(ctx)

		j.mu.Lock()
		defer j.mu.Unlock()
		done := time.Now().UTC()
		j.status.Running = false
		j.status.FinishedAt = &done
		j.status.Result = result
		if err != nil {
			j.status.Error = err.Error()
			log.Error().Err(err).Str("job", j.name).Msg("Background job failed")
		}
	}()
	return true
}

func (j *job) snapshot() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := j.status
	st.Name = j.name
	return st
}

type JobsHandler struct {
	ctx     context.Context //nolint:containedctx // lifecycle context of background jobs
	sweeper Sweeper
	posters PosterRefresher

	enrich  job
	refresh job
}

func NewJobsHandler(ctx context.Context, sweeper Sweeper, refresher PosterRefresher) *JobsHandler {
	return &JobsHandler{
		ctx:     ctx,
		sweeper: sweeper,
		posters: refresher,
		enrich:  job{name: "enrich"},
		refresh: job{name: "posters"},
	}
}

type EnrichRequest struct {
	All bool `json:"all"`
}

// StartEnrich handles POST /api/enrich. With all=true every title is
// revisited, otherwise only titles without metadata.
func (h *JobsHandler) StartEnrich(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		RespondError(w, http.StatusServiceUnavailable, "Enrichment is not configured")
		return
	}

	var req EnrichRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}
	all := QueryBool(r, "all", req.All)

	started := h.enrich.start(h.ctx, func(ctx context.Context) (any, error) {
		if all {
			return h.sweeper.ReEnrichAll(ctx)
		}
		return h.sweeper.EnrichMissing(ctx)
	})
	if !started {
		RespondError(w, http.StatusConflict, "Enrichment is already running")
		return
	}
	RespondJSON(w, http.StatusAccepted, h.enrich.snapshot())
}

// StartPosters handles POST /api/posters.
func (h *JobsHandler) StartPosters(w http.ResponseWriter, _ *http.Request) {
	if h.posters == nil {
		RespondError(w, http.StatusServiceUnavailable, "Poster cache is not configured")
		return
	}

	started := h.refresh.start(h.ctx, func(ctx context.Context) (any, error) {
		return h.posters.RefreshAll(ctx)
	})
	if !started {
		RespondError(w, http.StatusConflict, "Poster refresh is already running")
		return
	}
	RespondJSON(w, http.StatusAccepted, h.refresh.snapshot())
}

// Status handles GET /api/jobs.
func (h *JobsHandler) Status(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, []JobStatus{h.enrich.snapshot(), h.refresh.snapshot()})
}

// Wait blocks until running jobs have returned.
func (h *JobsHandler) Wait() {
	h.enrich.wg.Wait()
	h.refresh.wg.Wait()
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package enrichment

import (
	"context"

	"github.com/autobrr/archivarr/internal/models"
)

// SweepSummary counts the outcomes of a sweep.
type SweepSummary struct {
	Total     int `json:"total"`
	Resolved  int `json:"resolved"`
	Sentinels int `json:"sentinels"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s *SweepSummary) add(res *Result, err error) {
	s.Total++
	if err != nil {
		s.Failed++
		return
	}
	switch res.Outcome {
	case OutcomeResolved:
		s.Resolved++
	case OutcomeSentinel:
		s.Sentinels++
	default:
		s.Skipped++
	}
}

// EnrichMissing enriches every media row that has no metadata row yet.
func (r *Resolver) EnrichMissing(ctx context.Context) (*SweepSummary, error) {
	media, err := r.media.List(ctx, models.MediaFilter{MissingMetadata: true})
	if err != nil {
		return nil, err
	}
	return r.sweep(ctx, media, false)
}

// ReEnrichAll walks every media row. Rows with a poster are skipped and
// rows without one are looked up again.
func (r *Resolver) ReEnrichAll(ctx context.Context) (*SweepSummary, error) {
	media, err := r.media.List(ctx, models.MediaFilter{})
	if err != nil {
		return nil, err
	}
	return r.sweep(ctx, media, true)
}

func (r *Resolver) sweep(ctx context.Context, media []models.Media, retry bool) (*SweepSummary, error) {
	summary := &SweepSummary{}
	r.logger.Info().Int("media", len(media)).Bool("retry", retry).Msg("enrichment: sweep started")

	for _, m := range media {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := r.Enrich(ctx, RequestFor(m, retry))
		if err != nil {
			r.logger.Warn().Err(err).Str("mediaId", m.ID).Str("title", m.Title).Msg("enrichment: failed to enrich")
		}
		summary.add(res, err)
	}

	r.logger.Info().
		Int("resolved", summary.Resolved).
		Int("sentinels", summary.Sentinels).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("enrichment: sweep complete")
	return summary, nil
}

// RequestFor builds the request for a stored media row.
func RequestFor(m models.Media, retry bool) Request {
	req := Request{MediaID: m.ID, Type: m.Type, Title: m.Title, Retry: retry}
	if m.ReleaseYear != nil {
		req.Year = *m.ReleaseYear
	}
	return req
}

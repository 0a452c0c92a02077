// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package posters

import (
	"context"
)

// RefreshSummary counts the results of RefreshAll.
type RefreshSummary struct {
	Metadata         int `json:"metadata"`
	ConnectorMedia   int `json:"connectorMedia"`
	Downloaded       int `json:"downloaded"`
	AlreadyCached    int `json:"alreadyCached"`
	Fallbacks        int `json:"fallbacks"`
	BackdropsCleared int `json:"backdropsCleared"`
	Failed           int `json:"failed"`
}

func (s *RefreshSummary) count(o outcome) {
	switch o {
	case outcomeDownloaded:
		s.Downloaded++
	case outcomeCached:
		s.AlreadyCached++
	case outcomeFallback:
		s.Fallbacks++
	case outcomeCleared:
		s.BackdropsCleared++
	}
}

// RefreshAll localizes every metadata poster and backdrop and every
// connector poster. A failing row is logged and counted; only ctx
// cancellation stops the pass.
func (c *Cache) RefreshAll(ctx context.Context) (*RefreshSummary, error) {
	summary := &RefreshSummary{}

	rows, err := c.metadata.List(ctx, true)
	if err != nil {
		return nil, err
	}
	c.logger.Info().Int("metadata", len(rows)).Msg("posters: refresh started")

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		md := &rows[i]
		summary.Metadata++

		_, o, err := c.cachePoster(ctx, md)
		if err != nil {
			summary.Failed++
			c.logger.Error().Err(err).Str("mediaId", md.MediaID).Msg("posters: failed to cache poster")
			continue
		}
		summary.count(o)

		o, err = c.cacheBackdrop(ctx, md)
		if err != nil {
			summary.Failed++
			c.logger.Error().Err(err).Str("mediaId", md.MediaID).Msg("posters: failed to cache backdrop")
			continue
		}
		summary.count(o)
	}

	refs, err := c.connectors.ListMediaPosters(ctx)
	if err != nil {
		return summary, err
	}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.ConnectorMedia++

		o, err := c.cacheConnectorPoster(ctx, ref)
		if err != nil {
			summary.Failed++
			c.logger.Error().Err(err).Int64("connectorMediaId", ref.ID).Msg("posters: failed to cache connector poster")
			continue
		}
		summary.count(o)
	}

	c.logger.Info().
		Int("downloaded", summary.Downloaded).
		Int("cached", summary.AlreadyCached).
		Int("fallbacks", summary.Fallbacks).
		Int("failed", summary.Failed).
		Msg("posters: refresh complete")
	return summary, nil
}

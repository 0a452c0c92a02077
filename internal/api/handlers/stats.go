// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/models"
)

type ArchiveStatsSource interface {
	Archive(ctx context.Context) (*models.ArchiveStats, error)
}

type StatsHandler struct {
	source ArchiveStatsSource
}

func NewStatsHandler(source ArchiveStatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

// Archive handles GET /api/stats.
func (h *StatsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	stats, err := h.source.Archive(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute archive stats")
		RespondError(w, http.StatusInternalServerError, "Failed to compute archive stats")
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

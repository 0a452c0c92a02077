// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/services/indexer"
)

// ScanStarter is the subset of indexer.Service used by ScanHandler.
type ScanStarter interface {
	StartScan(ctx context.Context, roots []domain.ScanRoot) (string, error)
}

// SnapshotSource returns the latest scan progress.
type SnapshotSource interface {
	Snapshot() indexer.Snapshot
}

type ScanHandler struct {
	ctx     context.Context //nolint:containedctx // lifecycle context of background scans
	scanner ScanStarter
	tracker SnapshotSource
	roots   func() []domain.ScanRoot
}

// NewScanHandler builds the scan endpoints. Scans started over HTTP run on
// ctx, so they outlive the request that triggered them.
func NewScanHandler(ctx context.Context, scanner ScanStarter, tracker SnapshotSource, roots func() []domain.ScanRoot) *ScanHandler {
	return &ScanHandler{ctx: ctx, scanner: scanner, tracker: tracker, roots: roots}
}

type ScanStartedResponse struct {
	RunID string `json:"runId"`
}

// StartScan handles POST /api/scan.
func (h *ScanHandler) StartScan(w http.ResponseWriter, _ *http.Request) {
	roots := h.roots()
	if len(roots) == 0 {
		RespondError(w, http.StatusBadRequest, "No scan roots configured")
		return
	}

	runID, err := h.scanner.StartScan(h.ctx, roots)
	if errors.Is(err, indexer.ErrScanInProgress) {
		RespondError(w, http.StatusConflict, "A scan is already running")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to start scan")
		RespondError(w, http.StatusInternalServerError, "Failed to start scan")
		return
	}

	RespondJSON(w, http.StatusAccepted, ScanStartedResponse{RunID: runID})
}

// Status handles GET /api/scan/status.
func (h *ScanHandler) Status(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, h.tracker.Snapshot())
}

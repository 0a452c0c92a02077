// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sse streams scan progress events to HTTP clients.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmaxmax/go-sse"

	"github.com/autobrr/archivarr/internal/services/indexer"
)

const (
	progressTopic       = "scan"
	streamEventSnapshot = "snapshot"
	streamEventProgress = "progress"
	streamEventError    = "stream-error"
)

// ProgressSource is the subset of indexer.Tracker the stream needs.
type ProgressSource interface {
	Snapshot() indexer.Snapshot
	Subscribe(fn func(indexer.Event)) func()
}

// StreamPayload is the message envelope sent to clients.
type StreamPayload struct {
	Type     string            `json:"type"`
	Event    *indexer.Event    `json:"event,omitempty"`
	Snapshot *indexer.Snapshot `json:"snapshot,omitempty"`
	Err      string            `json:"error,omitempty"`
}

// ProgressStream publishes every tracker event to all connected clients,
// followed by the final snapshot when a run ends. Clients that connect
// mid-run read GET /api/scan/status for the state so far.
type ProgressStream struct {
	server      *sse.Server
	source      ProgressSource
	unsubscribe func()
	closing     atomic.Bool
}

func NewProgressStream(source ProgressSource) *ProgressStream {
	replayer, err := sse.NewFiniteReplayer(16, true)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create SSE replayer; reconnecting clients may miss events")
		replayer = nil
	}

	s := &ProgressStream{
		server: &sse.Server{
			Provider: &sse.Joe{Replayer: replayer},
		},
		source: source,
	}
	s.server.OnSession = s.onSession
	s.unsubscribe = source.Subscribe(s.handleEvent)
	return s
}

// Serve implements GET /api/scan/events.
func (s *ProgressStream) Serve(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		http.Error(w, "stream shutting down", http.StatusServiceUnavailable)
		return
	}

	// streams are long-lived; drop the server-wide write deadline
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	s.server.ServeHTTP(w, r)
}

func (s *ProgressStream) onSession(w http.ResponseWriter, _ *http.Request) ([]string, bool) {
	if s.closing.Load() {
		http.Error(w, "stream shutting down", http.StatusServiceUnavailable)
		return nil, false
	}
	return []string{progressTopic}, true
}

func (s *ProgressStream) handleEvent(ev indexer.Event) {
	if s.closing.Load() {
		return
	}
	s.publish(&StreamPayload{Type: streamEventProgress, Event: &ev})

	if ev.Kind == indexer.EventRunDone {
		snap := s.source.Snapshot()
		s.publish(&StreamPayload{Type: streamEventSnapshot, Snapshot: &snap})
	}
}

func (s *ProgressStream) publish(payload *StreamPayload) {
	message := &sse.Message{Type: sse.Type(payload.Type)}

	encoded, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE payload")
		message = &sse.Message{Type: sse.Type(streamEventError)}
		encoded, _ = json.Marshal(&StreamPayload{Type: streamEventError, Err: "failed to serialize update"})
	}
	message.AppendData(string(encoded))

	if err := s.server.Publish(message, progressTopic); err != nil && !errors.Is(err, sse.ErrProviderClosed) {
		log.Error().Err(err).Msg("Failed to publish SSE message")
	}
}

func (s *ProgressStream) Shutdown(ctx context.Context) error {
	if s == nil || !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.unsubscribe()

	if err := s.server.Shutdown(ctx); err != nil &&
		!errors.Is(err, sse.ErrProviderClosed) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

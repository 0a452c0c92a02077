// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package enrichment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnricher struct {
	mu       sync.Mutex
	seen     []string
	panic    string
	sentinel string
	started  chan string
	release  chan struct{}
}

func (e *recordingEnricher) Enrich(_ context.Context, req Request) (*Result, error) {
	if req.MediaID == e.panic {
		panic("boom")
	}
	if e.started != nil {
		e.started <- req.MediaID
		<-e.release
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, req.MediaID)
	if req.MediaID == e.sentinel {
		return &Result{MediaID: req.MediaID, Outcome: OutcomeSentinel}, nil
	}
	return &Result{MediaID: req.MediaID, Outcome: OutcomeResolved}, nil
}

type recordingPosters struct {
	mu     sync.Mutex
	cached []string
}

func (p *recordingPosters) Cache(_ context.Context, mediaID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = append(p.cached, mediaID)
	return "/static/posters/" + mediaID + ".jpg", nil
}

func (e *recordingEnricher) processed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

func TestQueueCoalescesPendingRequests(t *testing.T) {
	t.Parallel()

	enricher := &recordingEnricher{}
	q := NewQueue(enricher, 8, 2)

	require.NoError(t, q.Submit(Request{MediaID: "a"}))
	require.NoError(t, q.Submit(Request{MediaID: "a"}))
	require.NoError(t, q.Submit(Request{MediaID: "b"}))
	assert.Equal(t, 2, q.Pending())

	q.Close()
	require.NoError(t, q.Run(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b"}, enricher.processed())
	assert.Zero(t, q.Pending())
}

func TestQueueRejectsWhenFullOrClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(&recordingEnricher{}, 1, 1)

	require.NoError(t, q.Submit(Request{MediaID: "a"}))
	assert.ErrorIs(t, q.Submit(Request{MediaID: "b"}), ErrQueueFull)

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.Submit(Request{MediaID: "c"}), ErrQueueClosed)
}

func TestQueueSurvivesPanickingRequest(t *testing.T) {
	t.Parallel()

	enricher := &recordingEnricher{panic: "bad"}
	q := NewQueue(enricher, 4, 1)

	require.NoError(t, q.Submit(Request{MediaID: "bad"}))
	require.NoError(t, q.Submit(Request{MediaID: "good"}))
	q.Close()

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, []string{"good"}, enricher.processed())
}

func TestQueueStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := NewQueue(&recordingEnricher{}, 4, 2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not stop after cancel")
	}
}

func TestQueueAcceptsResubmitAfterProcessing(t *testing.T) {
	t.Parallel()

	enricher := &recordingEnricher{}
	q := NewQueue(enricher, 4, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.NoError(t, q.Submit(Request{MediaID: "a"}))
	require.Eventually(t, func() bool { return len(enricher.processed()) == 1 && q.Pending() == 0 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, q.Submit(Request{MediaID: "a"}))
	require.Eventually(t, func() bool { return len(enricher.processed()) == 2 }, 5*time.Second, 5*time.Millisecond)

	q.Close()
	require.NoError(t, <-done)
}

func TestQueueCoalescesRequestsBeingResolved(t *testing.T) {
	t.Parallel()

	enricher := &recordingEnricher{started: make(chan string, 1), release: make(chan struct{})}
	q := NewQueue(enricher, 4, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.NoError(t, q.Submit(Request{MediaID: "a"}))
	select {
	case id := <-enricher.started:
		assert.Equal(t, "a", id)
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the request")
	}

	require.NoError(t, q.Submit(Request{MediaID: "a"}))
	assert.Equal(t, 1, q.Pending())

	close(enricher.release)
	q.Close()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"a"}, enricher.processed())
	assert.Zero(t, q.Pending())
}

func TestQueueCachesPostersOfResolvedMedia(t *testing.T) {
	t.Parallel()

	posters := &recordingPosters{}
	q := NewQueue(&recordingEnricher{sentinel: "unknown"}, 4, 1)
	q.SetPosterCache(posters)

	require.NoError(t, q.Submit(Request{MediaID: "heat"}))
	require.NoError(t, q.Submit(Request{MediaID: "unknown"}))
	q.Close()
	require.NoError(t, q.Run(context.Background()))

	assert.Equal(t, []string{"heat"}, posters.cached)
}

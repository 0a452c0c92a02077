// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"maps"
	"sync"
	"time"
)

type FileProgress struct {
	Root      string    `json:"root"`
	State     FileState `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type RootProgress struct {
	State      RootState  `json:"state"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Files      int        `json:"files"`
	Indexed    int        `json:"indexed"`
	Skipped    int        `json:"skipped"`
	Errors     int        `json:"errors"`
	Error      string     `json:"error,omitempty"`
}

// Snapshot is the latest view of the current or last scan run.
type Snapshot struct {
	RunID      string                  `json:"runId,omitempty"`
	Running    bool                    `json:"running"`
	StartedAt  *time.Time              `json:"startedAt,omitempty"`
	FinishedAt *time.Time              `json:"finishedAt,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Roots      map[string]RootProgress `json:"roots"`
	Files      map[string]FileProgress `json:"files"`
	Indexed    int                     `json:"indexed"`
	Skipped    int                     `json:"skipped"`
	Errors     int                     `json:"errors"`
}

// Tracker folds walker events into a Snapshot. The state is reset when a
// new run starts, so entries of the previous run stay visible until then.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	subMu   sync.RWMutex
	subs    map[uint64]func(Event)
	nextSub uint64
}

func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{
		Roots: make(map[string]RootProgress),
		Files: make(map[string]FileProgress),
	}}
}

// Consume applies events until the channel is closed and forwards each
// one to the subscribers.
func (t *Tracker) Consume(events <-chan Event) {
	for ev := range events {
		t.Apply(ev)
		t.notify(ev)
	}
}

// Subscribe registers fn for every consumed event. fn runs on the consumer
// goroutine and must not block. The returned func removes the subscription.
func (t *Tracker) Subscribe(fn func(Event)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	if t.subs == nil {
		t.subs = make(map[uint64]func(Event))
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn

	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

func (t *Tracker) notify(ev Event) {
	t.subMu.RLock()
	defer t.subMu.RUnlock()
	for _, fn := range t.subs {
		fn(ev)
	}
}

func (t *Tracker) Apply(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	if ev.Kind == EventRunStarted {
		t.snap = Snapshot{
			RunID:     ev.RunID,
			Running:   true,
			StartedAt: &at,
			Roots:     make(map[string]RootProgress),
			Files:     make(map[string]FileProgress),
		}
		return
	}

	// late events of an older run are dropped
	if ev.RunID != t.snap.RunID {
		return
	}

	switch ev.Kind {
	case EventRootStarted:
		t.snap.Roots[ev.Root] = RootProgress{State: RootScanning, StartedAt: &at}

	case EventRootDone:
		root := t.snap.Roots[ev.Root]
		root.State = RootDone
		root.FinishedAt = &at
		root.Error = ev.Error
		t.snap.Roots[ev.Root] = root

	case EventFile:
		prev, seen := t.snap.Files[ev.Path]
		t.snap.Files[ev.Path] = FileProgress{Root: ev.Root, State: ev.FileState, Error: ev.Error, UpdatedAt: at}

		root := t.snap.Roots[ev.Root]
		if !seen {
			root.Files++
		}
		if ev.FileState.Terminal() && !(seen && prev.State.Terminal()) {
			switch ev.FileState {
			case FileDone:
				root.Indexed++
				t.snap.Indexed++
			case FileSkipped:
				root.Skipped++
				t.snap.Skipped++
			case FileError:
				root.Errors++
				t.snap.Errors++
			}
		}
		t.snap.Roots[ev.Root] = root

	case EventRunDone:
		t.snap.Running = false
		t.snap.FinishedAt = &at
		t.snap.Error = ev.Error
	}
}

// Snapshot returns a copy that is safe to use after further events.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := t.snap
	out.Roots = maps.Clone(t.snap.Roots)
	out.Files = maps.Clone(t.snap.Files)
	if out.Roots == nil {
		out.Roots = make(map[string]RootProgress)
	}
	if out.Files == nil {
		out.Files = make(map[string]FileProgress)
	}
	return out
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debounce

import (
	"sync"
	"time"
)

// Debouncer runs the most recent function submitted for a key once no new
// submission for that key has arrived within the delay. Keys are debounced
// independently of each other.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timers  map[string]*entry
	latest  map[string]func()
	stopped bool
	running sync.WaitGroup
}

type entry struct {
	timer *time.Timer
}

func New(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		timers: make(map[string]*entry),
		latest: make(map[string]func()),
	}
}

// Do schedules fn for key, replacing any pending function for the same key
// and restarting its delay. Submissions after Stop are dropped.
func (d *Debouncer) Do(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.latest[key] = fn
	// a timer that already fired is replaced so its callback sees it is stale
	if e, ok := d.timers[key]; ok && e.timer.Stop() {
		e.timer.Reset(d.delay)
		return
	}
	e := &entry{}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, e) })
	d.timers[key] = e
}

func (d *Debouncer) fire(key string, e *entry) {
	d.mu.Lock()
	if d.timers[key] != e {
		d.mu.Unlock()
		return
	}
	fn := d.latest[key]
	delete(d.latest, key)
	delete(d.timers, key)
	if d.stopped || fn == nil {
		d.mu.Unlock()
		return
	}
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	fn()
}

// Queued reports whether a function is pending for key.
func (d *Debouncer) Queued(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Pending returns the number of keys with a scheduled function.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop drops every pending function and waits for functions already
// running to return. It is safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for key, e := range d.timers {
		e.timer.Stop()
		delete(d.timers, key)
		delete(d.latest, key)
	}
	d.mu.Unlock()

	d.running.Wait()
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/metrics/collector"
	"github.com/autobrr/archivarr/pkg/debounce"
	"github.com/autobrr/archivarr/pkg/medianame"
	"github.com/autobrr/archivarr/pkg/pathcmp"
)

const defaultWatchDelay = 30 * time.Second

// RootScanner is the part of Service the watcher drives.
type RootScanner interface {
	Scan(ctx context.Context, roots []domain.ScanRoot) (*Summary, error)
}

type watchedRoot struct {
	root domain.ScanRoot
	path string
}

// Watcher turns filesystem changes below the scan roots into debounced
// rescans of the affected root.
type Watcher struct {
	scanner   RootScanner
	roots     []watchedRoot
	delay     time.Duration
	debouncer *debounce.Debouncer
	metrics   *collector.IndexerCollector
	logger    zerolog.Logger

	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	watched map[string]struct{}
}

func NewWatcher(scanner RootScanner, roots []domain.ScanRoot, delay time.Duration, metrics *collector.IndexerCollector) (*Watcher, error) {
	if delay <= 0 {
		delay = defaultWatchDelay
	}

	w := &Watcher{
		scanner:   scanner,
		delay:     delay,
		debouncer: debounce.New(delay),
		metrics:   metrics,
		logger:    log.With().Str("component", "watcher").Logger(),
		watched:   make(map[string]struct{}),
	}
	for _, root := range roots {
		p, err := root.NormalizedPath()
		if err != nil {
			return nil, err
		}
		w.roots = append(w.roots, watchedRoot{root: root, path: p})
	}
	return w, nil
}

// Run watches every directory below the roots until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer func() {
		w.debouncer.Stop()
		_ = fsw.Close()
	}()

	for _, r := range w.roots {
		w.addRecursive(r.path)
	}
	w.logger.Info().Int("roots", len(w.roots)).Int("directories", w.watchedCount()).Msg("watcher: started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watcher: stopped")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher: fsnotify error")
		}
	}
}

func (w *Watcher) watchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

func (w *Watcher) addRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.watched[path]; ok {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("watcher: failed to watch directory")
			return nil
		}
		w.watched[path] = struct{}{}
		return nil
	})
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".part") || strings.HasSuffix(base, ".tmp") {
		return
	}

	root, ok := w.rootFor(ev.Name)
	if !ok {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addRecursive(ev.Name)
			w.schedule(ctx, root)
			return
		}
	}

	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}
	if !medianame.IsVideo(ev.Name) {
		return
	}

	w.logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("watcher: change detected")
	w.schedule(ctx, root)
}

// rootFor returns the deepest scan root containing path.
func (w *Watcher) rootFor(path string) (watchedRoot, bool) {
	var best watchedRoot
	found := false
	for _, r := range w.roots {
		if !pathcmp.Within(r.path, path) {
			continue
		}
		if !found || len(r.path) > len(best.path) {
			best, found = r, true
		}
	}
	return best, found
}

func (w *Watcher) schedule(ctx context.Context, r watchedRoot) {
	w.debouncer.Do(r.path, func() { w.rescan(ctx, r) })
}

// rescan scans one root. When another scan holds the service it is tried
// again after the debounce delay.
func (w *Watcher) rescan(ctx context.Context, r watchedRoot) {
	if ctx.Err() != nil {
		return
	}

	w.metrics.IncWatcherRescan()
	_, err := w.scanner.Scan(ctx, []domain.ScanRoot{r.root})
	switch {
	case errors.Is(err, ErrScanInProgress):
		w.logger.Debug().Str("root", r.path).Msg("watcher: scan in progress, retrying later")
		w.schedule(ctx, r)
	case err != nil:
		w.logger.Error().Err(err).Str("root", r.path).Msg("watcher: rescan failed")
	default:
		w.logger.Info().Str("root", r.path).Msg("watcher: rescan finished")
	}
}

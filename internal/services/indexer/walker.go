// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/metrics/collector"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/internal/services/enrichment"
	"github.com/autobrr/archivarr/pkg/identity"
	"github.com/autobrr/archivarr/pkg/medianame"
)

// Enqueuer accepts media-touched requests without blocking.
type Enqueuer interface {
	Submit(req enrichment.Request) error
}

// RootSummary counts what happened under one scan root.
type RootSummary struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	DriveID int64  `json:"driveId"`
	Files   int    `json:"files"`
	Indexed int    `json:"indexed"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
	Pruned  int    `json:"pruned"`
	Error   string `json:"error,omitempty"`
}

// walker indexes the video files of one run. It is not safe for
// concurrent use.
type walker struct {
	runID   string
	drives  *models.DriveStore
	media   *models.MediaStore
	files   *models.FileStore
	enqueue Enqueuer
	events  chan<- Event
	metrics *collector.IndexerCollector
	logger  zerolog.Logger
}

func (w *walker) emit(ev Event) {
	ev.RunID = w.runID
	ev.At = time.Now()
	w.events <- ev
}

func (w *walker) emitFile(root, path string, state FileState, errMsg string) {
	w.emit(Event{Kind: EventFile, Root: root, Path: path, FileState: state, Error: errMsg})
}

// walkRoot upserts the drive of root and indexes every video file below
// it. seen receives the file id of every video file that was visited. A
// failing file is recorded and never stops the walk; only ctx cancellation
// or an unreadable root returns an error.
func (w *walker) walkRoot(ctx context.Context, root domain.ScanRoot, seen map[string]struct{}) (*RootSummary, error) {
	rootPath, err := root.NormalizedPath()
	if err != nil {
		return nil, err
	}
	sum := &RootSummary{Name: root.DisplayName(), Path: rootPath}

	if _, err := os.Stat(rootPath); err != nil {
		return sum, fmt.Errorf("stat root: %w", err)
	}

	capacity, err := root.Capacity()
	if err != nil {
		w.logger.Warn().Err(err).Str("root", rootPath).Msg("indexer: ignoring invalid drive capacity")
		capacity = 0
	}

	drive, err := w.drives.Upsert(ctx, &models.Drive{
		Name:      sum.Name,
		Path:      rootPath,
		Device:    root.Device,
		Brand:     root.Brand,
		Model:     root.Model,
		Serial:    root.Serial,
		TotalSize: capacity,
	})
	if err != nil {
		return sum, fmt.Errorf("upsert drive %s: %w", rootPath, err)
	}
	sum.DriveID = drive.ID

	err = filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == rootPath {
				return walkErr
			}
			w.logger.Warn().Err(walkErr).Str("path", path).Msg("indexer: skipping unreadable entry")
			return nil
		}
		if d.IsDir() || !medianame.IsVideo(d.Name()) {
			return nil
		}

		sum.Files++
		state := w.indexFile(ctx, rootPath, drive.ID, path, d, seen)
		switch state {
		case FileDone:
			sum.Indexed++
		case FileSkipped:
			sum.Skipped++
		case FileError:
			sum.Errors++
		}
		w.metrics.IncFile(string(state))
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("walk %s: %w", rootPath, err)
	}
	return sum, nil
}

// indexFile runs the per-file pipeline and converts any failure, panics
// included, into an error event.
func (w *walker) indexFile(ctx context.Context, root string, driveID int64, path string, d fs.DirEntry, seen map[string]struct{}) (state FileState) {
	w.emitFile(root, path, FilePending, "")

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Str("path", path).Msg("indexer: recovered from panic while indexing file")
			w.emitFile(root, path, FileError, fmt.Sprintf("panic: %v", r))
			state = FileError
		}
	}()

	state, err := w.index(ctx, root, driveID, path, d, seen)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("indexer: failed to index file")
		}
		w.emitFile(root, path, FileError, err.Error())
		return FileError
	}
	w.emitFile(root, path, state, "")
	return state
}

func (w *walker) index(ctx context.Context, root string, driveID int64, path string, d fs.DirEntry, seen map[string]struct{}) (FileState, error) {
	info, err := d.Info()
	if err != nil {
		return FileError, fmt.Errorf("stat: %w", err)
	}

	fileID := identity.FileID(path)
	seen[fileID] = struct{}{}

	size, mtime := info.Size(), info.ModTime().Unix()
	oldSize, oldMtime, found, err := w.files.Fingerprint(ctx, fileID)
	if err != nil {
		return FileError, err
	}
	if found && oldSize == size && oldMtime == mtime {
		return FileSkipped, nil
	}

	w.emitFile(root, path, FileIndexing, "")

	desc := medianame.Parse(d.Name(), path)
	ids := identity.Derive(desc, path)

	folder := filepath.Dir(path)
	var seasonFolder string
	if desc.IsTV() {
		folder, seasonFolder = medianame.SeriesFolder(path)
	}

	m := &models.Media{
		ID:         ids.MediaID,
		Type:       desc.Type,
		Title:      desc.Title,
		FolderPath: folder,
		DriveID:    &driveID,
		Quality:    desc.Quality,
	}
	if desc.Year > 0 {
		year := desc.Year
		m.ReleaseYear = &year
	}
	if _, err := w.media.InsertIfAbsent(ctx, m); err != nil {
		return FileError, err
	}

	if desc.IsTV() {
		if _, err := w.media.InsertSeasonIfAbsent(ctx, &models.Season{
			ID:           ids.SeasonID,
			MediaID:      ids.MediaID,
			SeasonNumber: desc.Season,
			FolderPath:   seasonFolder,
		}); err != nil {
			return FileError, err
		}
		if err := w.media.UpsertEpisode(ctx, &models.Episode{
			ID:            ids.EpisodeID,
			SeasonID:      ids.SeasonID,
			EpisodeNumber: desc.Episode,
			Title:         desc.EpisodeTitle,
			Size:          size,
		}); err != nil {
			return FileError, err
		}
	}

	if err := w.files.Replace(ctx, &models.File{
		ID:        fileID,
		MediaID:   ids.MediaID,
		SeasonID:  ids.SeasonID,
		EpisodeID: ids.EpisodeID,
		Filename:  d.Name(),
		FullPath:  path,
		DriveID:   &driveID,
		Size:      size,
		MTime:     mtime,
	}); err != nil {
		return FileError, err
	}

	w.touch(m)
	return FileDone, nil
}

// touch hands the media to the enrichment queue. A full or closed queue is
// not an error for the scan; the post-scan pass picks the media up again.
func (w *walker) touch(m *models.Media) {
	if w.enqueue == nil {
		return
	}
	req := enrichment.Request{MediaID: m.ID, Type: m.Type, Title: m.Title}
	if m.ReleaseYear != nil {
		req.Year = *m.ReleaseYear
	}
	if err := w.enqueue.Submit(req); err != nil {
		w.metrics.IncQueueDrop()
		w.logger.Debug().Err(err).Str("mediaId", m.ID).Msg("indexer: enrichment request dropped")
	}
}

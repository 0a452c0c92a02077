// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autobrr/archivarr/internal/dbinterface"
)

// File is a physical video file keyed by the hash of its absolute path.
// SeasonID and EpisodeID are empty for movies.
type File struct {
	ID        string `json:"id"`
	MediaID   string `json:"mediaId"`
	SeasonID  string `json:"seasonId,omitempty"`
	EpisodeID string `json:"episodeId,omitempty"`
	Filename  string `json:"filename"`
	FullPath  string `json:"fullPath"`
	DriveID   *int64 `json:"driveId,omitempty"`
	Size      int64  `json:"size"`
	MTime     int64  `json:"mtime"`
}

type FileStore struct {
	db dbinterface.Querier
}

func NewFileStore(db dbinterface.Querier) *FileStore {
	return &FileStore{db: db}
}

// Fingerprint returns the stored size and mtime of a file row. found is
// false when the file has never been indexed.
func (s *FileStore) Fingerprint(ctx context.Context, id string) (size, mtime int64, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT size, mtime FROM files WHERE id = ?`, id).Scan(&size, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("get file fingerprint %s: %w", id, err)
	}
	return size, mtime, true, nil
}

// Replace writes the file row, replacing any previous version.
func (s *FileStore) Replace(ctx context.Context, f *File) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO files (id, media_id, season_id, episode_id, filename, fullpath, drive_id, size, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.MediaID, nullString(f.SeasonID), nullString(f.EpisodeID), f.Filename, f.FullPath, nullInt64(f.DriveID), f.Size, f.MTime)
	if err != nil {
		return fmt.Errorf("replace file %s: %w", f.FullPath, err)
	}
	return nil
}

func (s *FileStore) ListByMedia(ctx context.Context, mediaID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_id, season_id, episode_id, filename, fullpath, drive_id, size, mtime
		FROM files WHERE media_id = ? ORDER BY fullpath
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list files for %s: %w", mediaID, err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		var seasonID, episodeID sql.NullString
		var driveID sql.NullInt64
		if err := rows.Scan(&f.ID, &f.MediaID, &seasonID, &episodeID, &f.Filename, &f.FullPath, &driveID, &f.Size, &f.MTime); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.SeasonID = seasonID.String
		f.EpisodeID = episodeID.String
		f.DriveID = int64Ptr(driveID)
		out = append(out, f)
	}
	return out, rows.Err()
}

// PruneDrive deletes file rows of driveID whose id is not in seen.
func (s *FileStore) PruneDrive(ctx context.Context, driveID int64, seen map[string]struct{}) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM files WHERE drive_id = ?`, driveID)
	if err != nil {
		return 0, fmt.Errorf("list files for drive %d: %w", driveID, err)
	}

	var stale []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan file id: %w", err)
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	const batchSize = 500
	deleted := 0
	for start := 0; start < len(stale); start += batchSize {
		end := min(start+batchSize, len(stale))
		batch := stale[start:end]
		if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id IN (`+dbinterface.InPlaceholders(len(batch))+`)`, batch...); err != nil {
			return deleted, fmt.Errorf("delete stale files: %w", err)
		}
		deleted += len(batch)
	}
	return deleted, nil
}

func (s *FileStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autobrr/archivarr/internal/dbinterface"
	"github.com/autobrr/archivarr/pkg/medianame"
)

// Media is a movie or series. The count and size fields are derived by
// AggregateStore.Recompute.
type Media struct {
	ID           string              `json:"id"`
	Type         medianame.MediaType `json:"type"`
	Title        string              `json:"title"`
	FolderPath   string              `json:"folderPath"`
	DriveID      *int64              `json:"driveId,omitempty"`
	ReleaseYear  *int                `json:"releaseYear,omitempty"`
	Quality      string              `json:"quality,omitempty"`
	TmdbID       *int                `json:"tmdbId,omitempty"`
	SonarrID     *int                `json:"sonarrId,omitempty"`
	RadarrID     *int                `json:"radarrId,omitempty"`
	SeasonCount  int                 `json:"seasonCount"`
	EpisodeCount int                 `json:"episodeCount"`
	TotalSize    int64               `json:"totalSize"`
}

type Season struct {
	ID           string `json:"id"`
	MediaID      string `json:"mediaId"`
	SeasonNumber int    `json:"seasonNumber"`
	FolderPath   string `json:"folderPath"`
	EpisodeCount int    `json:"episodeCount"`
	TotalSize    int64  `json:"totalSize"`
}

type Episode struct {
	ID            string `json:"id"`
	SeasonID      string `json:"seasonId"`
	EpisodeNumber int    `json:"episodeNumber"`
	Title         string `json:"title,omitempty"`
	Size          int64  `json:"size"`
}

// MediaFilter narrows List. The zero value lists everything.
type MediaFilter struct {
	Type            medianame.MediaType
	MissingMetadata bool
}

type MediaStore struct {
	db dbinterface.Querier
}

func NewMediaStore(db dbinterface.Querier) *MediaStore {
	return &MediaStore{db: db}
}

// InsertIfAbsent creates the media row unless the id already exists, so
// enrichment back-fills on an existing row are never overwritten.
func (s *MediaStore) InsertIfAbsent(ctx context.Context, m *Media) (bool, error) {
	mediaType, ok := medianame.ParseMediaType(string(m.Type))
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidMediaType, m.Type)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO media (id, type, title, folder_path, drive_id, release_year, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, string(mediaType), m.Title, nullString(m.FolderPath), nullInt64(m.DriveID), nullInt(m.ReleaseYear), nullString(m.Quality))
	if err != nil {
		return false, fmt.Errorf("insert media %s: %w", m.ID, err)
	}
	return affected(res), nil
}

func (s *MediaStore) InsertSeasonIfAbsent(ctx context.Context, season *Season) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO seasons (id, media_id, season_number, folder_path)
		VALUES (?, ?, ?, ?)
	`, season.ID, season.MediaID, season.SeasonNumber, nullString(season.FolderPath))
	if err != nil {
		return false, fmt.Errorf("insert season %s: %w", season.ID, err)
	}
	return affected(res), nil
}

// UpsertEpisode creates the episode when absent. An existing episode keeps
// its title and only has its size refreshed from the re-indexed file.
func (s *MediaStore) UpsertEpisode(ctx context.Context, e *Episode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, season_id, episode_number, title, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET size = excluded.size
	`, e.ID, e.SeasonID, e.EpisodeNumber, nullString(e.Title), e.Size)
	if err != nil {
		return fmt.Errorf("upsert episode %s: %w", e.ID, err)
	}
	return nil
}

// SetExternalIDs back-fills provider ids. Nil arguments keep the stored value.
func (s *MediaStore) SetExternalIDs(ctx context.Context, id string, tmdbID, sonarrID, radarrID *int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE media
		SET tmdb_id = COALESCE(?, tmdb_id),
			sonarr_id = COALESCE(?, sonarr_id),
			radarr_id = COALESCE(?, radarr_id)
		WHERE id = ?
	`, nullInt(tmdbID), nullInt(sonarrID), nullInt(radarrID), id)
	if err != nil {
		return fmt.Errorf("set external ids for %s: %w", id, err)
	}
	return nil
}

const mediaColumns = `m.id, m.type, m.title, m.folder_path, m.drive_id, m.release_year, m.quality,
	m.tmdb_id, m.sonarr_id, m.radarr_id, m.season_count, m.episode_count, m.total_size`

func (s *MediaStore) Get(ctx context.Context, id string) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media m WHERE m.id = ?`, id)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media %s: %w", id, err)
	}
	return m, nil
}

func (s *MediaStore) List(ctx context.Context, filter MediaFilter) ([]Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media m`
	if filter.MissingMetadata {
		query += ` LEFT JOIN metadata md ON md.media_id = m.id`
	}
	query += ` WHERE 1 = 1`

	var args []any
	if filter.Type != "" {
		query += ` AND m.type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.MissingMetadata {
		query += ` AND md.media_id IS NULL`
	}
	query += ` ORDER BY m.title COLLATE NOCASE, m.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *MediaStore) ListSeasons(ctx context.Context, mediaID string) ([]Season, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_id, season_number, folder_path, episode_count, total_size
		FROM seasons WHERE media_id = ? ORDER BY season_number
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list seasons for %s: %w", mediaID, err)
	}
	defer rows.Close()

	var out []Season
	for rows.Next() {
		var season Season
		var folder sql.NullString
		if err := rows.Scan(&season.ID, &season.MediaID, &season.SeasonNumber, &folder, &season.EpisodeCount, &season.TotalSize); err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		season.FolderPath = folder.String
		out = append(out, season)
	}
	return out, rows.Err()
}

func (s *MediaStore) ListEpisodes(ctx context.Context, seasonID string) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, season_id, episode_number, title, size
		FROM episodes WHERE season_id = ? ORDER BY episode_number
	`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list episodes for %s: %w", seasonID, err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var e Episode
		var title sql.NullString
		if err := rows.Scan(&e.ID, &e.SeasonID, &e.EpisodeNumber, &title, &e.Size); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		e.Title = title.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneOrphans removes episodes without files, then seasons without
// episodes, then media without files. Metadata goes with its media.
func (s *MediaStore) PruneOrphans(ctx context.Context) (int64, error) {
	statements := []string{
		`DELETE FROM episodes WHERE NOT EXISTS (SELECT 1 FROM files f WHERE f.episode_id = episodes.id)`,
		`DELETE FROM seasons WHERE NOT EXISTS (SELECT 1 FROM episodes e WHERE e.season_id = seasons.id)`,
		`DELETE FROM media WHERE NOT EXISTS (SELECT 1 FROM files f WHERE f.media_id = media.id)`,
	}

	var total int64
	for _, stmt := range statements {
		res, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return total, fmt.Errorf("prune orphans: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func scanMedia(row rowScanner) (*Media, error) {
	var m Media
	var mediaType string
	var folder, quality sql.NullString
	var driveID, year, tmdbID, sonarrID, radarrID sql.NullInt64
	if err := row.Scan(&m.ID, &mediaType, &m.Title, &folder, &driveID, &year, &quality,
		&tmdbID, &sonarrID, &radarrID, &m.SeasonCount, &m.EpisodeCount, &m.TotalSize); err != nil {
		return nil, err
	}
	m.Type = medianame.MediaType(mediaType)
	m.FolderPath = folder.String
	m.Quality = quality.String
	m.DriveID = int64Ptr(driveID)
	m.ReleaseYear = intPtr(year)
	m.TmdbID = intPtr(tmdbID)
	m.SonarrID = intPtr(sonarrID)
	m.RadarrID = intPtr(radarrID)
	return &m, nil
}

func affected(res sql.Result) bool {
	if res == nil {
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

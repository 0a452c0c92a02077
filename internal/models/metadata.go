// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/archivarr/internal/dbinterface"
)

// ProviderNone marks a sentinel row written after every provider failed.
const ProviderNone = "none"

// Metadata is the enrichment record of a media row. A row with a nil
// PosterURL means enrichment was attempted and found nothing usable.
type Metadata struct {
	MediaID     string    `json:"mediaId"`
	Type        string    `json:"type,omitempty"`
	Title       string    `json:"title"`
	Year        *int      `json:"year,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	Genres      string    `json:"genres,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	PosterURL   *string   `json:"posterUrl,omitempty"`
	BackdropURL *string   `json:"backdropUrl,omitempty"`
	TmdbID      *int      `json:"tmdbId,omitempty"`
	ImdbID      string    `json:"imdbId,omitempty"`
	SonarrID    *int      `json:"sonarrId,omitempty"`
	RadarrID    *int      `json:"radarrId,omitempty"`
	Provider    string    `json:"provider"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasPoster reports whether the record is fully enriched.
func (m *Metadata) HasPoster() bool {
	return m != nil && m.PosterURL != nil && *m.PosterURL != ""
}

// IsSentinel reports whether the record marks an exhausted lookup.
func (m *Metadata) IsSentinel() bool {
	return m != nil && m.Provider == ProviderNone
}

type MetadataStore struct {
	db dbinterface.Querier
}

func NewMetadataStore(db dbinterface.Querier) *MetadataStore {
	return &MetadataStore{db: db}
}

const metadataColumns = `media_id, type, title, year, overview, genres, rating, poster_url, backdrop_url,
	tmdb_id, imdb_id, sonarr_id, radarr_id, provider, updated_at`

func (s *MetadataStore) Get(ctx context.Context, mediaID string) (*Metadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+metadataColumns+` FROM metadata WHERE media_id = ?`, mediaID)
	md, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMetadataNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata %s: %w", mediaID, err)
	}
	return md, nil
}

func (s *MetadataStore) Exists(ctx context.Context, mediaID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata WHERE media_id = ?`, mediaID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check metadata %s: %w", mediaID, err)
	}
	return n > 0, nil
}

// Upsert writes the full record, replacing a previous sentinel or partial row.
func (s *MetadataStore) Upsert(ctx context.Context, md *Metadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (media_id, type, title, year, overview, genres, rating, poster_url, backdrop_url,
			tmdb_id, imdb_id, sonarr_id, radarr_id, provider, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(media_id) DO UPDATE SET
			type = excluded.type,
			title = excluded.title,
			year = excluded.year,
			overview = excluded.overview,
			genres = excluded.genres,
			rating = excluded.rating,
			poster_url = excluded.poster_url,
			backdrop_url = excluded.backdrop_url,
			tmdb_id = excluded.tmdb_id,
			imdb_id = excluded.imdb_id,
			sonarr_id = excluded.sonarr_id,
			radarr_id = excluded.radarr_id,
			provider = excluded.provider,
			updated_at = CURRENT_TIMESTAMP
	`, md.MediaID, nullString(md.Type), md.Title, nullInt(md.Year), nullString(md.Overview), nullString(md.Genres),
		nullFloat(md.Rating), nullStringPtr(md.PosterURL), nullStringPtr(md.BackdropURL),
		nullInt(md.TmdbID), nullString(md.ImdbID), nullInt(md.SonarrID), nullInt(md.RadarrID), md.Provider)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return ErrMediaNotFound
		}
		return fmt.Errorf("upsert metadata %s: %w", md.MediaID, err)
	}
	return nil
}

// InsertSentinel records an exhausted lookup. An existing row is kept, so
// the sentinel never replaces real data.
func (s *MetadataStore) InsertSentinel(ctx context.Context, mediaID, mediaType, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO metadata (media_id, type, title, poster_url, provider, updated_at)
		VALUES (?, ?, ?, NULL, ?, CURRENT_TIMESTAMP)
	`, mediaID, nullString(mediaType), title, ProviderNone)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return false, ErrMediaNotFound
		}
		return false, fmt.Errorf("insert sentinel metadata %s: %w", mediaID, err)
	}
	return affected(res), nil
}

func (s *MetadataStore) SetPoster(ctx context.Context, mediaID string, poster *string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE metadata SET poster_url = ?, updated_at = CURRENT_TIMESTAMP WHERE media_id = ?`,
		nullStringPtr(poster), mediaID); err != nil {
		return fmt.Errorf("set poster for %s: %w", mediaID, err)
	}
	return nil
}

func (s *MetadataStore) SetBackdrop(ctx context.Context, mediaID string, backdrop *string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE metadata SET backdrop_url = ?, updated_at = CURRENT_TIMESTAMP WHERE media_id = ?`,
		nullStringPtr(backdrop), mediaID); err != nil {
		return fmt.Errorf("set backdrop for %s: %w", mediaID, err)
	}
	return nil
}

// List returns every metadata row, or only those with a poster or backdrop
// reference when withImages is set.
func (s *MetadataStore) List(ctx context.Context, withImages bool) ([]Metadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM metadata`
	if withImages {
		query += ` WHERE poster_url IS NOT NULL OR backdrop_url IS NOT NULL`
	}
	query += ` ORDER BY media_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		md, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		out = append(out, *md)
	}
	return out, rows.Err()
}

func scanMetadata(row rowScanner) (*Metadata, error) {
	var md Metadata
	var mediaType, overview, genres, poster, backdrop, imdbID sql.NullString
	var title sql.NullString
	var year, tmdbID, sonarrID, radarrID sql.NullInt64
	var rating sql.NullFloat64
	var updated sql.NullTime
	if err := row.Scan(&md.MediaID, &mediaType, &title, &year, &overview, &genres, &rating, &poster, &backdrop,
		&tmdbID, &imdbID, &sonarrID, &radarrID, &md.Provider, &updated); err != nil {
		return nil, err
	}
	md.Type = mediaType.String
	md.Title = title.String
	md.Year = intPtr(year)
	md.Overview = overview.String
	md.Genres = genres.String
	md.Rating = floatPtr(rating)
	md.PosterURL = stringPtr(poster)
	md.BackdropURL = stringPtr(backdrop)
	md.TmdbID = intPtr(tmdbID)
	md.ImdbID = imdbID.String
	md.SonarrID = intPtr(sonarrID)
	md.RadarrID = intPtr(radarrID)
	md.UpdatedAt = updated.Time
	return &md, nil
}

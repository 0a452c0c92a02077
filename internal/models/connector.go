// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/archivarr/internal/dbinterface"
	"github.com/autobrr/archivarr/internal/domain"
)

// LocalPosterPrefix is the URL prefix of posters served from the poster dir.
const LocalPosterPrefix = "/static/posters/"

// Connector is a Sonarr or Radarr instance mirrored into the local cache.
type Connector struct {
	ID        string    `json:"id"`
	AppType   string    `json:"appType"`
	BaseURL   string    `json:"baseUrl"`
	APIKey    string    `json:"apiKey"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c Connector) MarshalJSON() ([]byte, error) {
	type alias Connector
	redacted := alias(c)
	redacted.APIKey = domain.RedactString(c.APIKey)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(redacted); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

type ConnectorStats struct {
	ID          int64           `json:"id"`
	ConnectorID string          `json:"connectorId"`
	CheckedAt   time.Time       `json:"checkedAt"`
	Status      string          `json:"status"`
	Version     string          `json:"version,omitempty"`
	Error       string          `json:"error,omitempty"`
	Queue       json.RawMessage `json:"queue"`
	DiskSpace   json.RawMessage `json:"diskspace"`
}

const (
	ConnectorStatusSuccess = "success"
	ConnectorStatusError   = "error"
)

// ConnectorMedia is one series or movie listed by a connector.
type ConnectorMedia struct {
	ID          int64     `json:"id"`
	ConnectorID string    `json:"connectorId"`
	MediaType   string    `json:"mediaType"`
	ExternalID  int       `json:"externalId"`
	Title       string    `json:"title"`
	Year        *int      `json:"year,omitempty"`
	TmdbID      *int      `json:"tmdbId,omitempty"`
	ImdbID      string    `json:"imdbId,omitempty"`
	TvdbID      *int      `json:"tvdbId,omitempty"`
	Monitored   bool      `json:"monitored"`
	Added       string    `json:"added,omitempty"`
	RawJSON     string    `json:"-"`
	TitleSlug   string    `json:"titleSlug,omitempty"`
	PosterURL   *string   `json:"posterUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PosterRef points at a poster reference that may need localizing.
type PosterRef struct {
	ID        int64
	PosterURL string
}

type ConnectorStore struct {
	db dbinterface.TxRunner
}

func NewConnectorStore(db dbinterface.TxRunner) *ConnectorStore {
	return &ConnectorStore{db: db}
}

func (s *ConnectorStore) Upsert(ctx context.Context, c *Connector) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connectors (id, app_type, base_url, api_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			app_type = excluded.app_type,
			base_url = excluded.base_url,
			api_key = excluded.api_key
	`, c.ID, c.AppType, c.BaseURL, c.APIKey)
	if err != nil {
		return fmt.Errorf("upsert connector %s: %w", c.ID, err)
	}
	return nil
}

func (s *ConnectorStore) Get(ctx context.Context, id string) (*Connector, error) {
	var c Connector
	var created sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT id, app_type, base_url, api_key, created_at FROM connectors WHERE id = ?`, id).
		Scan(&c.ID, &c.AppType, &c.BaseURL, &c.APIKey, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConnectorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connector %s: %w", id, err)
	}
	c.CreatedAt = created.Time
	return &c, nil
}

func (s *ConnectorStore) List(ctx context.Context) ([]Connector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, app_type, base_url, api_key, created_at FROM connectors ORDER BY app_type, base_url`)
	if err != nil {
		return nil, fmt.Errorf("list connectors: %w", err)
	}
	defer rows.Close()

	var out []Connector
	for rows.Next() {
		var c Connector
		var created sql.NullTime
		if err := rows.Scan(&c.ID, &c.AppType, &c.BaseURL, &c.APIKey, &created); err != nil {
			return nil, fmt.Errorf("scan connector: %w", err)
		}
		c.CreatedAt = created.Time
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ConnectorStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connectors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete connector %s: %w", id, err)
	}
	if !affected(res) {
		return ErrConnectorNotFound
	}
	return nil
}

func (s *ConnectorStore) InsertStats(ctx context.Context, st *ConnectorStats) error {
	queue := jsonOrEmptyArray(st.Queue)
	disk := jsonOrEmptyArray(st.DiskSpace)
	checked := st.CheckedAt
	if checked.IsZero() {
		checked = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO connector_stats (connector_id, checked_at, status, version, error, queue, diskspace)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, st.ConnectorID, checked.UTC(), st.Status, nullString(st.Version), nullString(st.Error), queue, disk)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return ErrConnectorNotFound
		}
		return fmt.Errorf("insert connector stats %s: %w", st.ConnectorID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		st.ID = id
	}
	return nil
}

// LatestStats returns the newest snapshot of every connector.
func (s *ConnectorStore) LatestStats(ctx context.Context) ([]ConnectorStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cs.id, cs.connector_id, cs.checked_at, cs.status, cs.version, cs.error, cs.queue, cs.diskspace
		FROM connector_stats cs
		WHERE cs.id = (
			SELECT id FROM connector_stats latest
			WHERE latest.connector_id = cs.connector_id
			ORDER BY latest.checked_at DESC, latest.id DESC
			LIMIT 1
		)
		ORDER BY cs.connector_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest connector stats: %w", err)
	}
	defer rows.Close()

	var out []ConnectorStats
	for rows.Next() {
		var st ConnectorStats
		var version, errText sql.NullString
		var queue, disk string
		if err := rows.Scan(&st.ID, &st.ConnectorID, &st.CheckedAt, &st.Status, &version, &errText, &queue, &disk); err != nil {
			return nil, fmt.Errorf("scan connector stats: %w", err)
		}
		st.Version = version.String
		st.Error = errText.String
		st.Queue = json.RawMessage(queue)
		st.DiskSpace = json.RawMessage(disk)
		out = append(out, st)
	}
	return out, rows.Err()
}

// ReplaceMedia upserts items for the connector and deletes rows the
// connector no longer lists. A poster already localized is kept.
func (s *ConnectorStore) ReplaceMedia(ctx context.Context, connectorID string, items []ConnectorMedia) (upserted, deleted int, err error) {
	err = s.db.WithTx(ctx, "replace connector media", func(tx dbinterface.TxQuerier) error {
		upserted, deleted = 0, 0
		listed := make(map[int]struct{}, len(items))

		for i := range items {
			item := &items[i]
			listed[item.ExternalID] = struct{}{}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO connector_media (connector_id, media_type, external_id, title, year, tmdb_id, imdb_id, tvdb_id,
					monitored, added, raw_json, title_slug, poster_url)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(connector_id, external_id) DO UPDATE SET
					media_type = excluded.media_type,
					title = excluded.title,
					year = excluded.year,
					tmdb_id = excluded.tmdb_id,
					imdb_id = excluded.imdb_id,
					tvdb_id = excluded.tvdb_id,
					monitored = excluded.monitored,
					added = excluded.added,
					raw_json = excluded.raw_json,
					title_slug = excluded.title_slug,
					poster_url = CASE
						WHEN connector_media.poster_url LIKE '`+LocalPosterPrefix+`%' THEN connector_media.poster_url
						ELSE excluded.poster_url
					END
			`, connectorID, item.MediaType, item.ExternalID, item.Title, nullInt(item.Year), nullInt(item.TmdbID),
				nullString(item.ImdbID), nullInt(item.TvdbID), item.Monitored, nullString(item.Added),
				nullString(item.RawJSON), nullString(item.TitleSlug), nullStringPtr(item.PosterURL))
			if err != nil {
				if isForeignKeyConstraintError(err) {
					return ErrConnectorNotFound
				}
				return fmt.Errorf("upsert connector media %d: %w", item.ExternalID, err)
			}
			upserted++
		}

		rows, err := tx.QueryContext(ctx, `SELECT id, external_id FROM connector_media WHERE connector_id = ?`, connectorID)
		if err != nil {
			return fmt.Errorf("list connector media: %w", err)
		}
		var stale []any
		for rows.Next() {
			var id int64
			var externalID int
			if err := rows.Scan(&id, &externalID); err != nil {
				rows.Close()
				return fmt.Errorf("scan connector media: %w", err)
			}
			if _, ok := listed[externalID]; !ok {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		const batchSize = 500
		for start := 0; start < len(stale); start += batchSize {
			batch := stale[start:min(start+batchSize, len(stale))]
			if _, err := tx.ExecContext(ctx, `DELETE FROM connector_media WHERE id IN (`+dbinterface.InPlaceholders(len(batch))+`)`, batch...); err != nil {
				return fmt.Errorf("delete stale connector media: %w", err)
			}
			deleted += len(batch)
		}
		return nil
	})
	return upserted, deleted, err
}

func (s *ConnectorStore) ListMedia(ctx context.Context, connectorID string) ([]ConnectorMedia, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, connector_id, media_type, external_id, title, year, tmdb_id, imdb_id, tvdb_id,
			monitored, added, raw_json, title_slug, poster_url, created_at
		FROM connector_media WHERE connector_id = ?
		ORDER BY title COLLATE NOCASE, external_id
	`, connectorID)
	if err != nil {
		return nil, fmt.Errorf("list connector media %s: %w", connectorID, err)
	}
	defer rows.Close()

	var out []ConnectorMedia
	for rows.Next() {
		var cm ConnectorMedia
		var year, tmdbID, tvdbID sql.NullInt64
		var imdbID, added, raw, slug, poster sql.NullString
		var created sql.NullTime
		if err := rows.Scan(&cm.ID, &cm.ConnectorID, &cm.MediaType, &cm.ExternalID, &cm.Title, &year, &tmdbID, &imdbID,
			&tvdbID, &cm.Monitored, &added, &raw, &slug, &poster, &created); err != nil {
			return nil, fmt.Errorf("scan connector media: %w", err)
		}
		cm.Year = intPtr(year)
		cm.TmdbID = intPtr(tmdbID)
		cm.TvdbID = intPtr(tvdbID)
		cm.ImdbID = imdbID.String
		cm.Added = added.String
		cm.RawJSON = raw.String
		cm.TitleSlug = slug.String
		cm.PosterURL = stringPtr(poster)
		cm.CreatedAt = created.Time
		out = append(out, cm)
	}
	return out, rows.Err()
}

// ListMediaPosters returns connector media rows holding a poster reference.
func (s *ConnectorStore) ListMediaPosters(ctx context.Context) ([]PosterRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poster_url FROM connector_media
		WHERE poster_url IS NOT NULL AND poster_url != ''
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list connector posters: %w", err)
	}
	defer rows.Close()

	var out []PosterRef
	for rows.Next() {
		var ref PosterRef
		if err := rows.Scan(&ref.ID, &ref.PosterURL); err != nil {
			return nil, fmt.Errorf("scan connector poster: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *ConnectorStore) SetMediaPoster(ctx context.Context, id int64, poster string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE connector_media SET poster_url = ? WHERE id = ?`, poster, id); err != nil {
		return fmt.Errorf("set connector poster %d: %w", id, err)
	}
	return nil
}

func jsonOrEmptyArray(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "[]"
	}
	return trimmed
}

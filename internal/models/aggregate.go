// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"

	"github.com/autobrr/archivarr/internal/dbinterface"
)

// Rollup statements run in order: seasons from episodes, series from
// seasons, movies from their files. Rows already holding the right values
// are not touched, so a second pass over unchanged data writes nothing.
var rollupStatements = []struct {
	name  string
	query string
}{
	{
		name: "seasons",
		query: `
			UPDATE seasons SET
				episode_count = (SELECT COUNT(*) FROM episodes e WHERE e.season_id = seasons.id),
				total_size = (SELECT COALESCE(SUM(e.size), 0) FROM episodes e WHERE e.season_id = seasons.id)
			WHERE episode_count != (SELECT COUNT(*) FROM episodes e WHERE e.season_id = seasons.id)
				OR total_size != (SELECT COALESCE(SUM(e.size), 0) FROM episodes e WHERE e.season_id = seasons.id)`,
	},
	{
		name: "series",
		query: `
			UPDATE media SET
				season_count = (SELECT COUNT(*) FROM seasons s WHERE s.media_id = media.id),
				episode_count = (SELECT COALESCE(SUM(s.episode_count), 0) FROM seasons s WHERE s.media_id = media.id),
				total_size = (SELECT COALESCE(SUM(s.total_size), 0) FROM seasons s WHERE s.media_id = media.id)
			WHERE type = 'tv' AND (
				season_count != (SELECT COUNT(*) FROM seasons s WHERE s.media_id = media.id)
				OR episode_count != (SELECT COALESCE(SUM(s.episode_count), 0) FROM seasons s WHERE s.media_id = media.id)
				OR total_size != (SELECT COALESCE(SUM(s.total_size), 0) FROM seasons s WHERE s.media_id = media.id))`,
	},
	{
		name: "movies",
		query: `
			UPDATE media SET
				total_size = (SELECT COALESCE(SUM(f.size), 0) FROM files f WHERE f.media_id = media.id)
			WHERE type = 'movie'
				AND total_size != (SELECT COALESCE(SUM(f.size), 0) FROM files f WHERE f.media_id = media.id)`,
	},
}

type AggregateStore struct {
	db dbinterface.TxRunner
}

func NewAggregateStore(db dbinterface.TxRunner) *AggregateStore {
	return &AggregateStore{db: db}
}

// Recompute refreshes the derived counts and sizes in one transaction and
// returns the number of rows it changed.
func (s *AggregateStore) Recompute(ctx context.Context) (int64, error) {
	var changed int64
	err := s.db.WithTx(ctx, "recompute aggregates", func(tx dbinterface.TxQuerier) error {
		changed = 0
		for _, stmt := range rollupStatements {
			res, err := tx.ExecContext(ctx, stmt.query)
			if err != nil {
				return fmt.Errorf("recompute %s: %w", stmt.name, err)
			}
			n, _ := res.RowsAffected()
			changed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

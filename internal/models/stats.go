// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"
	"math"

	"github.com/autobrr/archivarr/internal/dbinterface"
)

type ArchiveCounts struct {
	Movies   int `json:"movies" yaml:"movies"`
	Series   int `json:"series" yaml:"series"`
	Episodes int `json:"episodes" yaml:"episodes"`
}

type ArchiveSizes struct {
	Movies int64 `json:"movies" yaml:"movies"`
	Series int64 `json:"series" yaml:"series"`
	Total  int64 `json:"total" yaml:"total"`
}

type DriveTotals struct {
	Count    int   `json:"count" yaml:"count"`
	Capacity int64 `json:"capacity" yaml:"capacity"`
}

type DriveCount struct {
	Drive string `json:"drive" yaml:"drive"`
	Count int    `json:"count" yaml:"count"`
}

type YearCount struct {
	Year  int `json:"year" yaml:"year"`
	Count int `json:"count" yaml:"count"`
}

type TitleSize struct {
	Title     string `json:"title" yaml:"title"`
	TotalSize int64  `json:"totalSize" yaml:"totalSize"`
}

type ArchiveDistribution struct {
	MoviesPerDrive  []DriveCount `json:"moviesPerDrive" yaml:"moviesPerDrive"`
	SeriesPerDrive  []DriveCount `json:"seriesPerDrive" yaml:"seriesPerDrive"`
	BreakdownByYear []YearCount  `json:"breakdownByYear" yaml:"breakdownByYear"`
	Largest         []TitleSize  `json:"largest" yaml:"largest"`
}

// Redundancy counts titles whose files sit on more than one drive.
type Redundancy struct {
	BackedUp         int     `json:"backedUp" yaml:"backedUp"`
	SingleCopy       int     `json:"singleCopy" yaml:"singleCopy"`
	PercentProtected float64 `json:"percentProtected" yaml:"percentProtected"`
}

type DriveUtilization struct {
	Drive   string  `json:"drive" yaml:"drive"`
	Total   int64   `json:"total" yaml:"total"`
	Used    int64   `json:"used" yaml:"used"`
	Percent float64 `json:"percent" yaml:"percent"`
}

type Utilization struct {
	PerDrive []DriveUtilization `json:"perDrive" yaml:"perDrive"`
	Largest  *DriveUtilization  `json:"largest,omitempty" yaml:"largest,omitempty"`
	Smallest *DriveUtilization  `json:"smallest,omitempty" yaml:"smallest,omitempty"`
}

type DuplicateTmdb struct {
	TmdbID int `json:"tmdbId" yaml:"tmdbId"`
	Count  int `json:"count" yaml:"count"`
}

type ArchiveHealth struct {
	Empty      int             `json:"empty" yaml:"empty"`
	Duplicates []DuplicateTmdb `json:"duplicates" yaml:"duplicates"`
}

type ArchiveStats struct {
	Counts       ArchiveCounts       `json:"counts" yaml:"counts"`
	Sizes        ArchiveSizes        `json:"sizes" yaml:"sizes"`
	Drives       DriveTotals         `json:"drives" yaml:"drives"`
	Distribution ArchiveDistribution `json:"distribution" yaml:"distribution"`
	Redundancy   Redundancy          `json:"redundancy" yaml:"redundancy"`
	Utilization  Utilization         `json:"utilization" yaml:"utilization"`
	Health       ArchiveHealth       `json:"health" yaml:"health"`
}

type StatsStore struct {
	db dbinterface.Querier
}

func NewStatsStore(db dbinterface.Querier) *StatsStore {
	return &StatsStore{db: db}
}

// Archive computes the dashboard statistics from the aggregated tables.
func (s *StatsStore) Archive(ctx context.Context) (*ArchiveStats, error) {
	var st ArchiveStats

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = 'movie' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'tv' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'tv' THEN episode_count ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'movie' THEN total_size ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'tv' THEN total_size ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN total_size = 0 THEN 1 ELSE 0 END), 0)
		FROM media
	`).Scan(&st.Counts.Movies, &st.Counts.Series, &st.Counts.Episodes, &st.Sizes.Movies, &st.Sizes.Series, &st.Health.Empty)
	if err != nil {
		return nil, fmt.Errorf("query media totals: %w", err)
	}
	st.Sizes.Total = st.Sizes.Movies + st.Sizes.Series

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(total_size), 0) FROM drives`).
		Scan(&st.Drives.Count, &st.Drives.Capacity); err != nil {
		return nil, fmt.Errorf("query drive totals: %w", err)
	}

	if st.Distribution.MoviesPerDrive, err = s.perDrive(ctx, "movie"); err != nil {
		return nil, err
	}
	if st.Distribution.SeriesPerDrive, err = s.perDrive(ctx, "tv"); err != nil {
		return nil, err
	}
	if st.Distribution.BreakdownByYear, err = s.byYear(ctx); err != nil {
		return nil, err
	}
	if st.Distribution.Largest, err = s.largest(ctx, 5); err != nil {
		return nil, err
	}
	if st.Redundancy, err = s.redundancy(ctx); err != nil {
		return nil, err
	}
	if st.Utilization, err = s.utilization(ctx); err != nil {
		return nil, err
	}
	if st.Health.Duplicates, err = s.duplicateTmdb(ctx); err != nil {
		return nil, err
	}

	return &st, nil
}

func (s *StatsStore) perDrive(ctx context.Context, mediaType string) ([]DriveCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.path, COUNT(m.id)
		FROM media m
		JOIN drives d ON d.id = m.drive_id
		WHERE m.type = ?
		GROUP BY d.id
		ORDER BY d.path
	`, mediaType)
	if err != nil {
		return nil, fmt.Errorf("query %s per drive: %w", mediaType, err)
	}
	defer rows.Close()

	out := []DriveCount{}
	for rows.Next() {
		var dc DriveCount
		if err := rows.Scan(&dc.Drive, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (s *StatsStore) byYear(ctx context.Context) ([]YearCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT release_year, COUNT(*)
		FROM media
		WHERE release_year IS NOT NULL
		GROUP BY release_year
		ORDER BY release_year DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("query release years: %w", err)
	}
	defer rows.Close()

	out := []YearCount{}
	for rows.Next() {
		var yc YearCount
		if err := rows.Scan(&yc.Year, &yc.Count); err != nil {
			return nil, err
		}
		out = append(out, yc)
	}
	return out, rows.Err()
}

func (s *StatsStore) largest(ctx context.Context, limit int) ([]TitleSize, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, total_size FROM media
		ORDER BY total_size DESC, title
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query largest titles: %w", err)
	}
	defer rows.Close()

	out := []TitleSize{}
	for rows.Next() {
		var ts TitleSize
		if err := rows.Scan(&ts.Title, &ts.TotalSize); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *StatsStore) redundancy(ctx context.Context) (Redundancy, error) {
	var r Redundancy
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN copies > 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN copies = 1 THEN 1 ELSE 0 END), 0)
		FROM (
			SELECT media_id, COUNT(DISTINCT drive_id) AS copies
			FROM files
			WHERE drive_id IS NOT NULL
			GROUP BY media_id
		)
	`).Scan(&r.BackedUp, &r.SingleCopy)
	if err != nil {
		return r, fmt.Errorf("query redundancy: %w", err)
	}
	r.PercentProtected = percent(int64(r.BackedUp), int64(r.BackedUp+r.SingleCopy))
	return r, nil
}

func (s *StatsStore) utilization(ctx context.Context) (Utilization, error) {
	var u Utilization
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.path, COALESCE(d.total_size, 0), COALESCE(SUM(m.total_size), 0)
		FROM drives d
		LEFT JOIN media m ON m.drive_id = d.id
		GROUP BY d.id
		ORDER BY d.path
	`)
	if err != nil {
		return u, fmt.Errorf("query utilization: %w", err)
	}
	defer rows.Close()

	u.PerDrive = []DriveUtilization{}
	for rows.Next() {
		var du DriveUtilization
		if err := rows.Scan(&du.Drive, &du.Total, &du.Used); err != nil {
			return u, err
		}
		du.Percent = percent(du.Used, du.Total)
		u.PerDrive = append(u.PerDrive, du)
	}
	if err := rows.Err(); err != nil {
		return u, err
	}

	for i := range u.PerDrive {
		du := u.PerDrive[i]
		if u.Largest == nil || du.Total > u.Largest.Total {
			u.Largest = &du
		}
		if u.Smallest == nil || du.Total < u.Smallest.Total {
			u.Smallest = &du
		}
	}
	return u, nil
}

func (s *StatsStore) duplicateTmdb(ctx context.Context) ([]DuplicateTmdb, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tmdb_id, COUNT(*) AS cnt
		FROM media
		WHERE tmdb_id IS NOT NULL
		GROUP BY tmdb_id
		HAVING cnt > 1
		ORDER BY tmdb_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query duplicate tmdb ids: %w", err)
	}
	defer rows.Close()

	out := []DuplicateTmdb{}
	for rows.Next() {
		var d DuplicateTmdb
		if err := rows.Scan(&d.TmdbID, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}

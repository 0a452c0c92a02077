// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/archivarr/internal/database"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/internal/testdb"
	"github.com/autobrr/archivarr/pkg/arr"
	"github.com/autobrr/archivarr/pkg/medianame"
	"github.com/autobrr/archivarr/pkg/tmdb"
)

type fakePVR struct {
	mu    sync.Mutex
	calls []string
	items []arr.Item
	err   error
}

func (f *fakePVR) Configured() bool { return f != nil }

func (f *fakePVR) Lookup(_ context.Context, term string) ([]arr.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, term)
	return f.items, f.err
}

type searchCall struct {
	kind  tmdb.Kind
	query string
	year  int
}

type fakeSearch struct {
	mu      sync.Mutex
	calls   []searchCall
	respond func(call searchCall) ([]tmdb.Result, error)
}

func (f *fakeSearch) Configured() bool { return f != nil }

func (f *fakeSearch) Search(_ context.Context, kind tmdb.Kind, query string, year int) ([]tmdb.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := searchCall{kind: kind, query: query, year: year}
	f.calls = append(f.calls, call)
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(call)
}

func (f *fakeSearch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func seedMedia(t *testing.T, db *database.DB, id string, mediaType medianame.MediaType, title string, year int) {
	t.Helper()

	m := &models.Media{ID: id, Type: mediaType, Title: title}
	if year > 0 {
		m.ReleaseYear = &year
	}
	_, err := models.NewMediaStore(db).InsertIfAbsent(context.Background(), m)
	require.NoError(t, err)
}

func TestEnrichFallsThroughToTitleAndYear(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	ctx := context.Background()
	seedMedia(t, db, "m1", medianame.MediaTypeMovie, "Inception", 2010)

	radarr := &fakePVR{}
	search := &fakeSearch{respond: func(call searchCall) ([]tmdb.Result, error) {
		if call.year != 2010 {
			return nil, nil
		}
		return []tmdb.Result{{ID: 27205, Title: "Inception", ReleaseDate: "2010-07-15", PosterPath: "/inception.jpg", VoteAverage: 8.4}}, nil
	}}

	r := NewResolver(db, Config{Radarr: radarr, TMDB: search})
	res, err := r.Enrich(ctx, Request{MediaID: "m1", Type: medianame.MediaTypeMovie, Title: "Inception", Year: 2010})
	require.NoError(t, err)

	assert.Equal(t, OutcomeResolved, res.Outcome)
	assert.Equal(t, TierTMDBYear, res.Tier)
	assert.Equal(t, []string{"Inception"}, radarr.calls)
	require.Len(t, search.calls, 2)
	assert.Equal(t, searchCall{kind: tmdb.KindMovie, query: "Inception", year: 0}, search.calls[0])
	assert.Equal(t, searchCall{kind: tmdb.KindMovie, query: "Inception", year: 2010}, search.calls[1])

	require.Len(t, res.Attempts, 3)
	assert.Equal(t, TierPVR, res.Attempts[0].Tier)
	assert.Equal(t, TierTMDB, res.Attempts[1].Tier)
	assert.True(t, res.Attempts[2].Hit)

	md, err := models.NewMetadataStore(db).Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, string(TierTMDBYear), md.Provider)
	assert.Equal(t, tmdb.DefaultImageBaseURL+"/inception.jpg", *md.PosterURL)

	m, err := models.NewMediaStore(db).Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, m.TmdbID)
	assert.Equal(t, 27205, *m.TmdbID)
}

func TestEnrichExhaustionWritesOneSentinel(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	ctx := context.Background()
	seedMedia(t, db, "tv1", medianame.MediaTypeTV, "Foo", 0)

	sonarr := &fakePVR{err: errors.New("connection refused")}
	search := &fakeSearch{}

	r := NewResolver(db, Config{Sonarr: sonarr, TMDB: search})
	req := Request{MediaID: "tv1", Type: medianame.MediaTypeTV, Title: "Foo"}

	res, err := r.Enrich(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSentinel, res.Outcome)
	assert.Len(t, sonarr.calls, 1)
	assert.Equal(t, 1, search.callCount())

	md, err := models.NewMetadataStore(db).Get(ctx, "tv1")
	require.NoError(t, err)
	assert.True(t, md.IsSentinel())
	assert.Nil(t, md.PosterURL)
	assert.Equal(t, "Foo", md.Title)

	res, err = r.Enrich(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, res.Outcome)
	assert.Len(t, sonarr.calls, 1)
	assert.Equal(t, 1, search.callCount())

	all, err := models.NewMetadataStore(db).List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnrichPrefersPVR(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	ctx := context.Background()
	seedMedia(t, db, "tv1", medianame.MediaTypeTV, "Bluey", 0)

	sonarr := &fakePVR{items: []arr.Item{
		{ID: 0, Title: "Bluey Minisodes", Year: 2024},
		{ID: 12, Title: "Bluey", Year: 2018, TmdbID: 82728, ImdbID: "tt7678620", Genres: []string{"Animation", "Kids"},
			RemotePoster: "https://artworks.example/bluey.jpg", Ratings: arr.Ratings{Value: 9.1}},
	}}
	search := &fakeSearch{}

	r := NewResolver(db, Config{Sonarr: sonarr, TMDB: search})
	res, err := r.Enrich(ctx, Request{MediaID: "tv1", Type: medianame.MediaTypeTV, Title: "Bluey"})
	require.NoError(t, err)

	assert.Equal(t, TierPVR, res.Tier)
	assert.Zero(t, search.callCount())

	md, err := models.NewMetadataStore(db).Get(ctx, "tv1")
	require.NoError(t, err)
	assert.Equal(t, "sonarr", md.Provider)
	assert.Equal(t, "Bluey", md.Title)
	assert.Equal(t, "Animation, Kids", md.Genres)
	assert.Equal(t, "https://artworks.example/bluey.jpg", *md.PosterURL)
	require.NotNil(t, md.SonarrID)
	assert.Equal(t, 12, *md.SonarrID)

	m, err := models.NewMediaStore(db).Get(ctx, "tv1")
	require.NoError(t, err)
	assert.Equal(t, 12, *m.SonarrID)
	assert.Equal(t, 82728, *m.TmdbID)
	assert.Nil(t, m.RadarrID)
}

func TestEnrichTriesRawTitleLast(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	ctx := context.Background()
	raw := "The.Matrix.2160p.WEB-DL.HEVC"
	seedMedia(t, db, "m1", medianame.MediaTypeMovie, raw, 0)

	search := &fakeSearch{respond: func(call searchCall) ([]tmdb.Result, error) {
		if call.query == raw {
			return []tmdb.Result{{ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-31"}}, nil
		}
		return nil, nil
	}}

	r := NewResolver(db, Config{TMDB: search})
	res, err := r.Enrich(ctx, Request{MediaID: "m1", Type: medianame.MediaTypeMovie, Title: raw})
	require.NoError(t, err)

	assert.Equal(t, TierTMDBRaw, res.Tier)
	require.Len(t, search.calls, 2)
	assert.NotEqual(t, raw, search.calls[0].query)
	assert.Equal(t, raw, search.calls[1].query)
}

func TestEnrichSearchesPlainTitlesUnchanged(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	ctx := context.Background()
	seedMedia(t, db, "m1", medianame.MediaTypeMovie, "Charlotte's Web", 1973)

	search := &fakeSearch{respond: func(call searchCall) ([]tmdb.Result, error) {
		switch call.query {
		case "Charlotte's":
			return []tmdb.Result{{ID: 1, Title: "Charlotte's Secret"}}, nil
		case "Charlotte's Web":
			if call.year == 1973 {
				return []tmdb.Result{{ID: 15171, Title: "Charlotte's Web", ReleaseDate: "1973-02-22", PosterPath: "/web.jpg"}}, nil
			}
		}
		return nil, nil
	}}

	r := NewResolver(db, Config{TMDB: search})
	res, err := r.Enrich(ctx, Request{MediaID: "m1", Type: medianame.MediaTypeMovie, Title: "Charlotte's Web", Year: 1973})
	require.NoError(t, err)

	assert.Equal(t, TierTMDBYear, res.Tier)
	assert.Equal(t, []searchCall{
		{kind: tmdb.KindMovie, query: "Charlotte's Web"},
		{kind: tmdb.KindMovie, query: "Charlotte's Web", year: 1973},
	}, search.calls)

	md, err := models.NewMetadataStore(db).Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Charlotte's Web", md.Title)

	m, err := models.NewMediaStore(db).Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, m.TmdbID)
	assert.Equal(t, 15171, *m.TmdbID)
}

func TestEnrichSkipsPosteredMedia(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	ctx := context.Background()
	seedMedia(t, db, "m1", medianame.MediaTypeMovie, "Heat", 1995)

	poster := "/static/posters/poster_m1.jpg"
	require.NoError(t, models.NewMetadataStore(db).Upsert(ctx, &models.Metadata{MediaID: "m1", Title: "Heat", PosterURL: &poster, Provider: "tmdb"}))

	search := &fakeSearch{}
	r := NewResolver(db, Config{TMDB: search})

	for _, retry := range []bool{false, true} {
		res, err := r.Enrich(ctx, Request{MediaID: "m1", Type: medianame.MediaTypeMovie, Title: "Heat", Year: 1995, Retry: retry})
		require.NoError(t, err)
		assert.Equal(t, OutcomeEnriched, res.Outcome)
	}
	assert.Zero(t, search.callCount())
}

func TestEnrichWithoutProvidersLeavesNoSentinel(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	ctx := context.Background()
	seedMedia(t, db, "m1", medianame.MediaTypeMovie, "Heat", 1995)

	r := NewResolver(db, Config{})
	res, err := r.Enrich(ctx, Request{MediaID: "m1", Type: medianame.MediaTypeMovie, Title: "Heat"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoProviders, res.Outcome)

	exists, err := models.NewMetadataStore(db).Exists(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnrichCancelledContextWritesNothing(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	seedMedia(t, db, "m1", medianame.MediaTypeMovie, "Heat", 0)

	ctx, cancel := context.WithCancel(context.Background())
	search := &fakeSearch{respond: func(searchCall) ([]tmdb.Result, error) {
		cancel()
		return nil, context.Canceled
	}}

	r := NewResolver(db, Config{TMDB: search})
	_, err := r.Enrich(ctx, Request{MediaID: "m1", Type: medianame.MediaTypeMovie, Title: "Heat"})
	require.ErrorIs(t, err, context.Canceled)

	exists, err := models.NewMetadataStore(db).Exists(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSweeps(t *testing.T) {
	db := testdb.Open(t, "enrichment")
	ctx := context.Background()
	seedMedia(t, db, "a", medianame.MediaTypeMovie, "Alien", 1979)
	seedMedia(t, db, "b", medianame.MediaTypeMovie, "Unknown Thing", 0)

	available := false
	search := &fakeSearch{respond: func(call searchCall) ([]tmdb.Result, error) {
		switch {
		case call.query == "Alien":
			return []tmdb.Result{{ID: 348, Title: "Alien", PosterPath: "/alien.jpg"}}, nil
		case available:
			return []tmdb.Result{{ID: 1, Title: call.query, PosterPath: "/thing.jpg"}}, nil
		}
		return nil, nil
	}}
	r := NewResolver(db, Config{TMDB: search})

	summary, err := r.EnrichMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Resolved)
	assert.Equal(t, 1, summary.Sentinels)

	summary, err = r.EnrichMissing(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)

	available = true
	summary, err = r.ReEnrichAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Resolved)

	md, err := models.NewMetadataStore(db).Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, md.HasPoster())
	assert.Equal(t, string(TierTMDB), md.Provider)
}

func TestBestResultPrefersExactTitle(t *testing.T) {
	t.Parallel()

	results := []tmdb.Result{
		{ID: 1, Title: "Heat Wave", ReleaseDate: "2009-01-01"},
		{ID: 2, Title: "Heat", ReleaseDate: "1986-01-01"},
		{ID: 3, Title: "Heat", ReleaseDate: "1995-12-15"},
	}

	best, ok := bestResult(results, "heat", 1995)
	require.True(t, ok)
	assert.Equal(t, 3, best.ID)

	best, ok = bestResult(results, "Heat", 0)
	require.True(t, ok)
	assert.Equal(t, 2, best.ID)

	_, ok = bestResult([]tmdb.Result{{ID: 9}}, "Heat", 0)
	assert.False(t, ok)
}

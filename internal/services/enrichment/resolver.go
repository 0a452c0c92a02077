// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package enrichment attaches external metadata to indexed media by walking
// a fixed chain of providers and recording a sentinel when all of them fail.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/dbinterface"
	"github.com/autobrr/archivarr/internal/metrics/collector"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/pkg/arr"
	"github.com/autobrr/archivarr/pkg/medianame"
	"github.com/autobrr/archivarr/pkg/titles"
	"github.com/autobrr/archivarr/pkg/tmdb"
)

// Tier names a step of the lookup chain. The string is stored as the
// metadata provider for TMDB tiers.
type Tier string

const (
	TierPVR       Tier = "pvr"
	TierTMDB      Tier = "tmdb"
	TierTMDBYear  Tier = "tmdb_year"
	TierTMDBRaw   Tier = "tmdb_raw"
	TierExhausted Tier = "none"
)

// Outcome is what Enrich did for a request.
type Outcome string

const (
	OutcomeResolved    Outcome = "resolved"
	OutcomeSentinel    Outcome = "sentinel"
	OutcomeEnriched    Outcome = "already_enriched"
	OutcomeSuppressed  Outcome = "suppressed"
	OutcomeNoProviders Outcome = "no_providers"
)

// Request identifies the media to enrich. Retry lets a row without a
// poster be looked up again.
type Request struct {
	MediaID string
	Type    medianame.MediaType
	Title   string
	Year    int
	Retry   bool
}

// Attempt records one provider call.
type Attempt struct {
	Tier  Tier
	Query string
	Year  int
	Hit   bool
	Err   error
}

type Result struct {
	MediaID  string
	Outcome  Outcome
	Tier     Tier
	Metadata *models.Metadata
	Attempts []Attempt
}

// PVRLookup is the Sonarr/Radarr lookup endpoint.
type PVRLookup interface {
	Configured() bool
	Lookup(ctx context.Context, term string) ([]arr.Item, error)
}

// SearchProvider is the TMDB search endpoint.
type SearchProvider interface {
	Configured() bool
	Search(ctx context.Context, kind tmdb.Kind, query string, year int) ([]tmdb.Result, error)
}

type Config struct {
	Sonarr  PVRLookup
	Radarr  PVRLookup
	TMDB    SearchProvider
	Timeout time.Duration
	Metrics *collector.EnrichmentCollector
}

type Resolver struct {
	cfg      Config
	media    *models.MediaStore
	metadata *models.MetadataStore
	cleaner  *titles.Cleaner
	logger   zerolog.Logger
}

func NewResolver(db dbinterface.Querier, cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Resolver{
		cfg:      cfg,
		media:    models.NewMediaStore(db),
		metadata: models.NewMetadataStore(db),
		cleaner:  titles.New(),
		logger:   log.With().Str("component", "enrichment").Logger(),
	}
}

func (r *Resolver) pvrFor(t medianame.MediaType) PVRLookup {
	if t == medianame.MediaTypeTV {
		return r.cfg.Sonarr
	}
	return r.cfg.Radarr
}

func (r *Resolver) anyProvider(t medianame.MediaType) bool {
	pvr := r.pvrFor(t)
	return (pvr != nil && pvr.Configured()) || (r.cfg.TMDB != nil && r.cfg.TMDB.Configured())
}

// Enrich resolves metadata for one media row. An existing row with a poster
// is left alone, and so is a row without one unless req.Retry is set. When
// every provider misses a sentinel row is written so later calls do not hit
// the network again.
func (r *Resolver) Enrich(ctx context.Context, req Request) (*Result, error) {
	res := &Result{MediaID: req.MediaID}

	existing, err := r.metadata.Get(ctx, req.MediaID)
	switch {
	case err == nil:
		if existing.HasPoster() {
			res.Outcome = OutcomeEnriched
			res.Metadata = existing
			return res, nil
		}
		if !req.Retry {
			res.Outcome = OutcomeSuppressed
			res.Metadata = existing
			return res, nil
		}
	case errors.Is(err, models.ErrMetadataNotFound):
	default:
		return nil, err
	}

	if !r.anyProvider(req.Type) {
		res.Outcome = OutcomeNoProviders
		return res, nil
	}

	md, tier, attempts, err := r.resolve(ctx, req)
	res.Attempts = attempts
	if err != nil {
		return res, err
	}

	if md == nil {
		if _, err := r.metadata.InsertSentinel(ctx, req.MediaID, string(req.Type), req.Title); err != nil {
			return res, fmt.Errorf("record sentinel for %s: %w", req.MediaID, err)
		}
		r.cfg.Metrics.IncResolved(string(OutcomeSentinel))
		r.logger.Info().Str("mediaId", req.MediaID).Str("title", req.Title).Msg("enrichment: no provider matched, sentinel recorded")
		res.Outcome = OutcomeSentinel
		res.Tier = TierExhausted
		return res, nil
	}

	md.MediaID = req.MediaID
	md.Type = string(req.Type)
	if err := r.metadata.Upsert(ctx, md); err != nil {
		return res, err
	}
	if err := r.media.SetExternalIDs(ctx, req.MediaID, md.TmdbID, md.SonarrID, md.RadarrID); err != nil {
		return res, err
	}

	r.cfg.Metrics.IncResolved(string(OutcomeResolved))
	r.logger.Info().Str("mediaId", req.MediaID).Str("title", md.Title).Str("provider", md.Provider).Msg("enrichment: metadata stored")

	res.Outcome = OutcomeResolved
	res.Tier = tier
	res.Metadata = md
	return res, nil
}

type lookupStep struct {
	tier  Tier
	query string
	year  int
}

// resolve walks the chain and returns the first usable match. A nil
// metadata without error means every tier missed. Only a cancelled ctx is
// returned as an error so shutdown never writes a sentinel.
func (r *Resolver) resolve(ctx context.Context, req Request) (*models.Metadata, Tier, []Attempt, error) {
	raw := strings.TrimSpace(req.Title)
	cleaned := r.cleaner.Clean(raw)
	if cleaned == "" {
		cleaned = raw
	}

	var attempts []Attempt
	record := func(a Attempt) {
		attempts = append(attempts, a)
		result := "miss"
		switch {
		case a.Err != nil:
			result = "error"
		case a.Hit:
			result = "hit"
		}
		r.cfg.Metrics.IncLookup(string(a.Tier), result)
	}

	if pvr := r.pvrFor(req.Type); pvr != nil && pvr.Configured() {
		md, err := r.lookupPVR(ctx, pvr, req.Type, cleaned, req.Year)
		record(Attempt{Tier: TierPVR, Query: cleaned, Hit: md != nil, Err: err})
		if md != nil {
			return md, TierPVR, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, "", attempts, ctx.Err()
		}
	}

	if r.cfg.TMDB == nil || !r.cfg.TMDB.Configured() {
		return nil, "", attempts, nil
	}

	steps := []lookupStep{{tier: TierTMDB, query: cleaned}}
	if req.Year > 0 {
		steps = append(steps, lookupStep{tier: TierTMDBYear, query: cleaned, year: req.Year})
	}
	if raw != "" && raw != cleaned {
		steps = append(steps, lookupStep{tier: TierTMDBRaw, query: raw})
	}

	for _, step := range steps {
		md, err := r.lookupTMDB(ctx, req.Type, step.query, step.year, req.Year)
		record(Attempt{Tier: step.tier, Query: step.query, Year: step.year, Hit: md != nil, Err: err})
		if md != nil {
			md.Provider = string(step.tier)
			return md, step.tier, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, "", attempts, ctx.Err()
		}
	}

	return nil, "", attempts, nil
}

func (r *Resolver) lookupPVR(ctx context.Context, pvr PVRLookup, mediaType medianame.MediaType, query string, year int) (*models.Metadata, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	items, err := pvr.Lookup(callCtx, query)
	if err != nil {
		r.logger.Warn().Err(err).Str("query", query).Msg("enrichment: pvr lookup failed")
		return nil, err
	}

	item, ok := bestItem(items, query, year)
	if !ok {
		r.logger.Debug().Str("query", query).Msg("enrichment: pvr lookup returned no match")
		return nil, nil
	}
	return metadataFromItem(item, mediaType), nil
}

func (r *Resolver) lookupTMDB(ctx context.Context, mediaType medianame.MediaType, query string, year, knownYear int) (*models.Metadata, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	kind := tmdb.KindMovie
	if mediaType == medianame.MediaTypeTV {
		kind = tmdb.KindTV
	}

	results, err := r.cfg.TMDB.Search(callCtx, kind, query, year)
	if err != nil {
		r.logger.Warn().Err(err).Str("query", query).Int("year", year).Msg("enrichment: tmdb search failed")
		return nil, err
	}

	hit, ok := bestResult(results, query, knownYear)
	if !ok {
		r.logger.Debug().Str("query", query).Int("year", year).Msg("enrichment: tmdb search returned no match")
		return nil, nil
	}
	return metadataFromTMDB(hit), nil
}

func metadataFromItem(item arr.Item, mediaType medianame.MediaType) *models.Metadata {
	md := &models.Metadata{
		Title:       item.Title,
		Overview:    item.Overview,
		Genres:      strings.Join(item.Genres, ", "),
		PosterURL:   optional(item.Poster()),
		BackdropURL: optional(item.Backdrop()),
		ImdbID:      item.ImdbID,
	}
	if y := item.ReleaseYear(); y > 0 {
		md.Year = &y
	}
	if item.Ratings.Value > 0 {
		v := item.Ratings.Value
		md.Rating = &v
	}
	if item.TmdbID > 0 {
		v := item.TmdbID
		md.TmdbID = &v
	}

	id := item.ID
	if mediaType == medianame.MediaTypeTV {
		md.Provider = string(arr.AppSonarr)
		if id > 0 {
			md.SonarrID = &id
		}
	} else {
		md.Provider = string(arr.AppRadarr)
		if id > 0 {
			md.RadarrID = &id
		}
	}
	return md
}

func metadataFromTMDB(hit tmdb.Result) *models.Metadata {
	md := &models.Metadata{
		Title:       hit.DisplayTitle(),
		Overview:    hit.Overview,
		Genres:      strings.Join(hit.GenreNames(), ", "),
		PosterURL:   optional(hit.PosterURL()),
		BackdropURL: optional(hit.BackdropURL()),
		ImdbID:      hit.ImdbID,
		Provider:    string(TierTMDB),
	}
	if y := hit.Year(); y > 0 {
		md.Year = &y
	}
	if hit.VoteAverage > 0 {
		v := hit.VoteAverage
		md.Rating = &v
	}
	if hit.ID > 0 {
		id := hit.ID
		md.TmdbID = &id
	}
	return md
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

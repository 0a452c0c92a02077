// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package posters keeps poster and backdrop images on local disk and
// rewrites the stored references to the local web path.
package posters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/dbinterface"
	"github.com/autobrr/archivarr/internal/metrics/collector"
	"github.com/autobrr/archivarr/internal/models"
)

const (
	FallbackFilename = "fallback.jpg"
	FallbackPoster   = models.LocalPosterPrefix + FallbackFilename

	defaultTimeout = 15 * time.Second
)

type outcome string

const (
	outcomeNone       outcome = "none"
	outcomeCached     outcome = "cached"
	outcomeDownloaded outcome = "downloaded"
	outcomeFallback   outcome = "fallback"
	outcomeCleared    outcome = "cleared"
)

type Config struct {
	Dir        string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
	Metrics    *collector.EnrichmentCollector
}

type Cache struct {
	dir        string
	client     *http.Client
	userAgent  string
	metadata   *models.MetadataStore
	connectors *models.ConnectorStore
	metrics    *collector.EnrichmentCollector
	logger     zerolog.Logger

	fallbackMu sync.Mutex
}

func New(db dbinterface.TxRunner, cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("poster directory is not configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create poster directory %s", cfg.Dir)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = "archivarr"
	}

	return &Cache{
		dir:        cfg.Dir,
		client:     client,
		userAgent:  ua,
		metadata:   models.NewMetadataStore(db),
		connectors: models.NewConnectorStore(db),
		metrics:    cfg.Metrics,
		logger:     log.With().Str("component", "posters").Logger(),
	}, nil
}

func (c *Cache) Dir() string {
	return c.dir
}

// Cache localizes the poster and backdrop of one media row and returns
// the poster reference now stored. An empty result means the row has no
// poster. A failed poster download stores the fallback image instead, so
// the next call does not download again.
func (c *Cache) Cache(ctx context.Context, mediaID string) (string, error) {
	md, err := c.metadata.Get(ctx, mediaID)
	if err != nil {
		return "", err
	}

	poster, _, err := c.cachePoster(ctx, md)
	if err != nil {
		return "", err
	}
	if _, err := c.cacheBackdrop(ctx, md); err != nil {
		return poster, err
	}
	return poster, nil
}

func (c *Cache) cachePoster(ctx context.Context, md *models.Metadata) (string, outcome, error) {
	if md.PosterURL == nil || *md.PosterURL == "" {
		return "", outcomeNone, nil
	}
	ref := *md.PosterURL

	if c.isCached(ref) {
		return ref, outcomeCached, nil
	}

	if isRemote(ref) {
		local, err := c.download(ctx, ref, "poster_"+md.MediaID+".jpg", "poster")
		if err == nil {
			if err := c.metadata.SetPoster(ctx, md.MediaID, &local); err != nil {
				return "", outcomeNone, err
			}
			return local, outcomeDownloaded, nil
		}
		if ctx.Err() != nil {
			return "", outcomeNone, ctx.Err()
		}
		c.logger.Warn().Err(err).Str("mediaId", md.MediaID).Str("url", ref).Msg("posters: download failed, using fallback")
	} else {
		c.logger.Debug().Str("mediaId", md.MediaID).Str("ref", ref).Msg("posters: reference is not cached, using fallback")
	}

	if err := c.ensureFallback(); err != nil {
		return "", outcomeNone, err
	}
	fallback := FallbackPoster
	if err := c.metadata.SetPoster(ctx, md.MediaID, &fallback); err != nil {
		return "", outcomeNone, err
	}
	return fallback, outcomeFallback, nil
}

// cacheBackdrop mirrors cachePoster without a fallback image: a backdrop
// that cannot be localized is cleared.
func (c *Cache) cacheBackdrop(ctx context.Context, md *models.Metadata) (outcome, error) {
	if md.BackdropURL == nil || *md.BackdropURL == "" {
		return outcomeNone, nil
	}
	ref := *md.BackdropURL

	if c.isCached(ref) {
		return outcomeCached, nil
	}

	if isRemote(ref) {
		local, err := c.download(ctx, ref, "backdrop_"+md.MediaID+".jpg", "backdrop")
		if err == nil {
			return outcomeDownloaded, c.metadata.SetBackdrop(ctx, md.MediaID, &local)
		}
		if ctx.Err() != nil {
			return outcomeNone, ctx.Err()
		}
		c.logger.Warn().Err(err).Str("mediaId", md.MediaID).Str("url", ref).Msg("posters: backdrop download failed, clearing")
	}

	return outcomeCleared, c.metadata.SetBackdrop(ctx, md.MediaID, nil)
}

// cacheConnectorPoster localizes one connector_media poster.
func (c *Cache) cacheConnectorPoster(ctx context.Context, ref models.PosterRef) (outcome, error) {
	if c.isCached(ref.PosterURL) {
		return outcomeCached, nil
	}

	result := outcomeFallback
	final := FallbackPoster
	if isRemote(ref.PosterURL) {
		local, err := c.download(ctx, ref.PosterURL, fmt.Sprintf("poster_cm_%d.jpg", ref.ID), "connector")
		switch {
		case err == nil:
			final, result = local, outcomeDownloaded
		case ctx.Err() != nil:
			return outcomeNone, ctx.Err()
		default:
			c.logger.Warn().Err(err).Int64("connectorMediaId", ref.ID).Str("url", ref.PosterURL).Msg("posters: connector poster download failed, using fallback")
		}
	}

	if result == outcomeFallback {
		if err := c.ensureFallback(); err != nil {
			return outcomeNone, err
		}
	}
	return result, c.connectors.SetMediaPoster(ctx, ref.ID, final)
}

// isCached reports whether ref is a local poster path whose file exists.
func (c *Cache) isCached(ref string) bool {
	if !strings.HasPrefix(ref, models.LocalPosterPrefix) {
		return false
	}
	name := strings.TrimPrefix(ref, models.LocalPosterPrefix)
	if name == "" || filepath.Base(name) != name {
		return false
	}
	info, err := os.Stat(filepath.Join(c.dir, name))
	return err == nil && info.Mode().IsRegular()
}

func isRemote(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

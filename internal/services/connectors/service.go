// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package connectors mirrors Sonarr and Radarr libraries into the local
// cache and records periodic health snapshots of each instance.
package connectors

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/archivarr/internal/dbinterface"
	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/pkg/arr"
	"github.com/autobrr/archivarr/pkg/httphelpers"
)

const (
	defaultSyncTimeout  = 30 * time.Second
	defaultStatsTimeout = 15 * time.Second
	defaultStatsWait    = 2 * time.Second
	statsRetries        = 1
	maxConcurrent       = 4
)

// Options configures a Service. Zero durations use the defaults.
type Options struct {
	Connectors   []domain.ConnectorConfig
	UserAgent    string
	SyncTimeout  time.Duration
	StatsTimeout time.Duration
	StatsWait    time.Duration
}

type Service struct {
	store  *models.ConnectorStore
	opts   Options
	logger zerolog.Logger

	syncGroup  singleflight.Group
	syncClient *http.Client
	statClient *http.Client
}

func NewService(db dbinterface.TxRunner, opts Options) *Service {
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = defaultSyncTimeout
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = defaultStatsTimeout
	}
	if opts.StatsWait <= 0 {
		opts.StatsWait = defaultStatsWait
	}

	return &Service{
		store:      models.NewConnectorStore(db),
		opts:       opts,
		logger:     log.With().Str("component", "connectors").Logger(),
		syncClient: &http.Client{Timeout: opts.SyncTimeout},
		statClient: arr.NewRetryingHTTPClient(opts.StatsTimeout, statsRetries, opts.StatsWait),
	}
}

// ConnectorID is the first 12 hex characters of sha1("{appType}:{baseUrl}")
// with the base URL stripped of trailing slashes.
func ConnectorID(appType, baseURL string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(appType)) + ":" + httphelpers.NormalizeBaseURL(baseURL)))
	return hex.EncodeToString(sum[:])[:12]
}

// Register upserts the given connector configs and returns the stored rows.
func (s *Service) Register(ctx context.Context, configs []domain.ConnectorConfig) ([]models.Connector, error) {
	out := make([]models.Connector, 0, len(configs))
	for i, cfg := range configs {
		app, err := arr.ParseAppType(cfg.AppType)
		if err != nil {
			return out, fmt.Errorf("connector %d: %w", i, err)
		}
		base := httphelpers.NormalizeBaseURL(cfg.BaseURL)
		if base == "" {
			return out, fmt.Errorf("connector %d: baseUrl is required", i)
		}

		c := models.Connector{
			ID:      ConnectorID(app.String(), base),
			AppType: app.String(),
			BaseURL: base,
			APIKey:  strings.TrimSpace(cfg.APIKey),
		}
		// a redacted key echoed back from list output keeps the stored one
		if domain.IsRedactedString(c.APIKey) {
			existing, err := s.store.Get(ctx, c.ID)
			if err != nil {
				return out, fmt.Errorf("connector %d: %w", i, err)
			}
			c.APIKey = existing.APIKey
		}
		if err := s.store.Upsert(ctx, &c); err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

// connectors registers the configured connectors and lists every stored one,
// including those imported outside the config file.
func (s *Service) connectors(ctx context.Context) ([]models.Connector, error) {
	if len(s.opts.Connectors) > 0 {
		if _, err := s.Register(ctx, s.opts.Connectors); err != nil {
			return nil, err
		}
	}
	return s.store.List(ctx)
}

// List returns every known connector, registering the configured ones first.
func (s *Service) List(ctx context.Context) ([]models.Connector, error) {
	return s.connectors(ctx)
}

// LatestStats returns the newest stored snapshot of every connector.
func (s *Service) LatestStats(ctx context.Context) ([]models.ConnectorStats, error) {
	return s.store.LatestStats(ctx)
}

func (s *Service) client(c models.Connector, httpClient *http.Client) (*arr.Client, error) {
	app, err := arr.ParseAppType(c.AppType)
	if err != nil {
		return nil, err
	}
	return arr.NewClient(app, arr.Config{
		Host:       c.BaseURL,
		APIKey:     c.APIKey,
		HTTPClient: httpClient,
		UserAgent:  s.opts.UserAgent,
	}), nil
}

// SyncResult reports one connector's media sync.
type SyncResult struct {
	ConnectorID string `json:"connectorId"`
	AppType     string `json:"appType"`
	Upserted    int    `json:"upserted"`
	Deleted     int    `json:"deleted"`
	Error       string `json:"error,omitempty"`
}

// SyncMedia mirrors every connector's library into connector_media.
// A failing connector is reported in its result and does not stop the
// others. Concurrent callers share one run, which outlives a caller whose
// ctx is cancelled.
func (s *Service) SyncMedia(ctx context.Context) ([]SyncResult, error) {
	ch := s.syncGroup.DoChan("sync", func() (any, error) {
		return s.syncMedia(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]SyncResult), nil
	}
}

func (s *Service) syncMedia(ctx context.Context) ([]SyncResult, error) {
	conns, err := s.connectors(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SyncResult, len(conns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, c := range conns {
		g.Go(func() error {
			results[i] = SyncResult{ConnectorID: c.ID, AppType: c.AppType}
			upserted, deleted, err := s.syncOne(gctx, c)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results[i].Error = err.Error()
				s.logger.Warn().Err(err).Str("connector", c.ID).Str("baseUrl", c.BaseURL).Msg("connectors: media sync failed")
				return nil
			}
			results[i].Upserted, results[i].Deleted = upserted, deleted
			s.logger.Info().Str("connector", c.ID).Int("upserted", upserted).Int("deleted", deleted).Msg("connectors: media synced")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Service) syncOne(ctx context.Context, c models.Connector) (int, int, error) {
	client, err := s.client(c, s.syncClient)
	if err != nil {
		return 0, 0, err
	}

	items, err := client.Library(ctx)
	if err != nil {
		return 0, 0, err
	}

	rows := make([]models.ConnectorMedia, 0, len(items))
	for _, item := range items {
		rows = append(rows, mediaFromItem(client.App(), item))
	}
	return s.store.ReplaceMedia(ctx, c.ID, rows)
}

func mediaFromItem(app arr.AppType, item arr.Item) models.ConnectorMedia {
	m := models.ConnectorMedia{
		MediaType:  app.MediaType(),
		ExternalID: item.ID,
		Title:      item.Title,
		ImdbID:     item.ImdbID,
		Monitored:  item.Monitored,
		Added:      item.Added,
		RawJSON:    string(item.Raw),
		TitleSlug:  item.TitleSlug,
	}
	if y := item.ReleaseYear(); y > 0 {
		m.Year = &y
	}
	if item.TmdbID > 0 {
		id := item.TmdbID
		m.TmdbID = &id
	}
	if item.TvdbID > 0 {
		id := item.TvdbID
		m.TvdbID = &id
	}
	if poster := item.Poster(); poster != "" {
		m.PosterURL = &poster
	}
	return m
}

// CollectStats appends one health snapshot per connector. An unreachable
// connector is recorded with status error.
func (s *Service) CollectStats(ctx context.Context) ([]models.ConnectorStats, error) {
	conns, err := s.connectors(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make([]models.ConnectorStats, 0, len(conns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, c := range conns {
		g.Go(func() error {
			st := s.snapshot(gctx, c)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := s.store.InsertStats(gctx, &st); err != nil {
				return err
			}
			mu.Lock()
			out = append(out, st)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Service) snapshot(ctx context.Context, c models.Connector) models.ConnectorStats {
	st := models.ConnectorStats{
		ConnectorID: c.ID,
		CheckedAt:   time.Now().UTC(),
		Status:      models.ConnectorStatusSuccess,
	}

	fail := func(err error) models.ConnectorStats {
		st.Status = models.ConnectorStatusError
		st.Error = err.Error()
		s.logger.Warn().Err(err).Str("connector", c.ID).Str("baseUrl", c.BaseURL).Msg("connectors: stats collection failed")
		return st
	}

	client, err := s.client(c, s.statClient)
	if err != nil {
		return fail(err)
	}

	status, err := client.SystemStatus(ctx)
	if err != nil {
		return fail(err)
	}
	st.Version = status.Version
	if err := checkAPIVersion(status.Version); err != nil {
		return fail(err)
	}

	var errs []error
	if st.Queue, err = client.Queue(ctx); err != nil {
		errs = append(errs, fmt.Errorf("queue: %w", err))
	}
	if st.DiskSpace, err = client.DiskSpace(ctx); err != nil {
		errs = append(errs, fmt.Errorf("diskspace: %w", err))
	}
	if len(errs) > 0 {
		return fail(errors.Join(errs...))
	}
	return st
}

// minAPIVersion is the first Sonarr and Radarr release serving /api/v3.
var minAPIVersion = version.Must(version.NewVersion("3.0.0"))

func checkAPIVersion(raw string) error {
	if raw == "" {
		return nil
	}
	v, err := version.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("unrecognized version %q: %w", raw, err)
	}
	if v.LessThan(minAPIVersion) {
		return fmt.Errorf("version %s is older than %s and has no v3 api", raw, minAPIVersion)
	}
	return nil
}

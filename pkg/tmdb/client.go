// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tmdb is a rate limited client for the TMDB v3 search and details
// endpoints.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/autobrr/archivarr/pkg/httphelpers"
)

const (
	DefaultBaseURL      = "https://api.themoviedb.org/3"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"

	defaultRequestsPerSecond = 4
)

var ErrNotConfigured = errors.New("tmdb api key not configured")

// Kind selects the movie or tv endpoints.
type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

type Config struct {
	BaseURL           string
	ImageBaseURL      string
	APIKey            string
	Timeout           int
	RequestsPerSecond float64
	HTTPClient        *http.Client
	UserAgent         string
}

type Client struct {
	baseURL      string
	imageBaseURL string
	apiKey       string
	httpClient   *http.Client
	userAgent    string
	limiter      *rate.Limiter
}

func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	baseURL := httphelpers.NormalizeBaseURL(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	imageBaseURL := httphelpers.NormalizeBaseURL(cfg.ImageBaseURL)
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "archivarr"
	}

	return &Client{
		baseURL:      baseURL,
		imageBaseURL: imageBaseURL,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		httpClient:   client,
		userAgent:    ua,
		limiter:      rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/rps)), 1),
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Search queries /search/{kind}. A positive year narrows the search with
// year (movies) or first_air_date_year (tv).
func (c *Client) Search(ctx context.Context, kind Kind, query string, year int) ([]Result, error) {
	params := url.Values{}
	params.Set("query", query)
	if year > 0 {
		if kind == KindTV {
			params.Set("first_air_date_year", strconv.Itoa(year))
		} else {
			params.Set("year", strconv.Itoa(year))
		}
	}

	var page struct {
		Results []Result `json:"results"`
	}
	if err := c.get(ctx, []string{"search", string(kind)}, params, &page); err != nil {
		return nil, err
	}

	for i := range page.Results {
		page.Results[i].imageBaseURL = c.imageBaseURL
	}
	return page.Results, nil
}

// Details fetches /{kind}/{id}.
func (c *Client) Details(ctx context.Context, kind Kind, id int) (*Result, error) {
	var result Result
	if err := c.get(ctx, []string{string(kind), strconv.Itoa(id)}, nil, &result); err != nil {
		return nil, err
	}
	result.imageBaseURL = c.imageBaseURL
	return &result, nil
}

func (c *Client) get(ctx context.Context, path []string, params url.Values, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return fmt.Errorf("failed to build tmdb endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build tmdb request: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb request failed: %w", err)
	}
	if err := httphelpers.CheckStatus("tmdb", resp); err != nil {
		return err
	}
	defer httphelpers.DrainAndClose(resp)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode tmdb response: %w", err)
	}
	return nil
}

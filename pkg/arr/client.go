// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package arr is a small read-only client for the Sonarr and Radarr v3 APIs.
package arr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/autobrr/archivarr/pkg/httphelpers"
)

var ErrNotConfigured = errors.New("arr client not configured")

type AppType string

const (
	AppSonarr AppType = "sonarr"
	AppRadarr AppType = "radarr"
)

func ParseAppType(s string) (AppType, error) {
	switch AppType(strings.ToLower(strings.TrimSpace(s))) {
	case AppSonarr:
		return AppSonarr, nil
	case AppRadarr:
		return AppRadarr, nil
	default:
		return "", fmt.Errorf("unknown app type %q", s)
	}
}

// Resource is the library endpoint for the app, "series" or "movie".
func (a AppType) Resource() string {
	if a == AppRadarr {
		return "movie"
	}
	return "series"
}

// MediaType is the connector_media type for the app.
func (a AppType) MediaType() string {
	if a == AppRadarr {
		return "movie"
	}
	return "series"
}

func (a AppType) String() string {
	return string(a)
}

// Config holds the options for constructing a Client.
type Config struct {
	Host       string
	APIKey     string
	Timeout    int
	HTTPClient *http.Client
	UserAgent  string
}

type Client struct {
	app        AppType
	host       string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

func NewClient(app AppType, cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "archivarr"
	}

	return &Client{
		app:        app,
		host:       httphelpers.NormalizeBaseURL(cfg.Host),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: client,
		userAgent:  ua,
	}
}

// NewRetryingHTTPClient returns an http.Client that retries connection
// errors and 5xx responses with a fixed wait between attempts.
func NewRetryingHTTPClient(timeout time.Duration, retries int, wait time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = wait
	rc.RetryWaitMax = wait
	rc.Backoff = func(minWait, _ time.Duration, _ int, _ *http.Response) time.Duration {
		return minWait
	}
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout

	return rc.StandardClient()
}

func (c *Client) App() AppType {
	return c.app
}

func (c *Client) Host() string {
	return c.host
}

// Configured reports whether both the host and api key are set.
func (c *Client) Configured() bool {
	return c != nil && c.host != "" && c.apiKey != ""
}

// Lookup searches the app's remote lookup endpoint by term. The first result
// is the app's own best match.
func (c *Client) Lookup(ctx context.Context, term string) ([]Item, error) {
	var items []Item
	params := url.Values{}
	params.Set("term", term)

	if err := c.get(ctx, []string{c.app.Resource(), "lookup"}, params, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Library lists every series or movie managed by the instance.
func (c *Client) Library(ctx context.Context) ([]Item, error) {
	var raw []json.RawMessage
	if err := c.get(ctx, []string{c.app.Resource()}, nil, &raw); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(raw))
	for _, msg := range raw {
		var item Item
		if err := json.Unmarshal(msg, &item); err != nil {
			return nil, fmt.Errorf("failed to decode %s item: %w", c.app, err)
		}
		item.Raw = msg
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.get(ctx, []string{"system", "status"}, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Queue returns the raw queue payload.
func (c *Client) Queue(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, []string{"queue"}, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DiskSpace returns the raw diskspace payload.
func (c *Client) DiskSpace(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, []string{"diskspace"}, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, path []string, params url.Values, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint, err := url.JoinPath(c.host, append([]string{"api", "v3"}, path...)...)
	if err != nil {
		return fmt.Errorf("failed to build %s endpoint: %w", c.app, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", c.app, err)
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.app, err)
	}
	if err := httphelpers.CheckStatus(c.app.String(), resp); err != nil {
		return err
	}
	defer httphelpers.DrainAndClose(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", c.app, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.app, err)
	}
	return nil
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/archivarr/pkg/httphelpers"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupSonarr(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/series/lookup", r.URL.Path)
		assert.Equal(t, "Foo", r.URL.Query().Get("term"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		_, _ = w.Write([]byte(`[{"id":0,"title":"Foo","year":2015,"tvdbId":42,"tmdbId":7,"imdbId":"tt01",
			"genres":["Drama","Comedy"],"ratings":{"votes":10,"value":8.1},
			"remotePoster":"https://img/foo.jpg","images":[{"coverType":"fanart","remoteUrl":"https://img/fan.jpg"}]}]`))
	})

	client := NewClient(AppSonarr, Config{Host: srv.URL + "/", APIKey: "secret"})
	items, err := client.Lookup(context.Background(), "Foo")
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Foo", item.Title)
	assert.Equal(t, 2015, item.ReleaseYear())
	assert.Equal(t, 7, item.TmdbID)
	assert.InDelta(t, 8.1, item.Ratings.Value, 0.001)
	assert.Equal(t, "https://img/foo.jpg", item.Poster())
	assert.Equal(t, "https://img/fan.jpg", item.Backdrop())
}

func TestLookupRadarrRatingsShape(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/movie/lookup", r.URL.Path)
		_, _ = w.Write([]byte(`[{"title":"Inception","inCinemas":"2010-07-16T00:00:00Z",
			"ratings":{"imdb":{"value":8.8,"votes":100},"tmdb":{"value":8.4,"votes":50}},
			"images":[{"coverType":"poster","url":"/MediaCover/1/poster.jpg","remoteUrl":"https://img/inception.jpg"}]}]`))
	})

	client := NewClient(AppRadarr, Config{Host: srv.URL, APIKey: "k"})
	items, err := client.Lookup(context.Background(), "Inception")
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, 2010, items[0].ReleaseYear())
	assert.InDelta(t, 8.4, items[0].Ratings.Value, 0.001)
	assert.Equal(t, "https://img/inception.jpg", items[0].Poster())
	assert.Empty(t, items[0].Backdrop())
}

func TestNotConfigured(t *testing.T) {
	t.Parallel()

	client := NewClient(AppSonarr, Config{Host: "http://localhost:8989"})
	assert.False(t, client.Configured())

	_, err := client.Lookup(context.Background(), "Foo")
	assert.ErrorIs(t, err, ErrNotConfigured)

	var nilClient *Client
	assert.False(t, nilClient.Configured())
}

func TestLibraryKeepsRawPayload(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/movie", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":3,"title":"Alien","year":1979,"monitored":true,"extra":"kept"}]`))
	})

	items, err := NewClient(AppRadarr, Config{Host: srv.URL, APIKey: "k"}).Library(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].ID)
	assert.True(t, items[0].Monitored)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(items[0].Raw, &raw))
	assert.Equal(t, "kept", raw["extra"])
}

func TestStatusErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := NewClient(AppSonarr, Config{Host: srv.URL, APIKey: "bad"}).SystemStatus(context.Background())
	var statusErr *httphelpers.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestRetryingHTTPClient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"appName":"Sonarr","version":"4.0.1"}`))
	})

	client := NewClient(AppSonarr, Config{
		Host:       srv.URL,
		APIKey:     "k",
		HTTPClient: NewRetryingHTTPClient(time.Second, 1, time.Millisecond),
	})
	status, err := client.SystemStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4.0.1", status.Version)
	assert.Equal(t, int32(2), calls.Load())
}

func TestParseAppType(t *testing.T) {
	t.Parallel()

	app, err := ParseAppType(" Radarr ")
	require.NoError(t, err)
	assert.Equal(t, AppRadarr, app)
	assert.Equal(t, "movie", app.Resource())

	app, err = ParseAppType("sonarr")
	require.NoError(t, err)
	assert.Equal(t, "series", app.MediaType())

	_, err = ParseAppType("lidarr")
	assert.Error(t, err)
}

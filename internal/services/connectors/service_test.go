// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/internal/testdb"
)

const radarrMovies = `[
	{"id": 1, "title": "Heat", "year": 1995, "tmdbId": 949, "imdbId": "tt0113277", "monitored": true,
	 "added": "2024-01-02T03:04:05Z", "titleSlug": "heat-949",
	 "images": [{"coverType": "poster", "url": "/MediaCover/1/poster.jpg", "remoteUrl": "https://image.tmdb.org/t/p/original/heat.jpg"}]},
	{"id": 2, "title": "Alien", "year": 1979, "tmdbId": 348, "monitored": false, "images": []}
]`

type fakeArr struct {
	*httptest.Server
	library  atomic.Value
	failAll  atomic.Bool
	requests atomic.Int32
	hold     atomic.Pointer[chan struct{}]
	entered  chan struct{}
}

func newFakeArr(t *testing.T, resource, library string) *fakeArr {
	t.Helper()

	f := &fakeArr{entered: make(chan struct{}, 1)}
	f.library.Store(library)
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.failAll.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v3/" + resource:
			if hold := f.hold.Load(); hold != nil {
				select {
				case f.entered <- struct{}{}:
				default:
				}
				<-*hold
			}
			_, _ = w.Write([]byte(f.library.Load().(string)))
		case "/api/v3/system/status":
			_, _ = w.Write([]byte(`{"appName": "Radarr", "version": "5.2.6.8376"}`))
		case "/api/v3/queue":
			_, _ = w.Write([]byte(`{"totalRecords": 0, "records": []}`))
		case "/api/v3/diskspace":
			_, _ = w.Write([]byte(`[{"path": "/movies", "freeSpace": 100, "totalSpace": 200}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func newTestService(t *testing.T, configs ...domain.ConnectorConfig) (*Service, *models.ConnectorStore) {
	t.Helper()

	db := testdb.Open(t, "connectors")
	svc := NewService(db, Options{
		Connectors:   configs,
		SyncTimeout:  5 * time.Second,
		StatsTimeout: 5 * time.Second,
		StatsWait:    time.Millisecond,
	})
	return svc, models.NewConnectorStore(db)
}

func TestConnectorID(t *testing.T) {
	t.Parallel()

	id := ConnectorID("radarr", "http://radarr:7878")
	assert.Len(t, id, 12)
	assert.Equal(t, id, ConnectorID("Radarr", "http://radarr:7878/"))
	assert.NotEqual(t, id, ConnectorID("sonarr", "http://radarr:7878"))
}

func TestSyncMediaMirrorsLibrary(t *testing.T) {
	ctx := context.Background()
	radarr := newFakeArr(t, "movie", radarrMovies)
	svc, store := newTestService(t, domain.ConnectorConfig{AppType: "radarr", BaseURL: radarr.URL + "/", APIKey: "secret"})

	results, err := svc.SyncMedia(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, 2, results[0].Upserted)

	id := ConnectorID("radarr", radarr.URL)
	assert.Equal(t, id, results[0].ConnectorID)

	media, err := store.ListMedia(ctx, id)
	require.NoError(t, err)
	require.Len(t, media, 2)

	byExternal := map[int]models.ConnectorMedia{}
	for _, m := range media {
		byExternal[m.ExternalID] = m
	}

	heat := byExternal[1]
	assert.Equal(t, "movie", heat.MediaType)
	assert.Equal(t, "Heat", heat.Title)
	require.NotNil(t, heat.Year)
	assert.Equal(t, 1995, *heat.Year)
	require.NotNil(t, heat.TmdbID)
	assert.Equal(t, 949, *heat.TmdbID)
	assert.True(t, heat.Monitored)
	assert.Equal(t, "heat-949", heat.TitleSlug)
	require.NotNil(t, heat.PosterURL)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/heat.jpg", *heat.PosterURL)
	assert.Contains(t, heat.RawJSON, `"tmdbId": 949`)

	assert.Nil(t, byExternal[2].PosterURL)
	assert.False(t, byExternal[2].Monitored)

	radarr.library.Store(`[{"id": 2, "title": "Alien", "year": 1979}]`)
	results, err = svc.SyncMedia(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, results[0].Deleted)

	media, err = store.ListMedia(ctx, id)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, 2, media[0].ExternalID)
}

func TestSyncMediaOutlivesCancelledCaller(t *testing.T) {
	radarr := newFakeArr(t, "movie", radarrMovies)
	release := make(chan struct{})
	radarr.hold.Store(&release)
	unblock := sync.OnceFunc(func() { close(release) })
	t.Cleanup(unblock)

	svc, store := newTestService(t, domain.ConnectorConfig{AppType: "radarr", BaseURL: radarr.URL, APIKey: "secret"})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.SyncMedia(ctx)
		first <- err
	}()

	select {
	case <-radarr.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("sync never reached the connector")
	}

	second := make(chan []SyncResult, 1)
	go func() {
		results, err := svc.SyncMedia(context.Background())
		assert.NoError(t, err)
		second <- results
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	unblock()

	results := <-second
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Error)

	require.Eventually(t, func() bool {
		media, err := store.ListMedia(context.Background(), ConnectorID("radarr", radarr.URL))
		return err == nil && len(media) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSyncMediaContinuesPastFailingConnector(t *testing.T) {
	ctx := context.Background()
	radarr := newFakeArr(t, "movie", radarrMovies)
	sonarr := newFakeArr(t, "series", `[]`)
	sonarr.failAll.Store(true)

	svc, store := newTestService(t,
		domain.ConnectorConfig{AppType: "radarr", BaseURL: radarr.URL, APIKey: "secret"},
		domain.ConnectorConfig{AppType: "sonarr", BaseURL: sonarr.URL, APIKey: "secret"},
	)

	results, err := svc.SyncMedia(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		switch r.AppType {
		case "radarr":
			assert.Empty(t, r.Error)
			assert.Equal(t, 2, r.Upserted)
		case "sonarr":
			assert.Contains(t, r.Error, "500")
		}
	}

	media, err := store.ListMedia(ctx, ConnectorID("radarr", radarr.URL))
	require.NoError(t, err)
	assert.Len(t, media, 2)
}

func TestCollectStats(t *testing.T) {
	ctx := context.Background()
	radarr := newFakeArr(t, "movie", radarrMovies)
	broken := newFakeArr(t, "series", `[]`)
	broken.failAll.Store(true)

	svc, store := newTestService(t,
		domain.ConnectorConfig{AppType: "radarr", BaseURL: radarr.URL, APIKey: "secret"},
		domain.ConnectorConfig{AppType: "sonarr", BaseURL: broken.URL, APIKey: "secret"},
	)

	snapshots, err := svc.CollectStats(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	latest, err := store.LatestStats(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	for _, st := range latest {
		if st.ConnectorID == ConnectorID("radarr", radarr.URL) {
			assert.Equal(t, models.ConnectorStatusSuccess, st.Status)
			assert.Equal(t, "5.2.6.8376", st.Version)
			assert.JSONEq(t, `{"totalRecords": 0, "records": []}`, string(st.Queue))
			assert.Contains(t, string(st.DiskSpace), "/movies")
			continue
		}
		assert.Equal(t, models.ConnectorStatusError, st.Status)
		assert.NotEmpty(t, st.Error)
		assert.JSONEq(t, `[]`, string(st.Queue))
	}

	// one retry after the first 5xx
	assert.Equal(t, int32(2), broken.requests.Load())
}

func TestCheckAPIVersion(t *testing.T) {
	t.Parallel()

	require.NoError(t, checkAPIVersion("5.2.6.8376"))
	require.NoError(t, checkAPIVersion("3.0.0"))
	require.NoError(t, checkAPIVersion(""))
	require.Error(t, checkAPIVersion("2.0.0.5344"))
	require.Error(t, checkAPIVersion("nightly"))
}

func TestRegisterRejectsUnknownApp(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), []domain.ConnectorConfig{{AppType: "lidarr", BaseURL: "http://x", APIKey: "k"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lidarr")
}

func TestRegisterKeepsKeyWhenRedacted(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	registered, err := svc.Register(ctx, []domain.ConnectorConfig{{AppType: "sonarr", BaseURL: "http://sonarr:8989", APIKey: "original"}})
	require.NoError(t, err)
	require.Len(t, registered, 1)

	_, err = svc.Register(ctx, []domain.ConnectorConfig{{AppType: "sonarr", BaseURL: "http://sonarr:8989/", APIKey: domain.RedactedStr}})
	require.NoError(t, err)

	stored, err := store.Get(ctx, registered[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.APIKey)

	_, err = svc.Register(ctx, []domain.ConnectorConfig{{AppType: "radarr", BaseURL: "http://radarr:7878", APIKey: domain.RedactedStr}})
	require.ErrorIs(t, err, models.ErrConnectorNotFound)
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	configs, err := ParseYAML(strings.NewReader(`
sonarr:
  base_url: http://sonarr:8989/
  api_key: s
radarr:
  base_url: http://radarr:7878
  api_key: r
`))
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectorConfig{
		{AppType: "radarr", BaseURL: "http://radarr:7878", APIKey: "r"},
		{AppType: "sonarr", BaseURL: "http://sonarr:8989/", APIKey: "s"},
	}, configs)

	configs, err = ParseYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, configs)
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/archivarr/internal/testdb"
)

func healthStatus(t *testing.T, r http.Handler, path string) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp["status"]
}

func TestHealthReadinessFollowsArchiveDatabase(t *testing.T) {
	db := testdb.Open(t, "health")

	r := chi.NewRouter()
	r.Route("/health", NewHealthHandler(db.Conn()).Routes)

	code, status := healthStatus(t, r, "/health/readiness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", status)

	require.NoError(t, db.Close())

	code, status = healthStatus(t, r, "/health/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", status)

	// a closed database does not stop the process from serving
	code, status = healthStatus(t, r, "/health/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", status)

	code, status = healthStatus(t, r, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", status)
}

func TestHealthReadinessWithoutDatabase(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Route("/health", NewHealthHandler().Routes)

	code, status := healthStatus(t, r, "/health/readiness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", status)
}

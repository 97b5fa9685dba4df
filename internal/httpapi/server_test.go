package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHealth struct{ healthy bool }

func (h stubHealth) Healthy(context.Context) bool { return h.healthy }

func doRequest(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzOK(t *testing.T) {
	s := New(":0", nil, nil, nil, nil, stubHealth{healthy: true}, nil)
	rec := doRequest(t, s, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestHealthzDegradedWhenDatabaseDown(t *testing.T) {
	s := New(":0", nil, nil, nil, nil, stubHealth{healthy: false}, nil)
	rec := doRequest(t, s, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["database"])
}

func TestHealthzWithoutCheckerIsAlwaysOK(t *testing.T) {
	s := New(":0", nil, nil, nil, nil, nil, nil)
	rec := doRequest(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsOmitsAbsentCollaborators(t *testing.T) {
	s := New(":0", nil, nil, nil, nil, nil, nil)
	rec := doRequest(t, s, "/stats")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "exchange")
	assert.NotContains(t, body, "last_run")
}

func TestMetricsRouteNeedsRegistry(t *testing.T) {
	s := New(":0", nil, nil, nil, nil, nil, nil)
	rec := doRequest(t, s, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

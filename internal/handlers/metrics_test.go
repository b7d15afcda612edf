package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/v1/runs", "/v1/runs"},
		{"/v1/runs/", "/v1/runs"},
		{"/v1/runs/0b9c6f1e-3f5e-4a53-9f3b-2f0f1a7c9d11", "/v1/runs/{id}"},
		{"/v1/runs/0b9c6f1e-3f5e-4a53-9f3b-2f0f1a7c9d11/events", "/v1/runs/{id}/events"},
		{"/v1/runs/x/y/z", "other"},
		{"/v1/missions", "/v1/missions"},
		{"/v1/missions/harbor_run.json", "/v1/missions/{file}"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, routeLabel(tt.path))
		})
	}
}

func TestRequestLogger_RecordsMetrics(t *testing.T) {
	metrics := NewMetrics()
	handler := RequestLogger(testLogger(), metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/missions/missing.json" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	for _, path := range []string{"/v1/missions", "/v1/missions", "/v1/missions/missing.json"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, "/v1/missions", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, "/v1/missions/{file}", "404")))
}

func TestMetrics_Handler(t *testing.T) {
	metrics := NewMetrics()
	metrics.observe(http.MethodGet, "/health", http.StatusOK, 0.01)
	metrics.streamOpened()

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mission_api_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, string(body), "mission_api_event_streams 1")
}

func TestMetrics_NilStreamTracking(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.streamOpened()
		metrics.streamClosed()
	})
}

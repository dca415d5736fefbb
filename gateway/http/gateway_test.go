package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOAA-OWP/DMOD-sub000/config"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/health"
	"github.com/NOAA-OWP/DMOD-sub000/hydrofabric"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
)

// basin:
//
//	cat-1 → nex-2 → cat-3 → nex-5 → cat-10 → nex-11
//	                cat-7 ──┘
func basin() hydrofabric.Static {
	g := hydrofabric.NewBuilder().
		AddCatchment("cat-1", "nex-2").
		AddCatchment("cat-3", "nex-5").
		AddCatchment("cat-7", "nex-5").
		AddCatchment("cat-10", "nex-11").
		AddNexus("nex-2", "cat-3").
		AddNexus("nex-5", "cat-10").
		AddNexus("nex-11").
		Build()
	return hydrofabric.Static{"hf-1": g}
}

type failingProvider struct{}

func (failingProvider) LoadGraph(string) (*hydrofabric.Graph, error) {
	return nil, fmt.Errorf("disk on fire")
}

func testConfig() config.HTTPConfig {
	return config.HTTPConfig{Enabled: true, Addr: "127.0.0.1:0", HydrofabricUID: "hf-1", MaxRequestSize: 1024}
}

func newTestGateway(t *testing.T, graphs hydrofabric.Provider, opts ...Option) *Gateway {
	t.Helper()
	g, err := NewGateway(testConfig(), graphs, opts...)
	require.NoError(t, err)
	return g
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewGateway_Validation(t *testing.T) {
	_, err := NewGateway(testConfig(), nil)
	assert.True(t, errors.IsInvalid(err))

	cfg := testConfig()
	cfg.HydrofabricUID = ""
	_, err = NewGateway(cfg, basin())
	assert.True(t, errors.IsInvalid(err))
}

func TestCatIDValid(t *testing.T) {
	h := newTestGateway(t, basin()).Handler()

	rec := post(t, h, "/subset/cat_id_valid", `{"id": "cat-3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"catchment_id": "cat-3", "valid": true}`, rec.Body.String())

	rec = post(t, h, "/subset/cat_id_valid", `{"id": "nex-5"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"catchment_id": "nex-5", "valid": false}`, rec.Body.String())

	rec = post(t, h, "/subset/cat_id_valid", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id is required", decodeBody(t, rec)["error"])
}

func TestForCatID(t *testing.T) {
	h := newTestGateway(t, basin()).Handler()

	rec := post(t, h, "/subset/for_cat_id", `{"ids": ["cat-7", "cat-3"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"catchment_ids": ["cat-3", "cat-7"], "nexus_ids": ["nex-5"]}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUpstream(t *testing.T) {
	h := newTestGateway(t, basin()).Handler()

	rec := post(t, h, "/subset/upstream", `{"ids": ["cat-10"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"catchment_ids": ["cat-1", "cat-10", "cat-3", "cat-7"],
		"nexus_ids": ["nex-11", "nex-2", "nex-5"]
	}`, rec.Body.String())
}

func TestSubset_Errors(t *testing.T) {
	h := newTestGateway(t, basin()).Handler()

	tests := []struct {
		name      string
		path      string
		body      string
		wantCode  int
		wantError string
	}{
		{"unknown seed", "/subset/upstream", `{"ids": ["cat-10", "cat-404"]}`, http.StatusBadRequest, "cat-404"},
		{"empty ids", "/subset/for_cat_id", `{"ids": []}`, http.StatusBadRequest, "non-empty"},
		{"malformed json", "/subset/for_cat_id", `{"ids": [`, http.StatusBadRequest, "malformed JSON"},
		{"wrong type", "/subset/cat_id_valid", `{"id": 7}`, http.StatusBadRequest, "malformed JSON"},
		{"too large", "/subset/upstream", `{"ids": ["` + strings.Repeat("x", 2048) + `"]}`, http.StatusRequestEntityTooLarge, "maximum size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, decodeBody(t, rec)["error"], tt.wantError)
		})
	}
}

func TestSubset_WrongMethod(t *testing.T) {
	h := newTestGateway(t, basin()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/subset/upstream", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubset_ProviderFailures(t *testing.T) {
	missing := newTestGateway(t, hydrofabric.Static{}).Handler()
	rec := post(t, missing, "/subset/upstream", `{"ids": ["cat-1"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "hydrofabric unavailable", decodeBody(t, rec)["error"])

	broken := newTestGateway(t, failingProvider{}).Handler()
	rec = post(t, broken, "/subset/cat_id_valid", `{"id": "cat-1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["error"])
}

func TestSubset_UnreadableHydrofabricIsServerError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "hf-1"), 0o755))

	h := newTestGateway(t, hydrofabric.NewLoader(dir)).Handler()
	rec := post(t, h, "/subset/for_cat_id", `{"ids": ["cat-1"]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["error"])
	assert.NotContains(t, rec.Body.String(), hydrofabric.CatchmentFile)
}

func TestRegisterHTTPHandlers_Prefix(t *testing.T) {
	g := newTestGateway(t, basin())
	mux := http.NewServeMux()
	g.RegisterHTTPHandlers("/api/", mux)

	rec := post(t, mux, "/api/subset/cat_id_valid", `{"id": "cat-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = post(t, mux, "/subset/cat_id_valid", `{"id": "cat-1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	status := health.NewHealthy("dmod", "ok")
	g := newTestGateway(t, basin(), WithHealthReporter(func() health.Status { return status }))
	h := g.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

	status = health.NewUnhealthy("dmod", "nats down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLifecycle(t *testing.T) {
	g := newTestGateway(t, basin())
	require.NoError(t, g.Initialize())
	assert.False(t, g.Health().Healthy)

	require.NoError(t, g.Start(context.Background()))
	defer g.Stop(time.Second)
	assert.True(t, g.Health().Healthy)
	assert.True(t, errors.IsInvalid(g.Start(context.Background())))

	resp, err := http.Post("http://"+g.Addr()+"/subset/cat_id_valid", "application/json",
		bytes.NewBufferString(`{"id": "cat-10"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + g.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, g.Stop(time.Second))
	assert.False(t, g.Health().Healthy)
}

func TestInitialize_MissingHydrofabric(t *testing.T) {
	g := newTestGateway(t, hydrofabric.Static{})
	err := g.Initialize()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	g := newTestGateway(t, basin(), WithMetrics(registry))
	h := g.Handler()

	post(t, h, "/subset/upstream", `{"ids": ["cat-10"]}`)
	post(t, h, "/subset/upstream", `{"ids": ["cat-404"]}`)

	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.requests.WithLabelValues(endpointUpstream, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.requests.WithLabelValues(endpointUpstream, "400")))
	assert.Equal(t, 1, g.Health().ErrorCount)
	assert.Contains(t, g.Health().LastError, "cat-404")
}

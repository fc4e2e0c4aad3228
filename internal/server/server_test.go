package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-match/internal/catalog"
	"github.com/jonathan/talent-match/internal/config"
	"github.com/jonathan/talent-match/internal/extraction"
	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/ranking"
	"github.com/jonathan/talent-match/internal/scoring"
	"github.com/jonathan/talent-match/internal/server/ratelimit"
	"github.com/jonathan/talent-match/internal/store"
	"github.com/jonathan/talent-match/internal/taxonomy"
)

const testResume = `Jane Doe
Senior Backend Engineer

Experience
Senior Engineer at Acme Corp (2018 - 2023)

Education
M.Sc. Computer Science, TU Berlin, 2015

Skills
Go, Python, Docker`

type testAPI struct {
	server      *Server
	handler     http.Handler
	catalog     *catalog.Catalog
	coordinator *ranking.Coordinator
	extractions *extraction.Manager
	metrics     *observability.Metrics
}

type fixtureOption func(*config.ServerConfig, *Dependencies)

func withLimiter(cfg *ratelimit.Config) fixtureOption {
	return func(_ *config.ServerConfig, deps *Dependencies) {
		deps.Limiter = ratelimit.NewLimiter(cfg)
	}
}

func withAuth() fixtureOption {
	return func(_ *config.ServerConfig, deps *Dependencies) {
		deps.Tokens = setupTestJWTService(nil)
	}
}

func withOrigins(origins ...string) fixtureOption {
	return func(cfg *config.ServerConfig, _ *Dependencies) {
		cfg.CORSOrigins = origins
	}
}

func newTestAPI(t *testing.T, opts ...fixtureOption) *testAPI {
	t.Helper()
	ctx := context.Background()

	tax := taxonomy.New(nil)
	_, err := tax.LoadSeed(taxonomy.DefaultSeed())
	require.NoError(t, err)

	st := store.NewMemory()
	bus := EventBus.New()
	cat := catalog.New(st, tax, normalize.New(), bus)
	require.NoError(t, cat.LoadTaxonomy(ctx, taxonomy.DefaultSeed()))

	engine, err := scoring.New(scoring.DefaultConfig())
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	coord := ranking.New(st, tax, engine, ranking.WithMetrics(metrics))
	require.NoError(t, coord.Subscribe(bus))

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "resume.txt"), []byte(testResume), 0o644))
	pipeline := extraction.NewPipeline(
		&extraction.Router{Local: extraction.NewLocalSource(root, 0)},
		extraction.NewHeuristicExtractor(func() []string { return tax.Snapshot().Terms() }, nil),
		extraction.Config{},
	)
	manager := extraction.NewManager(pipeline, extraction.ManagerConfig{}, nil)
	t.Cleanup(func() { _ = manager.Close(context.Background()) })

	cfg := config.ServerConfig{Port: 8080, CORSOrigins: []string{"*"}}
	deps := Dependencies{
		Catalog:     cat,
		Coordinator: coord,
		Extractions: manager,
		Metrics:     metrics,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	t.Cleanup(deps.Limiter.Stop)

	srv := New(cfg, deps)
	return &testAPI{
		server:      srv,
		handler:     srv.Handler(),
		catalog:     cat,
		coordinator: coord,
		extractions: manager,
		metrics:     metrics,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/health", nil, requestIDHeader, "req-123")
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodGet, "/health", nil)

	w := api.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="GET /health"`)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "https://app.example.com", "*"},
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", "https://app.example.com"},
		{"unlisted origin", []string{"https://app.example.com"}, "https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, withOrigins(tt.origins...))
			w := api.do(t, http.MethodGet, "/health", nil, "Origin", tt.origin)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "If-Match")
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, withAuth())

	w := api.do(t, http.MethodOptions, "/jobs/j1", nil, "Origin", "https://app.example.com")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, withLimiter(&ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  2,
		DefaultWindow: time.Minute,
	}))

	for range 2 {
		w := api.do(t, http.MethodGet, "/taxonomy", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := api.do(t, http.MethodGet, "/taxonomy", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, "rate_limit_exceeded", body["error"])

	// Probes are never limited.
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health", nil).Code)

	metrics := api.do(t, http.MethodGet, "/metrics", nil)
	assert.Contains(t, metrics.Body.String(), `route="GET /taxonomy"`)
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t, withAuth())
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("recruiter-1", "recruiter"))

	tests := []struct {
		name    string
		path    string
		headers []string
		want    int
	}{
		{"public health", "/health", nil, http.StatusOK},
		{"public metrics", "/metrics", nil, http.StatusOK},
		{"missing token", "/taxonomy", nil, http.StatusUnauthorized},
		{"wrong secret", "/taxonomy", []string{"Authorization", "Bearer " + signToken(t, jwt.SigningMethodHS256, "another-secret-that-is-also-32-bytes-long", validClaims("x", ""))}, http.StatusUnauthorized},
		{"valid token", "/taxonomy", []string{"Authorization", "Bearer " + token}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodGet, tt.path, nil, tt.headers...)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestIfMatch(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *int64
		wantErr bool
	}{
		{"absent", "", nil, false},
		{"quoted", `"3"`, ptr(int64(3)), false},
		{"weak", `W/"4"`, ptr(int64(4)), false},
		{"bare", "0", ptr(int64(0)), false},
		{"garbage", `"abc"`, nil, true},
		{"negative", "-1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/jobs/j1", nil)
			if tt.header != "" {
				req.Header.Set("If-Match", tt.header)
			}
			got, err := ifMatch(req)
			if tt.wantErr {
				assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankOptions(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    ranking.RankOptions
		wantErr bool
	}{
		{"defaults", "", ranking.RankOptions{}, false},
		{"all set", "?limit=10&offset=20&include_inactive=true", ranking.RankOptions{Limit: 10, Offset: 20, IncludeInactive: true}, false},
		{"bad limit", "?limit=ten", ranking.RankOptions{}, true},
		{"negative offset", "?offset=-1", ranking.RankOptions{}, true},
		{"bad flag", "?include_inactive=maybe", ranking.RankOptions{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs/j1/candidates"+tt.query, nil)
			got, err := rankOptions(req)
			if tt.wantErr {
				assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_BodyTooLarge(t *testing.T) {
	api := newTestAPI(t)
	big := map[string]string{"headline": string(bytes.Repeat([]byte("a"), maxBodyBytes+1))}

	w := api.do(t, http.MethodPost, "/profiles/normalize", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestFail_StatusByError(t *testing.T) {
	api := newTestAPI(t)
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"client gone", fmt.Errorf("failed to rank: %w", context.Canceled), StatusClientClosedRequest, "context canceled"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs/j1/candidates", nil)
			w := httptest.NewRecorder()
			api.server.fail(w, req, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.NotContains(t, w.Body.String(), "disk on fire")
		})
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	api := newTestAPI(t)
	api.server.httpServer.Addr = "127.0.0.1:0"
	api.server.cfg.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- api.server.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func ptr[T any](v T) *T { return &v }

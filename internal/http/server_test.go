package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neonotso/budget-agent/internal/ledger"
	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/sheets/memory"
	"github.com/Neonotso/budget-agent/internal/tools"
)

func newTestServer(t *testing.T, opts Options) (*Server, *ledger.Manager) {
	t.Helper()
	m := ledger.New(memory.New(), ledger.WithLogger(log.Discard()))
	ts := tools.New(m, tools.WithLogger(log.Discard()), tools.WithRequireKnownCategory(false))
	opts.Logger = log.Discard()
	if opts.Ready == nil {
		opts.Ready = m.Connected
	}
	srv := NewServer(ts, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, m
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReadiness(t *testing.T) {
	srv, m := newTestServer(t, Options{})

	rr := do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = do(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"))

	require.NoError(t, m.Connect(context.Background()))
	rr = do(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestListTools(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(srv, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var specs []tools.Spec
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &specs))
	assert.Len(t, specs, 10)
}

func TestCallTool(t *testing.T) {
	srv, m := newTestServer(t, Options{ToolTimeout: time.Second})
	require.NoError(t, m.Connect(context.Background()))

	rr := do(srv, http.MethodPost, "/tools/add_transaction",
		`{"date":"2025-06-28","description":"Lunch","amount":12.5,"type":"Expense","category":"Dining"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var res map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "success", res["status"])

	rr = do(srv, http.MethodPost, "/tools/delete_transaction", `{"row_index":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "error", res["status"])

	rr = do(srv, http.MethodPost, "/tools/nope", `{}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(srv, http.MethodGet, "/tools/get_budgets", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestCallToolBodyTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rr := do(srv, http.MethodPost, "/tools/find_transactions", `{"description":"`+strings.Repeat("x", maxBodyBytes)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRateLimit(t *testing.T) {
	srv, m := newTestServer(t, Options{RateLimit: 2})
	require.NoError(t, m.Connect(context.Background()))

	for i := 0; i < 2; i++ {
		rr := do(srv, http.MethodPost, "/tools/get_categories", `{}`)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(srv, http.MethodPost, "/tools/get_categories", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
}

func TestRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	callFrom := func(srv *Server, forwarded string) int {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/tools/get_categories", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.7:51000"
		req.Header.Set("X-Forwarded-For", forwarded)
		srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	srv, m := newTestServer(t, Options{RateLimit: 1})
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, http.StatusOK, callFrom(srv, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, callFrom(srv, "10.0.0.2"))

	proxied, m := newTestServer(t, Options{RateLimit: 1, TrustProxy: true})
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, http.StatusOK, callFrom(proxied, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, callFrom(proxied, "10.0.0.2, 172.16.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, callFrom(proxied, "10.0.0.1"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51000"
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 172.16.0.1")
	req.Header.Set("X-Real-IP", "10.0.0.9")

	direct, _ := newTestServer(t, Options{})
	assert.Equal(t, "203.0.113.7", direct.clientIP(req))

	proxied, _ := newTestServer(t, Options{TrustProxy: true})
	assert.Equal(t, "10.0.0.1", proxied.clientIP(req))
	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.9", proxied.clientIP(req))
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.allow("a"))

	now = now.Add(10 * time.Minute)
	rl.cleanupStaleEntries()
	assert.Empty(t, rl.clients)
}

func TestRequestIDPropagates(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

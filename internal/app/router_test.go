package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/carbonledger/internal/ledger"
	"github.com/carbonledger/carbonledger/internal/observability"
	"github.com/carbonledger/carbonledger/internal/shared"
	"github.com/carbonledger/carbonledger/jobs"
)

func newTestRouter(t *testing.T) (http.Handler, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := ledger.Open(context.Background(), ledger.Config{Root: "0xroot"}, ledger.NewMemoryStore(), nil, logger)
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	l.SetObserver(metrics)
	router := NewRouter(RouterParams{
		Logger:        logger,
		Config:        &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		LedgerHandler: ledger.NewHandler(logger, l),
		JobHandler:    jobs.NewHandler(nil, logger),
		Metrics:       metrics,
	})
	return router, l
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRouterNormalisesPrincipalHeader(t *testing.T) {
	router, l := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/ledger/buyers", nil)
	req.Header.Set(shared.PrincipalHeader, "  0xBuyer ")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, ledger.RoleBuyer, l.RoleOf("0xbuyer"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `carbonledger_ledger_operations_total{op="register_buyer",result="ok"} 1`)
	assert.True(t, strings.Contains(body, `route="/ledger/buyers"`), body)
}

func TestRouterMountsJobsHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var queues []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &queues))
	assert.Len(t, queues, 2)
}

func TestPrincipalMiddlewareLeavesAnonymousRequests(t *testing.T) {
	var seen string
	handler := PrincipalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, seen)
}

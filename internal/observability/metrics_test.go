package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/carbonledger/carbonledger/internal/jobs"
	"github.com/carbonledger/carbonledger/internal/ledger"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	jobs.AddDrift(2)

	body := scrape(t, metrics)
	if !strings.Contains(body, "carbonledger_integrity_drift_total 2") {
		t.Fatalf("expected body to contain job metrics, got: %s", body)
	}
	if !strings.Contains(body, "carbonledger_ledger_units_issued_total 0") {
		t.Fatalf("expected body to contain ledger metrics, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestLedgerObserverClassifiesResults(t *testing.T) {
	metrics := NewMetrics()
	var observer ledger.Observer = metrics

	observer.ObserveOperation("issue", nil)
	observer.ObserveIssued(25)
	observer.ObserveOperation("issue", ledger.ErrSelfIssuance)
	observer.ObserveOperation("retire", ledger.ErrRetirerNotBuyer)
	observer.ObserveOperation("transfer", errors.New("connection reset"))

	body := scrape(t, metrics)
	for _, want := range []string{
		`carbonledger_ledger_operations_total{op="issue",result="ok"} 1`,
		`carbonledger_ledger_operations_total{op="issue",result="rejected"} 1`,
		`carbonledger_ledger_operations_total{op="retire",result="rejected"} 1`,
		`carbonledger_ledger_operations_total{op="transfer",result="error"} 1`,
		`carbonledger_ledger_units_issued_total 25`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware_RecordsRequest(t *testing.T) {
	p := NewProvider("test")
	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/api/search", func(c echo.Context) error {
		return c.String(http.StatusOK, "[]")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=vata", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := testutil.ToFloat64(p.httpRequests.WithLabelValues(http.MethodGet, "/api/search", "200"))
	if got != 1 {
		t.Errorf("expected 1 recorded request, got %v", got)
	}
	if v := testutil.ToFloat64(p.activeRequests); v != 0 {
		t.Errorf("expected no active requests after completion, got %v", v)
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	p := NewProvider("test")
	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	got := testutil.ToFloat64(p.httpRequests.WithLabelValues(http.MethodGet, "/boom", "502"))
	if got != 1 {
		t.Errorf("expected the 502 to be recorded, got %v", got)
	}
}

func TestProvider_DomainCounters(t *testing.T) {
	p := NewProvider("test")

	p.ObserveSearch(3)
	p.ObserveSearch(0)
	p.ObserveGenerate(OutcomeOK)
	p.ObserveGenerate(OutcomeInvalid)
	p.ObserveGenerate(OutcomeOK)
	p.SetTermsLoaded(42)
	p.ObservePanic()

	if v := testutil.ToFloat64(p.searches); v != 2 {
		t.Errorf("expected 2 searches, got %v", v)
	}
	if v := testutil.ToFloat64(p.generated.WithLabelValues(OutcomeOK)); v != 2 {
		t.Errorf("expected 2 ok generations, got %v", v)
	}
	if v := testutil.ToFloat64(p.termsLoaded); v != 42 {
		t.Errorf("expected 42 terms loaded, got %v", v)
	}
	if v := testutil.ToFloat64(p.panics); v != 1 {
		t.Errorf("expected 1 panic, got %v", v)
	}
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	p.ObserveSearch(1)
	p.ObserveGenerate(OutcomeError)
	p.SetTermsLoaded(1)
	p.ObservePanic()
}

func TestProvider_Handler(t *testing.T) {
	p := NewProvider("test")
	p.ObserveSearch(1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "terminology_searches_total") {
		t.Error("expected terminology_searches_total in exposition")
	}
	if !strings.Contains(body, `service="test"`) {
		t.Error("expected service label in exposition")
	}
}

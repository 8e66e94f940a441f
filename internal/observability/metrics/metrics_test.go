package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

func scrape(t *testing.T, m *HTTPServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestSessionMetricsCountOutcomes(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("desk")
	m := NewSessionMetrics("desk", httpMetrics.Registerer())

	m.ObserveProbe(domain.StatusUploaded)
	m.ObserveProbe(domain.StatusUploaded)
	m.ObserveProbe(domain.StatusOCRProcessed)
	m.ObservePollOutcome("success", 3, 2.0)
	m.ObservePollOutcome("abandoned", 1, 0)
	m.ObserveCorrection("accepted")
	m.ObserveSubmission("refused")
	m.SetBusy(true)
	m.SetBreakerState("ocrapi.results", "open")

	text := scrape(t, httpMetrics)
	for _, want := range []string{
		`invoicedesk_poll_probes_total{service="desk",status="uploaded"} 2`,
		`invoicedesk_poll_outcomes_total{outcome="abandoned",service="desk"} 1`,
		`invoicedesk_session_busy{service="desk"} 1`,
		`invoicedesk_remote_breaker_open{operation="ocrapi.results",service="desk"} 1`,
		`invoicedesk_session_submissions_total{outcome="refused",service="desk"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}

	m.SetBusy(false)
	m.SetBreakerState("ocrapi.results", "closed")
	text = scrape(t, httpMetrics)
	if !strings.Contains(text, `invoicedesk_remote_breaker_open{operation="ocrapi.results",service="desk"} 0`) {
		t.Fatalf("expected breaker gauge reset, got:\n%s", text)
	}
	if strings.Contains(text, `invoicedesk_poll_probes_per_task_count{outcome="abandoned"`) {
		t.Fatalf("expected abandoned polls excluded from probe histogram")
	}
}

func TestMiddlewareExposesNormalizedPaths(t *testing.T) {
	m := NewHTTPServerMetrics("desk")
	handler := m.Middleware("desk", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/session/fields/total_amount", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	m.RecordRateLimited("desk", "/v1/session/fields/vat_amount")

	text := scrape(t, m)
	if !strings.Contains(text, `path="/v1/session/fields/{field}"`) {
		t.Fatalf("expected normalized path label, got:\n%s", text)
	}
	if !strings.Contains(text, `status="202"`) {
		t.Fatalf("expected recorded status, got:\n%s", text)
	}
	if !strings.Contains(text, "invoicedesk_http_rate_limited_total") {
		t.Fatalf("expected rate limit counter, got:\n%s", text)
	}
}

package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSummaryHandler(t *testing.T) {
	m := New()

	m.IncAdmission("valid", false)
	m.IncAdmission("valid", false)
	m.IncAdmission("RATE_LIMIT_EXCEEDED", false)
	m.IncAdmission("INVALID_TOKEN", true)
	m.IncRateLimitRejection("windowed", "embed")
	m.IncQuotaRejection()
	m.IncAuthSuccess("session")
	m.IncAuthFailure("session")
	m.HTTPRequestsTotal.WithLabelValues("embed", "POST", "/v1/embed/{token}/query", "200").Add(3)
	m.HTTPRequestsTotal.WithLabelValues("embed", "POST", "/v1/embed/{token}/query", "429").Inc()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var summary Summary
	if err := json.NewDecoder(rr.Body).Decode(&summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}

	if summary.Admission.Total != 4 {
		t.Errorf("expected 4 admissions, got %v", summary.Admission.Total)
	}
	if summary.Admission.Admitted != 2 {
		t.Errorf("expected 2 admitted, got %v", summary.Admission.Admitted)
	}
	if summary.Admission.Degraded != 1 {
		t.Errorf("expected 1 degraded, got %v", summary.Admission.Degraded)
	}
	if summary.RateLimit.Rejections != 1 {
		t.Errorf("expected 1 rate limit rejection, got %v", summary.RateLimit.Rejections)
	}
	if summary.Quota.Rejections != 1 {
		t.Errorf("expected 1 quota rejection, got %v", summary.Quota.Rejections)
	}
	if summary.Embed.TotalRequests != 4 {
		t.Errorf("expected 4 embed requests, got %v", summary.Embed.TotalRequests)
	}
	if summary.Embed.ErrorRate != 0.25 {
		t.Errorf("expected 0.25 embed error rate, got %v", summary.Embed.ErrorRate)
	}
	if summary.Auth.Failures != 1 || summary.Auth.Successes != 1 {
		t.Errorf("unexpected auth counters: %+v", summary.Auth)
	}
}

func TestDBPoolCollector(t *testing.T) {
	m := New()
	m.RegisterDBPoolCollector(func() (int32, int32, int32) { return 10, 7, 3 })

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))

	var summary Summary
	if err := json.NewDecoder(rr.Body).Decode(&summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.DB.TotalConns != 10 || summary.DB.IdleConns != 7 || summary.DB.AcquiredConns != 3 {
		t.Errorf("unexpected db pool stats: %+v", summary.DB)
	}
}

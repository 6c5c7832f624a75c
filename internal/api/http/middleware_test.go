package apihttp

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/tours/search", "/api/v1/tours/search"},
		{"/api/v1/tours/search/5830148812/status", "/api/v1/tours/search/{id}/status"},
		{"/api/v1/tours/search/42/results", "/api/v1/tours/search/{id}/results"},
		{"/api/v1/tours/search/42", "/api/v1/tours/search/{id}"},
		{"/api/v1/ws/tours/42", "/api/v1/ws/tours/{id}"},
		{"/ws/tours/42", "/ws/tours/{id}"},
		{"/api/v1/tours/actualize", "/api/v1/tours/actualize"},
		{"/api/v1/tours/tour/16240000512", "/api/v1/tours/tour/{tourId}"},
		{"/favicon.ico", "/other"},
	}
	for _, tt := range tests {
		if got := normalizeRoute(tt.path); got != tt.want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPickRequestLogLevel(t *testing.T) {
	if got := pickRequestLogLevel("/api/v1/ws/stats", 502); got != slog.LevelError {
		t.Errorf("5xx should log at error, got %v", got)
	}
	if got := pickRequestLogLevel("/api/v1/ws/stats", 404); got != slog.LevelWarn {
		t.Errorf("4xx should log at warn, got %v", got)
	}
	if got := pickRequestLogLevel("/health", 200); got != slog.LevelDebug {
		t.Errorf("health should log at debug, got %v", got)
	}
}

func TestCorsMiddlewareWhitelist(t *testing.T) {
	handler := corsMiddleware([]string{"https://tours.example"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws/stats", nil)
	req.Header.Set("Origin", "https://tours.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://tours.example" {
		t.Errorf("expected whitelisted origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ws/stats", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for foreign origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/tours/search", nil)
	req.Header.Set("Origin", "https://tours.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestOriginAllowed(t *testing.T) {
	if !originAllowed(nil, "https://any.example") {
		t.Errorf("empty whitelist should allow any origin")
	}
	if !originAllowed([]string{"*"}, "https://any.example") {
		t.Errorf("wildcard should allow any origin")
	}
	if !originAllowed([]string{"https://tours.example"}, "") {
		t.Errorf("requests without origin should be allowed")
	}
	if originAllowed([]string{"https://tours.example"}, "https://evil.example") {
		t.Errorf("foreign origin must be rejected")
	}
}

func TestRecoveryMiddlewareReturns500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ws/stats", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newHeadersRouter(cfg SecurityHeadersConfig) *echo.Echo {
	e := echo.New()
	e.Use(SecurityHeaders(cfg))
	e.GET("/triage/assessments", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"data": []string{}})
	})
	e.GET("/metrics", func(c echo.Context) error {
		return c.String(http.StatusOK, "groot_http_requests_total 1\n")
	})
	e.GET("/admin/access-log/export", func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		return c.String(http.StatusOK, "id,created_at\n")
	})
	return e
}

func serve(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSecurityHeaders_PatientDataNeverCached(t *testing.T) {
	e := newHeadersRouter(SecurityHeadersConfig{HSTS: true, DownloadPrefixes: []string{"/admin/access-log/export"}})

	for _, path := range []string{"/triage/assessments", "/metrics", "/admin/access-log/export"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(e, path)
			expected := map[string]string{
				"X-Content-Type-Options":    "nosniff",
				"X-Frame-Options":           "DENY",
				"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
				"Referrer-Policy":           "no-referrer",
				"Cache-Control":             "no-store",
				"Pragma":                    "no-cache",
				"X-Robots-Tag":              "noindex, nofollow",
				"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
			}
			for header, want := range expected {
				if got := rec.Header().Get(header); got != want {
					t.Errorf("header %s: got %q, want %q", header, got, want)
				}
			}
		})
	}
}

func TestSecurityHeaders_DownloadsOnlyOnExport(t *testing.T) {
	e := newHeadersRouter(SecurityHeadersConfig{DownloadPrefixes: []string{"/admin/access-log/export"}})

	rec := serve(e, "/admin/access-log/export")
	if got := rec.Header().Get("X-Download-Options"); got != "noopen" {
		t.Errorf("csv export: expected X-Download-Options noopen, got %q", got)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/csv" {
		t.Errorf("csv export: handler content type overwritten, got %q", ct)
	}

	for _, path := range []string{"/metrics", "/triage/assessments"} {
		if got := serve(e, path).Header().Get("X-Download-Options"); got != "" {
			t.Errorf("%s: unexpected X-Download-Options %q", path, got)
		}
	}
}

func TestSecurityHeaders_HSTSOptIn(t *testing.T) {
	rec := serve(newHeadersRouter(SecurityHeadersConfig{}), "/metrics")
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS without TLS, got %q", got)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "groot_http_requests_total 1\n" {
		t.Errorf("metrics body altered: %d %q", rec.Code, rec.Body.String())
	}
}

func TestSecurityHeaders_SetOnErrorResponses(t *testing.T) {
	rec := serve(newHeadersRouter(SecurityHeadersConfig{}), "/triage/unknown")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected headers on error responses")
	}
}

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/groot/groot/internal/platform/auth"
)

func TestRecovery_LogsRouteAndDoctor(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Recovery(zerolog.New(&buf)))
	e.Use(RequestID())
	e.GET("/triage/assessments/:id", func(c echo.Context) error {
		panic("nil model")
	})

	req := httptest.NewRequest(http.MethodGet, "/triage/assessments/42", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "doc-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "internal server error" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	want := map[string]any{
		"request_id": "req-7",
		"route":      "/triage/assessments/:id",
		"doctor_id":  "doc-1",
		"panic":      "nil model",
		"message":    "panic recovered",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("log field %s: got %v, want %v", k, entry[k], v)
		}
	}
	if entry["stack"] == nil {
		t.Error("expected stack in log")
	}
}

func TestRecovery_CommittedResponseOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/access-log/export", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().WriteHeader(http.StatusOK)
		c.Response().Write([]byte("id,created_at\n"))
		panic("row encoder")
	})(c)

	if err != nil {
		t.Errorf("expected no error once the response is committed, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected the written status to stand, got %d", rec.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"response_committed":true`)) {
		t.Errorf("expected committed flag in log, got %s", buf.String())
	}
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/knowledge/ingest", nil), httptest.NewRecorder())

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected http.ErrAbortHandler to propagate, got %v", r)
		}
	}()
	Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic(http.ErrAbortHandler)
	})(c)
	t.Error("expected panic to propagate")
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})(c)
	if err != nil || rec.Code != http.StatusOK {
		t.Errorf("unexpected result %v %d", err, rec.Code)
	}
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/groot/groot/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(_ context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withAuth(doctorID, license string, roles []string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := req.Context()
		ctx = context.WithValue(ctx, auth.UserIDKey, doctorID)
		ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
		ctx = context.WithValue(ctx, auth.LicenseKey, license)
		*req = *req.WithContext(ctx)
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_AssessmentRead(t *testing.T) {
	rec := &mockRecorder{}
	id := uuid.New().String()

	c, _ := newTestContext(http.MethodGet, "/triage/assessments/"+id,
		withAuth("doc-1", "KEN-MD-1", []string{auth.RoleDoctor}))
	c.Set("request_id", "req-abc")

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.DoctorID != "doc-1" || entry.LicenseID != "KEN-MD-1" {
		t.Errorf("unexpected identity on entry: %+v", entry)
	}
	if entry.ResourceType != "assessment" {
		t.Errorf("expected resource type assessment, got %q", entry.ResourceType)
	}
	if entry.ResourceID != id {
		t.Errorf("expected resource id %q, got %q", id, entry.ResourceID)
	}
	if entry.Action != "read" {
		t.Errorf("expected action read, got %q", entry.Action)
	}
	if entry.RequestID != "req-abc" {
		t.Errorf("expected request id req-abc, got %q", entry.RequestID)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.StatusCode)
	}
}

func TestAudit_PaymentListIsSearch(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/payments?status=completed",
		withAuth("doc-2", "L", []string{auth.RoleDoctor}))

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := rec.last()
	if entry.ResourceType != "payment" {
		t.Errorf("expected resource type payment, got %q", entry.ResourceType)
	}
	if entry.Action != "search" {
		t.Errorf("expected action search, got %q", entry.Action)
	}
	if entry.ResourceID != "" {
		t.Errorf("expected no resource id, got %q", entry.ResourceID)
	}
}

func TestAudit_CapturesErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/triage/assessments/"+uuid.New().String())

	err := Audit(zerolog.New(os.Stderr), rec)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	})(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if got := rec.last().StatusCode; got != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", got)
	}
}

func TestAudit_SkipsUnauditedPaths(t *testing.T) {
	paths := []string{"/", "/health", "/triage/growth", "/chat", "/clinics/nearby", "/payments/callback", "/triage/assessmentsx"}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			rec := &mockRecorder{}
			c, _ := newTestContext(http.MethodPost, p)
			if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.count() != 0 {
				t.Errorf("expected no audit entry for %s", p)
			}
		})
	}
}

func TestAudit_RecorderErrorDoesNotFailRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("db down")}
	c, httpRec := newTestContext(http.MethodGet, "/payments")

	if err := Audit(zerolog.New(os.Stderr), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if httpRec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", httpRec.Code)
	}
}

func TestAudit_WithoutRecorder(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/payments")
	if err := Audit(zerolog.New(os.Stderr))(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecorderFunc(t *testing.T) {
	var got AuditEntry
	fn := AuditRecorderFunc(func(_ context.Context, e AuditEntry) error {
		got = e
		return nil
	})
	c, _ := newTestContext(http.MethodDelete, "/payments/"+uuid.New().String())
	if err := Audit(zerolog.New(os.Stderr), fn)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != "delete" {
		t.Errorf("expected action delete, got %q", got.Action)
	}
}

func TestExtractResourceID(t *testing.T) {
	id := uuid.New().String()
	tests := []struct {
		path string
		want string
	}{
		{"/payments/" + id, id},
		{"/payments/" + id + "/", id},
		{"/payments", ""},
		{"/triage/assessments/not-a-uuid", ""},
	}
	for _, tt := range tests {
		if got := extractResourceID(tt.path); got != tt.want {
			t.Errorf("extractResourceID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

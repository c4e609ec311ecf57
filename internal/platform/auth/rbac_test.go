package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runRole(t *testing.T, userID string, roles []string, required ...string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := req.Context()
	if userID != "" {
		ctx = context.WithValue(ctx, UserIDKey, userID)
	}
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequireRole(required...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec, err
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := runRole(t, "doc-1", []string{RoleDoctor}, RoleDoctor)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if _, err := runRole(t, "root", []string{RoleAdmin}, RoleDoctor); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	_, err := runRole(t, "someone", []string{"patient"}, RoleDoctor)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_Anonymous(t *testing.T) {
	_, err := runRole(t, "", nil, RoleDoctor)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		granted  []string
		required []string
		want     bool
	}{
		{[]string{"doctor"}, []string{"doctor"}, true},
		{[]string{"doctor"}, []string{"admin"}, false},
		{[]string{"admin"}, []string{"doctor"}, true},
		{nil, []string{"doctor"}, false},
		{[]string{"patient", "doctor"}, []string{"nurse", "doctor"}, true},
	}
	for _, tt := range tests {
		if got := HasAnyRole(tt.granted, tt.required...); got != tt.want {
			t.Errorf("HasAnyRole(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
		}
	}
}

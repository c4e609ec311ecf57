package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/groot/groot/internal/platform/auth"
)

// AuditEntry describes one access to stored patient data: who looked at
// which assessment or payment, when, and with what outcome.
type AuditEntry struct {
	DoctorID     string
	LicenseID    string
	Roles        []string
	ResourceType string
	ResourceID   string
	Action       string // read, create, update, delete, search
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// auditedPrefixes are the route prefixes that expose stored patient data.
var auditedPrefixes = []string{"/triage/assessments", "/payments"}

// Audit logs every request under the audited prefixes once the handler has
// run, so the entry carries the final status. The Daraja callback is a
// machine-to-machine write and is not audited here. When a recorder is
// supplied the entry is also persisted; recorder errors are logged only.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	var recorder AuditRecorder
	if len(recorders) > 0 {
		recorder = recorders[0]
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}

			ctx := req.Context()
			entry := AuditEntry{
				DoctorID:     auth.UserIDFromContext(ctx),
				LicenseID:    auth.LicenseFromContext(ctx),
				Roles:        auth.RolesFromContext(ctx),
				ResourceType: extractResourceType(path),
				ResourceID:   extractResourceID(path),
				Action:       httpMethodToAction(req.Method, path),
				IPAddress:    c.RealIP(),
				UserAgent:    req.UserAgent(),
				Path:         path,
				Method:       req.Method,
				Timestamp:    time.Now().UTC(),
				StatusCode:   status,
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(context.WithoutCancel(ctx), entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "access_audit").
				Str("request_id", entry.RequestID).
				Str("doctor_id", entry.DoctorID).
				Str("license_id", entry.LicenseID).
				Strs("roles", entry.Roles).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("patient_data_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	if path == "/payments/callback" {
		return false
	}
	for _, prefix := range auditedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// httpMethodToAction maps a request to an audit action. A GET on a
// collection is a search; a GET on a single resource is a read.
func httpMethodToAction(method, path string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	if extractResourceID(path) == "" {
		return "search"
	}
	return "read"
}

// extractResourceType returns "assessment" or "payment" for audited paths
// and "unknown" otherwise.
func extractResourceType(path string) string {
	switch {
	case strings.HasPrefix(path, "/triage/assessments"):
		return "assessment"
	case strings.HasPrefix(path, "/payments"):
		return "payment"
	}
	return "unknown"
}

// extractResourceID returns the trailing UUID segment of path, if any.
func extractResourceID(path string) string {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	last := path[idx+1:]
	if _, err := uuid.Parse(last); err != nil {
		return ""
	}
	return last
}

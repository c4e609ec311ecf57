// Package accesslog persists the patient-data access trail produced by the
// audit middleware and exposes it to administrators.
package accesslog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/groot/groot/internal/platform/db"
	"github.com/groot/groot/internal/platform/middleware"
)

// Entry is one stored access_log row.
type Entry struct {
	ID           int64     `json:"id"`
	DoctorID     string    `json:"doctor_id,omitempty"`
	LicenseID    string    `json:"license_id,omitempty"`
	Roles        []string  `json:"roles"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Action       string    `json:"action"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	StatusCode   int       `json:"status_code"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchParams filters the access trail. Zero values match everything.
type SearchParams struct {
	DoctorID     string
	ResourceType string
	ResourceID   string
	Action       string
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// Store records and searches access entries.
type Store interface {
	middleware.AuditRecorder
	Search(ctx context.Context, p SearchParams) ([]*Entry, int, error)
}

type pgStore struct {
	q db.Querier
}

// NewStore returns a Store backed by the access_log table.
func NewStore(q db.Querier) Store {
	return &pgStore{q: q}
}

func (s *pgStore) RecordAccess(ctx context.Context, e middleware.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	roles := e.Roles
	if roles == nil {
		roles = []string{}
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO access_log (
			doctor_id, license_id, roles, resource_type, resource_id, action,
			method, path, status_code, ip_address, user_agent, request_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.DoctorID, e.LicenseID, roles, e.ResourceType, e.ResourceID, e.Action,
		e.Method, e.Path, e.StatusCode, e.IPAddress, e.UserAgent, e.RequestID, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("access log: insert: %w", err)
	}
	return nil
}

func (s *pgStore) Search(ctx context.Context, p SearchParams) ([]*Entry, int, error) {
	where, args := buildWhere(p)

	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM access_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("access log: count: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
		SELECT id, COALESCE(doctor_id, ''), COALESCE(license_id, ''), COALESCE(roles, '{}'),
			resource_type, COALESCE(resource_id, ''), action, method, path,
			COALESCE(status_code, 0), COALESCE(ip_address, ''), COALESCE(user_agent, ''),
			COALESCE(request_id, ''), created_at
		FROM access_log%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("access log: search: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.DoctorID, &e.LicenseID, &e.Roles, &e.ResourceType,
			&e.ResourceID, &e.Action, &e.Method, &e.Path, &e.StatusCode, &e.IPAddress,
			&e.UserAgent, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}

// buildWhere renders the filter clause with positional arguments.
func buildWhere(p SearchParams) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if p.DoctorID != "" {
		add("doctor_id = $%d", p.DoctorID)
	}
	if p.ResourceType != "" {
		add("resource_type = $%d", p.ResourceType)
	}
	if p.ResourceID != "" {
		add("resource_id = $%d", p.ResourceID)
	}
	if p.Action != "" {
		add("action = $%d", p.Action)
	}
	if p.Since != nil {
		add("created_at >= $%d", *p.Since)
	}
	if p.Until != nil {
		add("created_at < $%d", *p.Until)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

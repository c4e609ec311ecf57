package doctor

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctors table. PasswordHash never leaves the service.
type Doctor struct {
	ID           uuid.UUID `db:"id" json:"id"`
	LicenseID    string    `db:"license_id" json:"license_id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        *string   `db:"email" json:"email,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Roles        []string  `db:"roles" json:"roles"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizeLicense trims and upper-cases a license id so "ken-md-1234 " and
// "KEN-MD-1234" name the same doctor.
func NormalizeLicense(license string) string {
	return strings.ToUpper(strings.TrimSpace(license))
}

// CreateInput holds the fields accepted when registering a doctor.
type CreateInput struct {
	LicenseID string
	FullName  string
	Email     string
	Password  string
	Admin     bool
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	LicenseID string `json:"license_id"`
	Password  string `json:"password"`
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Doctor    *Doctor   `json:"doctor"`
}

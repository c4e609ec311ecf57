package doctor

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/groot/groot/internal/platform/auth"
	"github.com/groot/groot/internal/platform/telemetry"
)

// ErrInvalidCredentials is returned for an unknown license, an inactive
// doctor and a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

const minPasswordLength = 8

// dummyHash is compared against when the license is unknown so that a miss
// costs the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	h, err := auth.HashPassword("groot-unknown-license")
	if err != nil {
		panic(err)
	}
	return h
})

type Service struct {
	repo          Repository
	issuer        *auth.TokenIssuer
	revoked       *auth.TokenRevocationStore
	metrics       *telemetry.Metrics
	logger        zerolog.Logger
	checkPassword func(hash, password string) bool
}

func NewService(repo Repository, issuer *auth.TokenIssuer, revoked *auth.TokenRevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		issuer:        issuer,
		revoked:       revoked,
		logger:        logger,
		checkPassword: auth.CheckPassword,
	}
}

// SetMetrics attaches an optional operation counter.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Login verifies the license/password pair and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	license := NormalizeLicense(req.LicenseID)
	if license == "" || req.Password == "" {
		return nil, fmt.Errorf("license_id and password are required")
	}

	d, err := s.repo.GetByLicense(ctx, license)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.checkPassword(dummyHash(), req.Password)
			s.metrics.RecordOperation("auth.login", "rejected")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup doctor: %w", err)
	}
	passwordOK := s.checkPassword(d.PasswordHash, req.Password)
	if !d.Active || !passwordOK {
		s.metrics.RecordOperation("auth.login", "rejected")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(d.ID.String(), d.LicenseID, d.Roles)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordOperation("auth.login", "success")
	s.logger.Info().Str("doctor_id", d.ID.String()).Str("license_id", d.LicenseID).Msg("doctor logged in")

	return &LoginResult{
		Status:    "success",
		Message:   "Logged in",
		Token:     token,
		ExpiresAt: expiresAt,
		Doctor:    d,
	}, nil
}

// Logout revokes the token carried by the request until it would expire.
func (s *Service) Logout(ctx context.Context) error {
	claims := auth.ClaimsFromContext(ctx)
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("no token to revoke")
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	s.revoked.Revoke(claims.ID, expiresAt)
	s.metrics.RecordOperation("auth.logout", "success")
	return nil
}

// Create registers a doctor with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Doctor, error) {
	license := NormalizeLicense(in.LicenseID)
	if license == "" {
		return nil, fmt.Errorf("license id is required")
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, fmt.Errorf("full name is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	d := &Doctor{
		LicenseID: license,
		FullName:  name,
		Roles:     []string{auth.RoleDoctor},
		Active:    true,
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("invalid email %q", email)
		}
		d.Email = &email
	}
	if in.Admin {
		d.Roles = append(d.Roles, auth.RoleAdmin)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	d.PasswordHash = hash

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	s.metrics.RecordOperation("doctor.create", "success")
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

// SetActive enables or disables a doctor's ability to log in. Disabling
// also refuses every token already issued to the doctor.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	if !active {
		s.revokeDoctor(id, time.Now())
		s.metrics.RecordOperation("doctor.deactivate", "success")
		s.logger.Info().Str("doctor_id", id.String()).Msg("doctor deactivated, tokens revoked")
	}
	return nil
}

// RestoreRevocations re-applies token cutoffs for doctors that are inactive,
// so tokens signed before a restart stay refused.
func (s *Service) RestoreRevocations(ctx context.Context) (int, error) {
	inactive, err := s.repo.ListInactive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list inactive doctors: %w", err)
	}
	for _, d := range inactive {
		s.revokeDoctor(d.ID, d.UpdatedAt)
	}
	return len(inactive), nil
}

func (s *Service) revokeDoctor(id uuid.UUID, cutoff time.Time) {
	if s.revoked == nil {
		return
	}
	var keep time.Duration
	if s.issuer != nil {
		keep = s.issuer.TTL()
	}
	s.revoked.RevokeSubject(id.String(), cutoff, cutoff.Add(keep))
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.List(ctx, limit, offset)
}

package doctor

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("doctor not found")
	ErrDuplicateLicense = errors.New("a doctor with this license id already exists")
)

// Repository defines the persistence interface for doctors.
type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByLicense(ctx context.Context, licenseID string) (*Doctor, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
	ListInactive(ctx context.Context) ([]*Doctor, error)
}

package triage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// AssessmentRepository defines the persistence interface for assessments.
type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	List(ctx context.Context, kind string, limit, offset int) ([]*Assessment, int, error)
}

// CatalogRepository answers availability and cost lookups. Region, facility
// and category comparisons are case-insensitive.
type CatalogRepository interface {
	Available(ctx context.Context, region, facility, category string) (bool, error)
	// Cost returns the first matching entry or ErrNotFound.
	Cost(ctx context.Context, region, facility, category string) (*CostEntry, error)
	// Replace swaps the whole catalog atomically.
	Replace(ctx context.Context, inventory []InventoryItem, costs []CostEntry) error
}

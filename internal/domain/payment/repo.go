package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("payment not found")

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	UpdateByCheckoutID(ctx context.Context, checkoutID string, o Outcome) (*Payment, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Payment, int, error)
}

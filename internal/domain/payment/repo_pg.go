package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/groot/groot/internal/platform/db"
)

const paymentColumns = `id, phone, amount, status, merchant_request_id, checkout_request_id,
	result_code, result_desc, mpesa_receipt, created_at, updated_at`

type paymentRepoPG struct {
	q db.Querier
}

func NewRepo(q db.Querier) Repository {
	return &paymentRepoPG{q: q}
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = StatusPending
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO payments (id, phone, amount, status, merchant_request_id, checkout_request_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING created_at, updated_at`,
		p.ID, p.Phone, p.Amount, p.Status, p.MerchantRequestID, p.CheckoutRequestID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return r.scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *paymentRepoPG) UpdateByCheckoutID(ctx context.Context, checkoutID string, o Outcome) (*Payment, error) {
	return r.scanPayment(r.q.QueryRow(ctx, `
		UPDATE payments
		SET status = $2, result_code = $3, result_desc = $4,
			mpesa_receipt = NULLIF($5, ''), updated_at = NOW()
		WHERE checkout_request_id = $1
		RETURNING `+paymentColumns,
		checkoutID, o.Status, o.ResultCode, o.ResultDesc, o.Receipt))
}

func (r *paymentRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Payment, int, error) {
	var total int
	if err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE ($1 = '' OR status = $1)`, status,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *paymentRepoPG) scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var merchantID, checkoutID *string
	err := row.Scan(&p.ID, &p.Phone, &p.Amount, &p.Status, &merchantID, &checkoutID,
		&p.ResultCode, &p.ResultDesc, &p.MpesaReceipt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if merchantID != nil {
		p.MerchantRequestID = *merchantID
	}
	if checkoutID != nil {
		p.CheckoutRequestID = *checkoutID
	}
	return &p, nil
}

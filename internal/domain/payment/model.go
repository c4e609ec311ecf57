package payment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	MinAmount = 1
	MaxAmount = 150000
)

type Payment struct {
	ID                uuid.UUID `json:"id"`
	Phone             string    `json:"phone"`
	Amount            int       `json:"amount"`
	Status            string    `json:"status"`
	MerchantRequestID string    `json:"merchant_request_id,omitempty"`
	CheckoutRequestID string    `json:"checkout_request_id,omitempty"`
	ResultCode        *int      `json:"result_code,omitempty"`
	ResultDesc        *string   `json:"result_desc,omitempty"`
	MpesaReceipt      *string   `json:"mpesa_receipt,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// STKPushRequest is the body of POST /payments/stk-push. AccessToken is
// optional; the configured consumer credentials are used when it is empty.
type STKPushRequest struct {
	Phone       string `json:"phone"`
	Amount      int    `json:"amount"`
	AccessToken string `json:"access_token,omitempty"`
}

// Outcome is the result of a callback, applied to a pending payment.
type Outcome struct {
	Status     string
	ResultCode int
	ResultDesc string
	Receipt    string
}

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/groot/groot/internal/platform/mpesa"
	"github.com/groot/groot/internal/platform/telemetry"
)

// Pusher initiates Lipa na M-Pesa Online payments.
type Pusher interface {
	STKPush(ctx context.Context, phone string, amount int, accessToken string) (*mpesa.STKPushResponse, error)
}

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// UpstreamError wraps a Daraja failure.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "daraja request failed: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// PushResult is what the caller gets back after a prompt was sent.
type PushResult struct {
	Status   string                 `json:"status"`
	Payment  *Payment               `json:"payment"`
	Response *mpesa.STKPushResponse `json:"response"`
}

type Service struct {
	repo    Repository
	pusher  Pusher
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// NewService builds the payment service. pusher is nil when M-Pesa is not
// configured; STK pushes then fail with mpesa.ErrNotConfigured while
// callbacks and listings keep working.
func NewService(repo Repository, pusher Pusher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, pusher: pusher, logger: logger}
}

func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// STKPush validates the request, sends the prompt and records a pending
// payment keyed by the returned CheckoutRequestID.
func (s *Service) STKPush(ctx context.Context, req STKPushRequest) (*PushResult, error) {
	phone, err := mpesa.NormalizePhone(req.Phone)
	if err != nil {
		return nil, &ValidationError{msg: err.Error()}
	}
	if req.Amount < MinAmount || req.Amount > MaxAmount {
		return nil, &ValidationError{msg: fmt.Sprintf("amount must be between %d and %d", MinAmount, MaxAmount)}
	}
	if s.pusher == nil {
		return nil, mpesa.ErrNotConfigured
	}

	resp, err := s.pusher.STKPush(ctx, phone, req.Amount, req.AccessToken)
	if err != nil {
		s.metrics.RecordOperation("payment.stk_push", "failure")
		if errors.Is(err, mpesa.ErrNoCredentials) || errors.Is(err, mpesa.ErrNotConfigured) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("phone", maskPhone(phone)).Int("amount", req.Amount).Msg("stk push failed")
		return nil, &UpstreamError{Err: err}
	}

	p := &Payment{
		Phone:             phone,
		Amount:            req.Amount,
		Status:            StatusPending,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	s.metrics.RecordOperation("payment.stk_push", "success")
	s.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("checkout_request_id", p.CheckoutRequestID).
		Int("amount", p.Amount).
		Msg("stk push sent")

	return &PushResult{Status: "success", Payment: p, Response: resp}, nil
}

// HandleCallback applies a Daraja callback body to the matching payment.
// A well-formed body for an unknown checkout id is logged and accepted.
func (s *Service) HandleCallback(ctx context.Context, body []byte) error {
	cb, err := mpesa.ParseCallback(body)
	if err != nil {
		return &ValidationError{msg: err.Error()}
	}
	stk := cb.Body.STKCallback

	o := Outcome{
		Status:     StatusFailed,
		ResultCode: stk.ResultCode,
		ResultDesc: stk.ResultDesc,
	}
	if stk.Succeeded() {
		o.Status = StatusCompleted
		o.Receipt = stk.Receipt()
	}

	p, err := s.repo.UpdateByCheckoutID(ctx, stk.CheckoutRequestID, o)
	if errors.Is(err, ErrNotFound) {
		s.metrics.RecordOperation("payment.callback", "unknown")
		s.logger.Warn().
			Str("checkout_request_id", stk.CheckoutRequestID).
			Int("result_code", stk.ResultCode).
			Msg("callback for unknown payment")
		return nil
	}
	if err != nil {
		return err
	}

	s.metrics.RecordOperation("payment.callback", o.Status)
	s.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("status", p.Status).
		Int("result_code", stk.ResultCode).
		Msg("payment updated from callback")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Payment, int, error) {
	if status != "" && !validStatus(status) {
		return nil, 0, &ValidationError{msg: "status must be one of pending, completed, failed"}
	}
	return s.repo.List(ctx, status, limit, offset)
}

func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return "********" + phone[len(phone)-4:]
}

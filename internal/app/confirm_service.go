package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamtam29/flashsale-app/internal/clock"
	"github.com/tamtam29/flashsale-app/internal/domain"
)

// Decision tells the queue consumer what to do with a delivery after
// processing. Requeue means republish with the retry count incremented and
// ack the original; DeadLetter means reject without requeue so the broker
// routes the message to the dead-letter queue.
type Decision int

const (
	DecisionAck Decision = iota
	DecisionRequeue
	DecisionDeadLetter
)

func (d Decision) String() string {
	switch d {
	case DecisionAck:
		return "ack"
	case DecisionRequeue:
		return "requeue"
	case DecisionDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// ConfirmOrderStore is the single durable write the worker performs.
type ConfirmOrderStore interface {
	Create(ctx context.Context, order domain.Order) error
}

const defaultMaxRetries = 3

// ConfirmService converts one queue delivery into a durable order, exactly
// once. Idempotency rides on the (sale, user) uniqueness constraint: a
// duplicate delivery is acknowledged as already processed, not failed.
type ConfirmService struct {
	orders     ConfirmOrderStore
	audit      AuditLogger
	clock      clock.Clock
	logger     zerolog.Logger
	maxRetries int
}

type ConfirmServiceOption func(*ConfirmService)

// WithMaxRetries overrides the retry ceiling.
func WithMaxRetries(n int) ConfirmServiceOption {
	return func(s *ConfirmService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func NewConfirmService(orders ConfirmOrderStore, audit AuditLogger, clk clock.Clock, logger zerolog.Logger, opts ...ConfirmServiceOption) *ConfirmService {
	svc := &ConfirmService{
		orders:     orders,
		audit:      audit,
		clock:      clk,
		logger:     logger.With().Str("component", "confirm_service").Logger(),
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Process handles one confirmation message. retryCount is the explicit count
// carried in the message header, zero on first delivery. Audit failures never
// change the returned decision.
func (s *ConfirmService) Process(ctx context.Context, saleID, userID string, retryCount int) Decision {
	order := domain.Order{
		ID:        uuid.NewString(),
		SaleID:    saleID,
		UserID:    userID,
		Status:    domain.OrderStatusConfirmed,
		CreatedAt: s.clock.Now(),
	}

	err := s.orders.Create(ctx, order)
	if err == nil {
		s.logger.Info().
			Str("orderId", order.ID).
			Str("saleId", saleID).
			Str("userId", userID).
			Msg("order confirmed")
		s.audit.LogEvent(saleID, userID, domain.AuditConfirmed, map[string]any{
			"orderId":     order.ID,
			"processedAt": order.CreatedAt.Format(time.RFC3339Nano),
		})
		return DecisionAck
	}

	if errors.Is(err, domain.ErrDuplicateOrder) {
		// Redelivery of an already-confirmed reservation. No second order,
		// no second confirmed audit event.
		s.logger.Warn().
			Str("saleId", saleID).
			Str("userId", userID).
			Msg("duplicate order delivery, already processed")
		return DecisionAck
	}

	s.logger.Error().Err(err).
		Str("saleId", saleID).
		Str("userId", userID).
		Int("retryCount", retryCount).
		Msg("failed to persist order")

	s.audit.LogEvent(saleID, userID, domain.AuditFailedWrite, map[string]any{
		"error":     err.Error(),
		"errorCode": sqlStateOf(err),
		"failedAt":  s.clock.Now().Format(time.RFC3339Nano),
	})

	if retryCount >= s.maxRetries {
		s.logger.Error().
			Str("saleId", saleID).
			Str("userId", userID).
			Int("maxRetries", s.maxRetries).
			Msg("retry ceiling reached, dead-lettering message")
		return DecisionDeadLetter
	}
	return DecisionRequeue
}

// sqlStateOf extracts a best-effort database error code without binding this
// package to the driver.
func sqlStateOf(err error) string {
	var coder interface{ SQLState() string }
	if errors.As(err, &coder) {
		return coder.SQLState()
	}
	return "UNKNOWN"
}

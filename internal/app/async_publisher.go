package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ConfirmationPublisher is the blocking broker publish the AsyncPublisher
// wraps.
type ConfirmationPublisher interface {
	PublishReservation(ctx context.Context, saleID, userID string, issuedAt time.Time) error
}

const (
	defaultEnqueueBuffer  = 1024
	enqueuePublishTimeout = 5 * time.Second
)

type enqueueRequest struct {
	saleID   string
	userID   string
	issuedAt time.Time
}

// AsyncPublisher decouples the admission hot path from broker latency: a
// bounded channel feeds a single background publisher goroutine. Enqueue
// never blocks; a full buffer or failed publish is logged and dropped, since
// the reservation itself is authoritative and reconciliation re-derives state
// from the order table.
type AsyncPublisher struct {
	publisher ConfirmationPublisher
	logger    zerolog.Logger
	ch        chan enqueueRequest
	done      chan struct{}
}

func NewAsyncPublisher(publisher ConfirmationPublisher, logger zerolog.Logger) *AsyncPublisher {
	return &AsyncPublisher{
		publisher: publisher,
		logger:    logger.With().Str("component", "async_publisher").Logger(),
		ch:        make(chan enqueueRequest, defaultEnqueueBuffer),
		done:      make(chan struct{}),
	}
}

// Start launches the publish loop.
func (p *AsyncPublisher) Start() {
	go p.run()
}

// Enqueue submits one confirmation message for a granted reservation.
func (p *AsyncPublisher) Enqueue(saleID, userID string, issuedAt time.Time) {
	select {
	case p.ch <- enqueueRequest{saleID: saleID, userID: userID, issuedAt: issuedAt}:
	default:
		p.logger.Error().
			Str("saleId", saleID).
			Str("userId", userID).
			Msg("enqueue buffer full, dropping confirmation message")
	}
}

// Close stops the loop after draining pending messages.
func (p *AsyncPublisher) Close() {
	close(p.ch)
	<-p.done
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for req := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), enqueuePublishTimeout)
		err := p.publisher.PublishReservation(ctx, req.saleID, req.userID, req.issuedAt)
		cancel()
		if err != nil {
			p.logger.Error().Err(err).
				Str("saleId", req.saleID).
				Str("userId", req.userID).
				Msg("failed to publish confirmation message")
			continue
		}
		p.logger.Debug().
			Str("saleId", req.saleID).
			Str("userId", req.userID).
			Msg("published confirmation message")
	}
}

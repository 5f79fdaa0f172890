package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const publishConfirmTimeout = 5 * time.Second

// Publisher pushes confirmation messages onto the purchase queue. The channel
// runs in confirm mode so a lost publish surfaces as an error instead of a
// silent drop.
type Publisher struct {
	conn          *amqp.Connection
	channel       *amqp.Channel
	notifyConfirm chan amqp.Confirmation
	topology      Topology
	logger        zerolog.Logger
}

func NewPublisher(url string, topology Topology, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, topology); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	p := &Publisher{
		conn:          conn,
		channel:       ch,
		notifyConfirm: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		topology:      topology,
		logger:        logger.With().Str("component", "queue_publisher").Logger(),
	}
	p.logger.Info().Str("queue", topology.Queue).Msg("connected to rabbitmq")
	return p, nil
}

// PublishReservation sends one message for a granted reservation and waits
// for the broker confirm.
func (p *Publisher) PublishReservation(ctx context.Context, saleID, userID string, issuedAt time.Time) error {
	body, err := json.Marshal(PurchaseMessage{SaleID: saleID, UserID: userID, Timestamp: issuedAt})
	if err != nil {
		return fmt.Errorf("marshal purchase message: %w", err)
	}

	err = p.channel.Publish("", p.topology.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    issuedAt,
	})
	if err != nil {
		return fmt.Errorf("publish purchase message: %w", err)
	}

	select {
	case confirm := <-p.notifyConfirm:
		if !confirm.Ack {
			return errors.New("publish not confirmed by broker")
		}
		return nil
	case <-time.After(publishConfirmTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Healthy reports whether the underlying connection is still open.
func (p *Publisher) Healthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *Publisher) Close() {
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
}

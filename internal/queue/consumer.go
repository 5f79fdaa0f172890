package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/tamtam29/flashsale-app/internal/app"
)

// Handler processes one confirmation message and decides its fate.
type Handler interface {
	Process(ctx context.Context, saleID, userID string, retryCount int) app.Decision
}

// Consumer drives the confirmation worker loop: manual acks, bounded
// prefetch, explicit retry-count header, dead-lettering through the queue's
// configured dead-letter routing.
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	topology Topology
	tag      string
	logger   zerolog.Logger
}

func NewConsumer(url string, topology Topology, tag string, prefetch int, logger zerolog.Logger) (*Consumer, error) {
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

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	c := &Consumer{
		conn:     conn,
		channel:  ch,
		topology: topology,
		tag:      tag,
		logger:   logger.With().Str("component", "queue_consumer").Logger(),
	}
	c.logger.Info().Str("queue", topology.Queue).Int("prefetch", prefetch).Msg("connected to rabbitmq")
	return c, nil
}

// Start consumes until the context is cancelled or the delivery channel
// closes. It blocks the caller.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	deliveries, err := c.channel.Consume(c.topology.Queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.logger.Info().Str("queue", c.topology.Queue).Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn().Msg("delivery channel closed, consumer stopping")
				return nil
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery, handler Handler) {
	var msg PurchaseMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.SaleID == "" || msg.UserID == "" {
		// Malformed messages can never succeed; send them straight to the
		// dead-letter queue.
		c.logger.Error().Err(err).Str("body", string(delivery.Body)).Msg("malformed message, dead-lettering")
		c.nackToDLQ(delivery)
		return
	}

	retryCount := retryCountFrom(delivery)
	decision := handler.Process(ctx, msg.SaleID, msg.UserID, retryCount)

	switch decision {
	case app.DecisionAck:
		if err := delivery.Ack(false); err != nil {
			c.logger.Error().Err(err).Msg("ack failed")
		}

	case app.DecisionRequeue:
		c.requeue(delivery, retryCount)

	case app.DecisionDeadLetter:
		c.nackToDLQ(delivery)
	}
}

// requeue republishes the body with the retry-count header incremented, then
// acks the original. Republishing keeps the ceiling under worker control
// instead of relying on broker redelivery counters. If the republish itself
// fails, the delivery is rejected to the dead-letter queue rather than looped.
func (c *Consumer) requeue(delivery amqp.Delivery, retryCount int) {
	err := c.channel.Publish("", c.topology.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         delivery.Body,
		Headers: amqp.Table{
			retryCountHeader: int32(retryCount + 1),
		},
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("requeue publish failed, dead-lettering original")
		c.nackToDLQ(delivery)
		return
	}

	c.logger.Warn().Int("retryCount", retryCount+1).Msg("message requeued")
	if err := delivery.Ack(false); err != nil {
		c.logger.Error().Err(err).Msg("ack after requeue failed")
	}
}

func (c *Consumer) nackToDLQ(delivery amqp.Delivery) {
	if err := delivery.Nack(false, false); err != nil {
		c.logger.Error().Err(err).Msg("nack failed")
	}
}

// retryCountFrom reads the explicit retry header; absent or mistyped reads
// as zero.
func retryCountFrom(delivery amqp.Delivery) int {
	raw, ok := delivery.Headers[retryCountHeader]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Healthy reports whether the underlying connection is still open.
func (c *Consumer) Healthy() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Consumer) Close() {
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}
}

package queue

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Topology names the confirmation queue pair.
type Topology struct {
	Queue string
	DLQ   string
}

// declare asserts the dead-letter queue first, then the main queue configured
// to route rejected messages to it via the default exchange.
func declare(ch *amqp.Channel, t Topology) error {
	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue %s: %w", t.DLQ, err)
	}

	_, err := ch.QueueDeclare(t.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.DLQ,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	return nil
}

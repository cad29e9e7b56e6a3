package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Domenick1991/carrental/internal/logger"
)

type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

func NewConsumer(url, queue string) (*Consumer, error) {
	conn, err := dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, channel: ch, queue: queue}, nil
}

// Consume acks handled deliveries and nacks failed ones without requeue, so a poison
// message is dropped instead of looping.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register rabbitmq consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			settle(ctx, d, handler)
		}
	}
}

func settle(ctx context.Context, d amqp.Delivery, handler func(context.Context, []byte) error) {
	if err := handler(ctx, d.Body); err != nil {
		logger.Error("rabbitmq message handler failed", "message_id", d.MessageId, "type", d.Type, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

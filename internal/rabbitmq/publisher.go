package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Domenick1991/carrental/internal/logger"
)

const dialAttempts = 10

// Publisher sends each message to the durable queue named after its topic, through the
// default exchange. Queues are declared on first use.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	mu       sync.Mutex
	declared map[string]bool
}

func NewPublisher(url string, queues ...string) (*Publisher, error) {
	conn, err := dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	p := &Publisher{conn: conn, channel: ch, declared: make(map[string]bool)}
	for _, queue := range queues {
		if err := p.ensureQueue(queue); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Publisher) ensureQueue(queue string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared[queue] {
		return nil
	}
	if err := declare(p.channel, queue); err != nil {
		return err
	}
	p.declared[queue] = true
	return nil
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.ensureQueue(topic); err != nil {
		return err
	}

	msg := amqp.Publishing{
		MessageId:     uuid.NewString(),
		CorrelationId: key,
		Type:          topic,
		ContentType:   "application/json",
		Timestamp:     time.Now(),
		Body:          body,
		DeliveryMode:  amqp.Persistent,
	}
	if err := p.channel.PublishWithContext(ctx, "", topic, false, false, msg); err != nil {
		return fmt.Errorf("publish to rabbitmq queue %s: %w", topic, err)
	}

	logger.Debug("published to rabbitmq", "queue", topic, "key", key)
	return nil
}

func (p *Publisher) PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error {
	return retry(ctx, maxRetries, retryDelay, func() error {
		return p.Publish(ctx, topic, key, payload)
	})
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(attempt) * 500 * time.Millisecond
}

// retry runs fn up to attempts times, sleeping delay(n) after the n-th failure.
func retry(ctx context.Context, attempts int, delay func(int) time.Duration, fn func() error) error {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		logger.Warn("rabbitmq publish attempt failed", "attempt", i, "error", lastErr)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay(i)):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// dial retries because the broker usually comes up after the service in compose setups.
func dial(url string) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("rabbitmq dial failed, retrying", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect to rabbitmq: %w", err)
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare rabbitmq queue %s: %w", queue, err)
	}
	return nil
}

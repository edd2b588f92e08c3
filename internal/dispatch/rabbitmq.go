package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrDeliveryClosed = errors.New("delivery channel closed")

// RabbitMQ publishes persistent messages to a durable queue on the default exchange.
type RabbitMQ struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     *zap.Logger
}

// NewRabbitMQ dials url and declares queue. It serves both publishing and
// consuming.
func NewRabbitMQ(url, queue string, log *zap.Logger) (*RabbitMQ, error) {
	const op = "dispatch.NewRabbitMQ"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RabbitMQ{conn: conn, channel: ch, queue: queue, log: log}, nil
}

func (r *RabbitMQ) Dispatch(ctx context.Context, imageID string) error {
	const op = "dispatch.RabbitMQ.Dispatch"

	body, err := Encode(imageID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.channel.PublishWithContext(ctx,
		"",      // exchange
		r.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Consume acks every delivery once handled; malformed bodies are dropped.
// A delivery channel closed by the broker is an error so the caller can
// restart; ctx ending is not.
func (r *RabbitMQ) Consume(ctx context.Context, h Handler) error {
	const op = "dispatch.RabbitMQ.Consume"

	r.mu.Lock()
	msgs, err := r.channel.ConsumeWithContext(ctx, r.queue, "", false, false, false, false, nil)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.deliver(ctx, msgs, h); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *RabbitMQ) deliver(ctx context.Context, msgs <-chan amqp.Delivery, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Error("delivery channel closed, consumer stopped", zap.String("queue", r.queue))
				return ErrDeliveryClosed
			}
			imageID, err := Decode(msg.Body)
			if err != nil {
				r.log.Warn("skipping message", zap.Error(err))
				_ = msg.Nack(false, false)
				continue
			}
			if err := h(ctx, imageID); err != nil {
				r.log.Error("error processing image", zap.String("image_id", imageID), zap.Error(err))
			}
			if err := msg.Ack(false); err != nil {
				r.log.Warn("ack failed", zap.String("image_id", imageID), zap.Error(err))
			}
		}
	}
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		r.log.Warn("error closing channel", zap.Error(err))
	}
	return r.conn.Close()
}

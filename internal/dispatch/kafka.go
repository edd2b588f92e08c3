package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *Kafka) Dispatch(ctx context.Context, imageID string) error {
	const op = "dispatch.Kafka.Dispatch"

	body, err := Encode(imageID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(imageID), Value: body}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

type KafkaConsumer struct {
	reader *kafka.Reader
	log    *zap.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, log *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		log: log,
	}
}

// Consume commits every message after the handler returns, failed or not.
func (c *KafkaConsumer) Consume(ctx context.Context, h Handler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Error("error reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		imageID, err := Decode(msg.Value)
		if err != nil {
			c.log.Warn("skipping message", zap.Error(err), zap.Int64("offset", msg.Offset))
			continue
		}
		if err := h(ctx, imageID); err != nil {
			c.log.Error("error processing image", zap.String("image_id", imageID), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

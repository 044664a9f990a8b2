package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Message = kafka.Message

type Consumer struct {
	reader *kafka.Reader
}

type ConsumerOption func(*kafka.ReaderConfig)

// FromLatest makes a new consumer group start at the end of each partition
// instead of replaying history.
func FromLatest() ConsumerOption {
	return func(cfg *kafka.ReaderConfig) {
		cfg.StartOffset = kafka.LastOffset
	}
}

func NewConsumer(brokers []string, groupID string, topics []string, opts ...ConsumerOption) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		GroupTopics:       topics,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Consumer{reader: kafka.NewReader(cfg)}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume blocks until ctx is done or handler fails.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, Message) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
}

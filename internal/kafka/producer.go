package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrEncode marks payloads that could not be serialized; retrying them is
// pointless.
var ErrEncode = errors.New("encode kafka payload")

// Producer publishes JSON events keyed by booking id.
type Producer struct {
	brokers []string
	writer  *kafka.Writer
	logger  *slog.Logger
	backoff time.Duration
}

type ProducerOption func(*Producer)

func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *Producer) {
		p.writer.BatchTimeout = d
	}
}

// WithRetryBackoff sets the base delay between PublishWithRetry attempts; the
// n-th retry waits n times this long.
func WithRetryBackoff(d time.Duration) ProducerOption {
	return func(p *Producer) {
		p.backoff = d
	}
}

func NewProducer(brokers []string, logger *slog.Logger, opts ...ProducerOption) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		logger:  logger,
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes payload as JSON. Messages for the same key land on the same
// partition, so events for one booking stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}

	p.logger.Debug("published", "topic", topic, "key", key, "bytes", len(data))
	return nil
}

// PublishWithRetry retries transport failures up to attempts times with a
// linear backoff. Encoding errors and a done ctx end it early.
func (p *Producer) PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, attempts int) error {
	var lastErr error
	for i := range max(attempts, 1) {
		lastErr = p.Publish(ctx, topic, key, payload)
		if lastErr == nil || errors.Is(lastErr, ErrEncode) {
			return lastErr
		}
		p.logger.Warn("publish attempt failed", "attempt", i+1, "topic", topic, "key", key, "err", lastErr)

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * p.backoff):
			}
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", topic, max(attempts, 1), lastErr)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckTopics dials the first broker and fails unless every named topic has
// at least one partition. Empty names are ignored.
func (p *Producer) CheckTopics(ctx context.Context, topics ...string) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka %s: %w", p.brokers[0], err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("read partitions: %w", err)
	}
	if missing := missingTopics(partitions, topics); len(missing) > 0 {
		return fmt.Errorf("kafka topics not found: %v", missing)
	}

	p.logger.Info("connected to kafka", "broker", p.brokers[0], "partitions", len(partitions))
	return nil
}

func missingTopics(partitions []kafka.Partition, topics []string) []string {
	var missing []string
	for _, topic := range topics {
		if topic == "" || slices.Contains(missing, topic) {
			continue
		}
		if !slices.ContainsFunc(partitions, func(p kafka.Partition) bool { return p.Topic == topic }) {
			missing = append(missing, topic)
		}
	}
	return missing
}

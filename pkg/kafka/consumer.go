// Package kafka carries the platform's JSON events over segmentio/kafka-go:
// documents to the storage nodes, query events to the analytics service and
// invalidations to the gateways' result caches.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/resilience"
)

// MessageHandler processes one message. A returned error is retried with
// backoff; after the last attempt the message is skipped and committed.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type consumerOptions struct {
	groupID     string
	startOffset int64
	retry       resilience.RetryConfig
}

type ConsumerOption func(*consumerOptions)

// WithGroupID overrides the configured consumer group. Every storage node
// uses its own group so that each one sees the whole ingest stream, and
// every gateway does the same for invalidations.
func WithGroupID(id string) ConsumerOption {
	return func(o *consumerOptions) { o.groupID = id }
}

// FromBeginning makes a new group start at the oldest retained message
// instead of the newest.
func FromBeginning() ConsumerOption {
	return func(o *consumerOptions) { o.startOffset = kafka.FirstOffset }
}

func WithHandlerRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(o *consumerOptions) { o.retry = cfg }
}

// Consumer reads a topic and hands every message to a MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{
		groupID:     cfg.ConsumerGroup,
		startOffset: kafka.LastOffset,
		retry:       resilience.RetryConfig{MaxAttempts: 3},
	}
	for _, opt := range opts {
		opt(&o)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     o.groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: o.startOffset,
	})
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   o.retry,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", o.groupID),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
		log.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

		err = resilience.Retry(ctx, "kafka message", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("skipping message after failed processing", "error", err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("failed to commit message", "error", err)
		}
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}

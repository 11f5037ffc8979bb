// Package kafka provides the producer and consumer used to stream training
// batches, backed by segmentio/kafka-go. Producers serialize values as JSON;
// consumers hand each message to a MessageHandler and commit it once handled.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/config"
)

// ErrPoisonMessage marks a message that can never be processed. The consumer
// logs and commits it instead of stopping.
var ErrPoisonMessage = errors.New("unprocessable message")

// Message is the part of a Kafka record handlers see.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// MessageHandler is invoked for each message. Returning an error wrapping
// ErrPoisonMessage skips the message; any other error stops the consumer
// without committing, so the message is redelivered after a restart.
type MessageHandler func(ctx context.Context, msg Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic as part of a consumer group.
type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer creates a Consumer for the configured training topic. A new
// group starts from the oldest retained message so no batch is skipped.
func NewConsumer(cfg config.KafkaConfig, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.TrainingTopic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, cfg.TrainingTopic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start runs the consume loop until ctx is cancelled, which returns nil, or
// a handler or commit fails, which returns the error.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			return fmt.Errorf("fetching message: %w", err)
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)

		err = c.handler(ctx, Message{Key: msg.Key, Value: msg.Value, Partition: msg.Partition, Offset: msg.Offset})
		switch {
		case err == nil:
		case errors.Is(err, ErrPoisonMessage):
			c.logger.Error("skipping unprocessable message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		case ctx.Err() != nil:
			c.logger.Info("consumer stopping mid-message", "offset", msg.Offset)
			return nil
		default:
			return fmt.Errorf("processing partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("committing partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T. Undecodable values are
// reported as ErrPoisonMessage.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("%w: decoding kafka message: %w", ErrPoisonMessage, err)
	}
	return result, nil
}

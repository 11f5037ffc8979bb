// Package publisher splits training strings into batches and publishes them
// to the training topic for the consumer to apply.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
)

const defaultBatchSize = 500

// EventPublisher is the part of kafka.Producer the publisher needs.
type EventPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher produces TrainingEvents for one model namespace. Events are
// keyed by namespace, so the batches of a namespace land on one partition
// and are trained in publish order.
type Publisher struct {
	producer  EventPublisher
	namespace string
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Publisher. A non-positive batchSize uses 500.
func New(producer EventPublisher, namespace string, batchSize int) *Publisher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Publisher{
		producer:  producer,
		namespace: namespace,
		batchSize: batchSize,
		logger:    logger.ForModel("training-publisher", namespace),
		now:       time.Now,
	}
}

// Publish sends strings as consecutive batches in a single write and
// returns the batch IDs in order.
func (p *Publisher) Publish(ctx context.Context, source string, strs []string) ([]string, error) {
	if len(strs) == 0 {
		return nil, nil
	}
	publishedAt := p.now().UTC()
	var (
		events []kafka.Event
		ids    []string
	)
	for start := 0; start < len(strs); start += p.batchSize {
		end := min(start+p.batchSize, len(strs))
		id := uuid.NewString()
		events = append(events, kafka.Event{
			Key: p.namespace,
			Value: ingestion.TrainingEvent{
				BatchID:     id,
				Namespace:   p.namespace,
				Strings:     strs[start:end],
				Source:      source,
				PublishedAt: publishedAt,
			},
		})
		ids = append(ids, id)
	}
	if err := p.producer.PublishBatch(ctx, events); err != nil {
		return nil, fmt.Errorf("publishing %d training batches: %w", len(events), err)
	}
	p.logger.Info("training batches published",
		"source", source,
		"strings", len(strs),
		"batches", len(events),
	)
	return ids, nil
}

// Package consumer applies training batches read from Kafka to a model.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/resilience"
)

// Model is the part of the autocompleter a consumer trains.
type Model interface {
	Namespace() string
	Train(ctx context.Context, strs []string) (indexer.Stats, error)
}

// CacheInvalidator drops cached query results after the model changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Options tunes HandleMessage. Zero values disable the corresponding
// behaviour.
type Options struct {
	Timeout time.Duration
	Metrics *metrics.Metrics
	Cache   CacheInvalidator
}

// TrainingConsumer wraps a Kafka consumer to drive streamed training.
type TrainingConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a TrainingConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *TrainingConsumer {
	return &TrainingConsumer{
		consumer: kafkaConsumer,
		logger:   logger.WithComponent("training-consumer"),
	}
}

// Start consumes until ctx is cancelled or a batch fails to train.
func (tc *TrainingConsumer) Start(ctx context.Context) error {
	tc.logger.Info("training consumer starting")
	return tc.consumer.Start(ctx)
}

// Close closes the underlying Kafka consumer.
func (tc *TrainingConsumer) Close() error {
	return tc.consumer.Close()
}

// HandleMessage returns a kafka.MessageHandler that trains model with each
// TrainingEvent. Events that cannot be decoded or that target another
// namespace are skipped. A failed or timed out training call stops the
// consumer so the batch is redelivered.
func HandleMessage(model Model, opts Options) kafka.MessageHandler {
	log := logger.ForModel("training-consumer", model.Namespace())
	return func(ctx context.Context, msg kafka.Message) error {
		event, err := kafka.DecodeJSON[ingestion.TrainingEvent](msg.Value)
		if err != nil {
			observe(opts.Metrics, "rejected", 0)
			return err
		}
		if event.Namespace != model.Namespace() {
			observe(opts.Metrics, "rejected", 0)
			return fmt.Errorf("%w: batch %s targets namespace %q", kafka.ErrPoisonMessage, event.BatchID, event.Namespace)
		}

		var stats indexer.Stats
		err = resilience.WithTimeout(ctx, opts.Timeout, "training batch "+event.BatchID, func(ctx context.Context) error {
			var err error
			stats, err = model.Train(ctx, event.Strings)
			return err
		})
		if err != nil {
			observe(opts.Metrics, "error", 0)
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error("training batch failed", "batch_id", event.BatchID, "error", err)
			return fmt.Errorf("training batch %s: %w", event.BatchID, err)
		}
		observe(opts.Metrics, "ok", len(event.Strings)-stats.Skipped)

		if opts.Cache != nil && stats.Phrases > 0 {
			if _, err := opts.Cache.Invalidate(ctx); err != nil {
				log.Warn("query cache not invalidated", "batch_id", event.BatchID, "error", err)
			}
		}
		log.Info("training batch applied",
			"batch_id", event.BatchID,
			"source", event.Source,
			"phrases", stats.Phrases,
			"new_phrases", stats.NewPhrases,
			"skipped", stats.Skipped,
			"new_tokens", stats.NewTokens,
			"lag_ms", time.Since(event.PublishedAt).Milliseconds(),
		)
		return nil
	}
}

func observe(m *metrics.Metrics, status string, trained int) {
	if m == nil {
		return
	}
	m.TrainingBatchesTotal.WithLabelValues("kafka", status).Inc()
	if trained > 0 {
		m.PhrasesTrainedTotal.Add(float64(trained))
	}
}

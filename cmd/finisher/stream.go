package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/autocompleter"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/finisher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
)

func createPublishCmd(a *app) *cobra.Command {
	var file, source string
	cmd := &cobra.Command{
		Use:   "publish [phrase...]",
		Short: "Publish phrases to the training topic for a consumer to learn",
		RunE: func(cmd *cobra.Command, args []string) error {
			strs, err := collectInput(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			if err := validator.ValidateTrainRequest(&ingestion.TrainRequest{Strings: strs}, 0); err != nil {
				return err
			}
			cfg := a.cfg
			producer := kafka.NewProducer(cfg.Kafka)
			defer producer.Close()

			ids, err := publisher.New(producer, cfg.Model.Namespace, cfg.Kafka.BatchSize).Publish(cmd.Context(), source, strs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d phrases in %d batches to %s\n", len(strs), len(ids), cfg.Kafka.TrainingTopic)
			for _, id := range ids {
				slog.Debug("batch published", "batch_id", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `phrases file (JSON array or one per line, "-" for stdin)`)
	cmd.Flags().StringVar(&source, "source", "cli", "source recorded on each training event")
	return cmd
}

func createConsumeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Train the model from batches on the training topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			m := metrics.New()
			return a.withModel(ctx, m, func(ac *autocompleter.AutoCompleter, store storage.Store) error {
				opts := consumer.Options{Timeout: cfg.Kafka.HandlerTimeout, Metrics: m}
				if redisClient, err := pkgredis.NewClient(cfg.Redis); err != nil {
					slog.Warn("redis unavailable, query cache will not be invalidated", "error", err)
				} else {
					defer redisClient.Close()
					opts.Cache = cache.New(redisClient, ac.Namespace(), cfg.Redis.CacheTTL)
				}

				tc := consumer.New(kafka.NewConsumer(cfg.Kafka, consumer.HandleMessage(ac, opts)))
				defer func() {
					if err := tc.Close(); err != nil {
						slog.Warn("closing consumer", "error", err)
					}
				}()

				if cfg.Metrics.Enabled {
					checker := health.NewChecker()
					checker.Register("store", storeCheck(store))
					shutdown := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
						"/health/live":  checker.LiveHandler(),
						"/health/ready": checker.ReadyHandler(),
					})
					defer shutdownWithin(cfg, "metrics", shutdown)
				}

				slog.Info("consuming training batches",
					"brokers", cfg.Kafka.Brokers,
					"topic", cfg.Kafka.TrainingTopic,
					"group", cfg.Kafka.ConsumerGroup,
					"namespace", ac.Namespace(),
				)
				return tc.Start(ctx)
			})
		},
	}
	return cmd
}

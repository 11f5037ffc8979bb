package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	ingesthandler "github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/autocompleter"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/finisher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/tracing"
)

const asyncTrainRoute = "/api/v1/train/async"

func createServeCmd(a *app) *cobra.Command {
	var noCache, async bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the model over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			m := metrics.New()
			return a.withModel(ctx, m, func(ac *autocompleter.AutoCompleter, store storage.Store) error {
				checker := health.NewChecker()
				checker.Register("store", storeCheck(store))

				var queryCache *cache.QueryCache
				if !noCache {
					redisClient, err := pkgredis.NewClient(cfg.Redis)
					if err != nil {
						slog.Warn("redis unavailable, query caching disabled", "error", err)
						checker.Register("cache", health.Static(health.StatusDegraded, "disabled"))
					} else {
						defer redisClient.Close()
						queryCache = cache.New(redisClient, ac.Namespace(), cfg.Redis.CacheTTL)
						checker.Register("cache", health.PingCheck(redisClient, false))
						slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
					}
				}

				mux := http.NewServeMux()
				handler.New(ac, queryCache, m, cfg.Server.MaxTrainBatch).Register(mux)
				routes := append([]string(nil), handler.Routes...)

				if async {
					producer := kafka.NewProducer(cfg.Kafka)
					defer producer.Close()
					pub := publisher.New(producer, ac.Namespace(), cfg.Kafka.BatchSize)
					mux.HandleFunc("POST "+asyncTrainRoute, ingesthandler.New(pub, cfg.Server.MaxTrainBatch).Enqueue)
					routes = append(routes, asyncTrainRoute)
					slog.Info("async training enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.TrainingTopic)
				}

				mux.HandleFunc("GET /health/live", checker.LiveHandler())
				mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

				var chain http.Handler = mux
				chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
				chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
				chain = middleware.Metrics(m, routes...)(chain)
				chain = tracing.Middleware(chain)
				chain = middleware.RequestID(chain)

				if cfg.Metrics.Enabled {
					shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
					defer shutdownWithin(cfg, "metrics", shutdownMetrics)
				}

				server := &http.Server{
					Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
					Handler:      chain,
					ReadTimeout:  cfg.Server.ReadTimeout,
					WriteTimeout: cfg.Server.WriteTimeout,
				}
				go func() {
					<-ctx.Done()
					slog.Info("shutdown signal received")
					shutdownWithin(cfg, "http", server.Shutdown)
				}()

				slog.Info("finisher listening",
					"addr", server.Addr,
					"backend", cfg.Storage.Backend,
					"namespace", ac.Namespace(),
				)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				slog.Info("finisher stopped")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "do not cache guess results in redis")
	cmd.Flags().BoolVar(&async, "async", false, "accept training batches on "+asyncTrainRoute+" and publish them to kafka")
	return cmd
}

// storeCheck pings networked backends. Stores without a connection are
// always up.
func storeCheck(store storage.Store) health.Check {
	if p, ok := store.(health.Pinger); ok {
		return health.PingCheck(p, true)
	}
	return health.Static(health.StatusUp, "in-process")
}

func shutdownWithin(cfg *config.Config, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Error("shutdown error", "server", name, "error", err)
	}
}

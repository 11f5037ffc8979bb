package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/autocompleter"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/finisher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage/memstore"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage/redisstore"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage/sqlstore"
)

var connectRetry = resilience.RetryConfig{MaxAttempts: 5}

// openStore connects the configured backend. Networked backends are retried
// with backoff while the connection is first established; m may be nil.
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		slog.Warn("using in-memory backend, the model is lost when the process exits")
		return memstore.New(), nil

	case config.BackendRedis:
		var client *pkgredis.Client
		err := resilience.Retry(ctx, "connect redis", connectRetry, func(context.Context) error {
			c, err := pkgredis.NewClient(cfg.Redis)
			client = c
			return err
		})
		if err != nil {
			return nil, err
		}
		var opts []redisstore.Option
		if cfg.Breaker.Enabled {
			opts = append(opts, redisstore.WithCircuitBreaker(newBreaker("redis-store", cfg.Breaker, m)))
		}
		slog.Info("redis backend connected", "addr", cfg.Redis.Addr, "breaker", cfg.Breaker.Enabled)
		return redisstore.New(client, opts...), nil

	case config.BackendPostgres:
		var db *sql.DB
		err := resilience.Retry(ctx, "connect postgres", connectRetry, func(ctx context.Context) error {
			d, err := postgres.Open(ctx, cfg.Postgres)
			db = d
			return err
		})
		if err != nil {
			return nil, err
		}
		s, err := sqlstore.New(ctx, db, sqlstore.Postgres, cfg.Storage.Table)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("postgres backend connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database, "table", cfg.Storage.Table)
		return s, nil

	case config.BackendSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.Storage.SQLitePath, cfg.Storage.Table)
		if err != nil {
			return nil, err
		}
		slog.Info("sqlite backend opened", "path", cfg.Storage.SQLitePath, "table", cfg.Storage.Table)
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func newBreaker(name string, cfg config.BreakerConfig, m *metrics.Metrics) *resilience.CircuitBreaker {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
	}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return resilience.NewCircuitBreaker(name, cbCfg)
}

func newModel(cfg *config.Config, store storage.Store) (*autocompleter.AutoCompleter, error) {
	return autocompleter.New(store,
		autocompleter.WithNamespace(cfg.Model.Namespace),
		autocompleter.WithMinNGramSize(cfg.Model.MinNGramSize),
		autocompleter.WithMaxEditDistance(cfg.Model.MaxEditDistance),
		autocompleter.WithPrefixLength(cfg.Model.PrefixLength),
		autocompleter.WithMaxResults(cfg.Model.MaxResults),
		autocompleter.WithGuessConcurrency(cfg.Model.GuessConcurrency),
	)
}

// withModel opens the store, builds the model, runs fn and closes the store.
func (a *app) withModel(ctx context.Context, m *metrics.Metrics, fn func(ac *autocompleter.AutoCompleter, store storage.Store) error) error {
	store, err := openStore(ctx, a.cfg, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}()
	ac, err := newModel(a.cfg, store)
	if err != nil {
		return err
	}
	return fn(ac, store)
}

// invalidateCache drops the query cache a running server keeps for the
// namespace, after the CLI changed a shared model. Redis being unreachable
// only means there is no cache to drop.
func (a *app) invalidateCache(ctx context.Context, namespace string) {
	if a.cfg.Storage.Backend == config.BackendMemory {
		return
	}
	client, err := pkgredis.NewClient(a.cfg.Redis)
	if err != nil {
		slog.Debug("redis unavailable, query cache not invalidated", "error", err)
		return
	}
	defer client.Close()
	if _, err := cache.New(client, namespace, a.cfg.Redis.CacheTTL).Invalidate(ctx); err != nil {
		slog.Warn("query cache not invalidated", "namespace", namespace, "error", err)
	}
}

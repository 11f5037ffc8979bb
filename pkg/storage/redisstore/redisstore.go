// Package redisstore persists model values in Redis. Each value is encoded
// with storage.Encode and written as a plain string key, so the layout is
// readable with redis-cli and shared by every process pointed at the same
// server.
package redisstore

import (
	"context"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
)

// Store is a storage.Store backed by a Redis client.
type Store struct {
	client  *redis.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCircuitBreaker routes every round trip through cb. While the circuit is
// open calls fail fast with errors.ErrBackendUnavailable.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Store) { s.breaker = cb }
}

// New wraps client. The Store takes ownership and closes it on Close.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: logger.WithComponent("redisstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) do(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

func (s *Store) Get(ctx context.Context, key string) (storage.Value, bool, error) {
	var (
		data []byte
		ok   bool
	)
	err := s.do(func() error {
		var err error
		data, ok, err = s.client.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, apperrors.Unavailable("get", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	v, err := storage.Decode(data)
	if err != nil {
		return nil, false, apperrors.Malformed(key, err)
	}
	return v, true, nil
}

// GetMany fetches keys with a single MGET.
func (s *Store) GetMany(ctx context.Context, keys []string) ([]storage.Value, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var raw [][]byte
	err := s.do(func() error {
		var err error
		raw, err = s.client.MGet(ctx, keys...)
		return err
	})
	if err != nil {
		return nil, apperrors.Unavailable("mget", keys[0], err)
	}
	out := make([]storage.Value, len(keys))
	for i, data := range raw {
		if data == nil {
			continue
		}
		v, err := storage.Decode(data)
		if err != nil {
			return nil, apperrors.Malformed(keys[i], err)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, value storage.Value) error {
	data, err := storage.Encode(value)
	if err != nil {
		return apperrors.Malformed(key, err)
	}
	if err := s.do(func() error { return s.client.Set(ctx, key, data, 0) }); err != nil {
		return apperrors.Unavailable("set", key, err)
	}
	return nil
}

// SetMany writes all entries in one pipeline. Redis may apply a prefix of the
// pipeline if the connection drops midway.
func (s *Store) SetMany(ctx context.Context, entries map[string]storage.Value) error {
	if len(entries) == 0 {
		return nil
	}
	encoded := make(map[string][]byte, len(entries))
	var first string
	for key, value := range entries {
		data, err := storage.Encode(value)
		if err != nil {
			return apperrors.Malformed(key, err)
		}
		encoded[key] = data
		if first == "" || key < first {
			first = key
		}
	}
	if err := s.do(func() error { return s.client.SetMany(ctx, encoded) }); err != nil {
		s.logger.Warn("pipeline write failed", "keys", len(entries), "error", err)
		return apperrors.Unavailable("pipeline set", first, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.do(func() error { return s.client.Del(ctx, keys...) }); err != nil {
		return apperrors.Unavailable("del", keys[0], err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.do(func() error {
		var err error
		ok, err = s.client.Exists(ctx, key)
		return err
	})
	if err != nil {
		return false, apperrors.Unavailable("exists", key, err)
	}
	return ok, nil
}

// Keys lists keys under prefix with SCAN. Keys written concurrently with the
// scan may or may not be returned.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.do(func() error {
		var err error
		keys, err = s.client.ScanPrefix(ctx, prefix)
		return err
	})
	if err != nil {
		return nil, apperrors.Unavailable("scan", prefix, err)
	}
	return keys, nil
}

// Ping checks connectivity without touching any key.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(func() error { return s.client.Ping(ctx) }); err != nil {
		return apperrors.Unavailable("ping", "", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

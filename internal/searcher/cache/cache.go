// Package cache memoizes guess results in Redis. Entries are
// scoped to a model namespace and dropped whenever that model is trained or
// busted.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/finisher/pkg/redis"
)

const keyPrefix = "fincache:"

// OpGuess keys guess results. Completion caches the guess over its
// corrected tokens under the same operation.
const OpGuess = "guess"

// QueryCache is a read-through cache in front of the guesser.
type QueryCache struct {
	client    *pkgredis.Client
	namespace string
	ttl       time.Duration
	group     singleflight.Group
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New returns a cache for the model namespace. A zero ttl keeps entries
// until the next invalidation.
func New(client *pkgredis.Client, namespace string, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger.ForModel("query-cache", namespace),
	}
}

// Get returns the cached result for op over terms. Any Redis or decoding
// failure is logged and reported as a miss.
func (c *QueryCache) Get(ctx context.Context, op string, terms []string) ([]ranker.ScoredPhrase, bool) {
	key := c.buildKey(op, terms)
	data, ok, err := c.client.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	var result []ranker.ScoredPhrase
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if result == nil {
		result = []ranker.ScoredPhrase{}
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "op", op, "key", key)
	return result, true
}

// Set stores result for op over terms.
func (c *QueryCache) Set(ctx context.Context, op string, terms []string, result []ranker.ScoredPhrase) {
	key := c.buildKey(op, terms)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and stores it.
// Concurrent misses for the same key share one computation. Errors from
// compute are returned and not cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	op string,
	terms []string,
	compute func() ([]ranker.ScoredPhrase, error),
) ([]ranker.ScoredPhrase, bool, error) {
	if result, ok := c.Get(ctx, op, terms); ok {
		return result, true, nil
	}
	key := c.buildKey(op, terms)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, op, terms, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.ScoredPhrase), false, nil
}

// Invalidate drops every cached entry of the namespace.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	pattern := pkgredis.EscapeGlob(keyPrefix+c.namespace+":") + "*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns the hit and miss counts since creation.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(op string, terms []string) string {
	hash := sha256.Sum256([]byte(normalizeTerms(terms)))
	return fmt.Sprintf("%s%s:%s:%x", keyPrefix, c.namespace, op, hash[:16])
}

// normalizeTerms reduces a query to the set of its tokens. Guessing counts
// distinct tokens without regard to order, so equal sets share an entry.
func normalizeTerms(terms []string) string {
	norm := tokenizer.Unique(tokenizer.Normalize(terms))
	sort.Strings(norm)
	return strings.Join(norm, "\x00")
}

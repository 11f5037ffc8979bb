// Package guesser reconstructs full training phrases from query tokens.
package guesser

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
)

const fetchChunkSize = 64

// Config bounds a guess.
type Config struct {
	MaxResults  int
	Concurrency int
}

// Guesser reads the prefix index, phrase index and phrase records of one
// namespace.
type Guesser struct {
	store  storage.Store
	keys   index.Keyspace
	cfg    Config
	logger *slog.Logger
}

// New returns a Guesser. A non-positive MaxResults means no cap.
func New(store storage.Store, keys index.Keyspace, cfg Config) *Guesser {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Guesser{
		store:  store,
		keys:   keys,
		cfg:    cfg,
		logger: logger.ForModel("guesser", keys.Namespace()),
	}
}

// Guess returns the phrases matching the most query tokens, best first.
// Each query token matches the tokens it is a prefix of, itself included.
// An empty query returns an empty result.
func (g *Guesser) Guess(ctx context.Context, tokens []string) ([]ranker.ScoredPhrase, error) {
	query := tokenizer.Unique(tokenizer.Normalize(tokens))
	if len(query) == 0 {
		return []ranker.ScoredPhrase{}, nil
	}

	expansions, err := g.expand(ctx, query)
	if err != nil {
		return nil, err
	}

	var realTokens []string
	expanded := make(map[string]struct{})
	for _, q := range query {
		for _, tok := range expansions[q] {
			if _, ok := expanded[tok]; !ok {
				expanded[tok] = struct{}{}
				realTokens = append(realTokens, tok)
			}
		}
	}
	postings, err := g.fetchSets(ctx, realTokens, g.keys.Postings)
	if err != nil {
		return nil, fmt.Errorf("reading phrase index: %w", err)
	}

	hits := make(map[string]int)
	for _, q := range query {
		matched := make(map[string]struct{})
		for _, tok := range expansions[q] {
			for _, id := range postings[tok] {
				matched[id] = struct{}{}
			}
		}
		for id := range matched {
			hits[id]++
		}
	}
	if len(hits) == 0 {
		return []ranker.ScoredPhrase{}, nil
	}

	ids := topTiers(hits, g.cfg.MaxResults)
	cands, err := g.candidates(ctx, ids, hits, expanded)
	if err != nil {
		return nil, err
	}
	ranked := ranker.Rank(cands, g.cfg.MaxResults)
	g.logger.Debug("guess ranked",
		"query_tokens", len(query),
		"expanded_tokens", len(realTokens),
		"matched_phrases", len(hits),
		"fetched_phrases", len(ids),
		"returned", len(ranked),
	)
	return ranked, nil
}

// expand maps each query token to the known tokens it is a prefix of.
func (g *Guesser) expand(ctx context.Context, query []string) (map[string][]string, error) {
	sets, err := g.fetchSets(ctx, query, g.keys.NGram)
	if err != nil {
		return nil, fmt.Errorf("reading prefix index: %w", err)
	}
	out := make(map[string][]string, len(query))
	for _, q := range query {
		out[q] = sets[q].Union(q)
	}
	return out, nil
}

// fetchSets reads one Set per name concurrently, in chunks.
func (g *Guesser) fetchSets(ctx context.Context, names []string, keyOf func(string) string) (map[string]storage.Set, error) {
	chunks := make([][]string, 0, len(names)/fetchChunkSize+1)
	for start := 0; start < len(names); start += fetchChunkSize {
		chunks = append(chunks, names[start:min(start+fetchChunkSize, len(names))])
	}
	results := make([][]storage.Set, len(chunks))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i, chunk := range chunks {
		eg.Go(func() error {
			keys := make([]string, len(chunk))
			for j, name := range chunk {
				keys[j] = keyOf(name)
			}
			vals, err := storage.GetMany(egCtx, g.store, keys)
			if err != nil {
				return err
			}
			sets := make([]storage.Set, len(chunk))
			for j := range chunk {
				set, err := storage.AsSet(keys[j], vals[j])
				if err != nil {
					return err
				}
				sets[j] = set
			}
			results[i] = sets
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]storage.Set, len(names))
	for i, chunk := range chunks {
		for j, name := range chunk {
			out[name] = results[i][j]
		}
	}
	return out, nil
}

// topTiers returns the ids in the highest hit tiers, taking whole tiers
// until at least limit ids are collected. Lower tiers cannot reach the
// result. A non-positive limit keeps every id.
func topTiers(hits map[string]int, limit int) []string {
	tiers := make(map[int][]string)
	for id, h := range hits {
		tiers[h] = append(tiers[h], id)
	}
	levels := make([]int, 0, len(tiers))
	for h := range tiers {
		levels = append(levels, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(levels)))

	var ids []string
	for _, h := range levels {
		ids = append(ids, tiers[h]...)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	sort.Strings(ids)
	return ids
}

func (g *Guesser) candidates(ctx context.Context, ids []string, hits map[string]int, expanded map[string]struct{}) ([]ranker.Candidate, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = g.keys.Phrase(id)
	}
	vals, err := storage.GetMany(ctx, g.store, keys)
	if err != nil {
		return nil, fmt.Errorf("reading phrase records: %w", err)
	}
	cands := make([]ranker.Candidate, 0, len(ids))
	for i, id := range ids {
		p, ok, err := storage.AsPhrase(keys[i], vals[i])
		if err != nil {
			return nil, err
		}
		if !ok {
			g.logger.Warn("phrase index references missing record", "phrase_id", id)
			continue
		}
		matched := make(map[string]struct{})
		for _, tok := range p.Tokens {
			if _, ok := expanded[tok]; ok {
				matched[tok] = struct{}{}
			}
		}
		cands = append(cands, ranker.Candidate{
			ID:      id,
			Text:    p.Text,
			Tokens:  p.Tokens,
			Seq:     p.Seq,
			Hits:    hits[id],
			Matched: matched,
		})
	}
	return cands, nil
}

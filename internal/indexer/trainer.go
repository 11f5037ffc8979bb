// Package indexer trains a model: it folds training strings into token
// frequencies, the phrase index, phrase records, and the prefix and deletion
// indexes used at query time, all under one namespace of a storage.Store.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
)

const deleteBatchSize = 1000

// Config controls what the trainer derives from each token.
type Config struct {
	MinNGramSize    int
	MaxEditDistance int
	// PrefixLength caps how many leading runes of a token feed the deletion
	// index. Zero indexes whole tokens.
	PrefixLength int
}

// Stats summarizes one Train call.
type Stats struct {
	Phrases     int
	NewPhrases  int
	Skipped     int
	Tokens      int
	NewTokens   int
	KeysWritten int
}

// Trainer writes training data into a store.
type Trainer struct {
	store  storage.Store
	keys   index.Keyspace
	cfg    Config
	logger *slog.Logger
}

// NewTrainer returns a Trainer for the namespace described by keys.
func NewTrainer(store storage.Store, keys index.Keyspace, cfg Config) *Trainer {
	if cfg.MinNGramSize < 1 {
		cfg.MinNGramSize = 1
	}
	if cfg.MaxEditDistance < 0 {
		cfg.MaxEditDistance = 0
	}
	if cfg.PrefixLength < 0 {
		cfg.PrefixLength = 0
	}
	return &Trainer{
		store:  store,
		keys:   keys,
		cfg:    cfg,
		logger: logger.ForModel("trainer", keys.Namespace()),
	}
}

// Train adds texts to the model. Every token occurrence increments that
// token's count, so training the same strings twice doubles their weight.
// Strings without tokens are skipped. The call reads existing state once,
// merges in memory and writes the result in one batch; it is not atomic
// across keys.
func (t *Trainer) Train(ctx context.Context, texts []string) (Stats, error) {
	start := time.Now()
	batch := index.NewBatch(t.cfg.MinNGramSize)
	for _, text := range texts {
		batch.AddPhrase(text)
	}
	stats := Stats{Skipped: batch.Skipped()}
	if batch.Empty() {
		return stats, nil
	}

	tokens := batch.Tokens()
	ngrams := batch.NGrams()
	phrases := batch.Phrases()
	stats.Phrases = len(phrases)
	stats.Tokens = len(tokens)

	keys := make([]string, 0, 2*len(tokens)+len(ngrams)+len(phrases)+1)
	for _, tok := range tokens {
		keys = append(keys, t.keys.Freq(tok), t.keys.Postings(tok))
	}
	for _, gram := range ngrams {
		keys = append(keys, t.keys.NGram(gram))
	}
	for _, p := range phrases {
		keys = append(keys, t.keys.Phrase(p.ID))
	}
	keys = append(keys, t.keys.Seq())

	existing, err := t.read(ctx, keys)
	if err != nil {
		return stats, err
	}

	writes := make(map[string]storage.Value, len(keys))
	var fresh []string
	for _, tok := range tokens {
		freqKey := t.keys.Freq(tok)
		count, err := storage.AsCount(freqKey, existing[freqKey])
		if err != nil {
			return stats, err
		}
		if count == 0 {
			fresh = append(fresh, tok)
		}
		writes[freqKey] = count + storage.Count(batch.Count(tok))

		postKey := t.keys.Postings(tok)
		ids, err := storage.AsSet(postKey, existing[postKey])
		if err != nil {
			return stats, err
		}
		writes[postKey] = ids.Union(batch.PostingsFor(tok)...)
	}
	stats.NewTokens = len(fresh)

	for _, gram := range ngrams {
		key := t.keys.NGram(gram)
		members, err := storage.AsSet(key, existing[key])
		if err != nil {
			return stats, err
		}
		writes[key] = members.Union(batch.TokensFor(gram)...)
	}

	seq, err := storage.AsCount(t.keys.Seq(), existing[t.keys.Seq()])
	if err != nil {
		return stats, err
	}
	for _, p := range phrases {
		key := t.keys.Phrase(p.ID)
		if _, ok, err := storage.AsPhrase(key, existing[key]); err != nil {
			return stats, err
		} else if ok {
			continue
		}
		seq++
		stats.NewPhrases++
		writes[key] = storage.Phrase{Text: p.Text, Tokens: p.Tokens, Seq: int64(seq)}
	}
	if stats.NewPhrases > 0 {
		writes[t.keys.Seq()] = seq
	}

	if err := t.mergeDeletions(ctx, fresh, writes); err != nil {
		return stats, err
	}

	// An abandoned call must not commit after its caller gave up on it.
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("training batch not written: %w", err)
	}
	if err := storage.SetMany(ctx, t.store, writes); err != nil {
		return stats, fmt.Errorf("writing training batch: %w", err)
	}
	stats.KeysWritten = len(writes)

	t.logger.Debug("training batch applied",
		"phrases", stats.Phrases,
		"new_phrases", stats.NewPhrases,
		"tokens", stats.Tokens,
		"new_tokens", stats.NewTokens,
		"keys_written", stats.KeysWritten,
		"duration", time.Since(start),
	)
	return stats, nil
}

// mergeDeletions adds first-seen tokens to the deletion sets of their
// variants. Known tokens are already present in theirs.
func (t *Trainer) mergeDeletions(ctx context.Context, fresh []string, writes map[string]storage.Value) error {
	if len(fresh) == 0 {
		return nil
	}
	additions := make(map[string][]string)
	for _, tok := range fresh {
		for _, variant := range index.Deletes(tok, t.cfg.MaxEditDistance, t.cfg.PrefixLength) {
			key := t.keys.Deletion(variant)
			additions[key] = append(additions[key], tok)
		}
	}
	keys := make([]string, 0, len(additions))
	for k := range additions {
		keys = append(keys, k)
	}
	existing, err := t.read(ctx, keys)
	if err != nil {
		return err
	}
	for key, toks := range additions {
		members, err := storage.AsSet(key, existing[key])
		if err != nil {
			return err
		}
		writes[key] = members.Union(toks...)
	}
	return nil
}

func (t *Trainer) read(ctx context.Context, keys []string) (map[string]storage.Value, error) {
	vals, err := storage.GetMany(ctx, t.store, keys)
	if err != nil {
		return nil, fmt.Errorf("reading model state: %w", err)
	}
	out := make(map[string]storage.Value, len(keys))
	for i, v := range vals {
		if v != nil {
			out[keys[i]] = v
		}
	}
	return out, nil
}

// Bust deletes every key of the namespace and returns how many were removed.
// Keys of other namespaces in the same store are untouched.
func (t *Trainer) Bust(ctx context.Context) (int, error) {
	keys, err := t.store.Keys(ctx, t.keys.Prefix())
	if err != nil {
		return 0, fmt.Errorf("listing namespace keys: %w", err)
	}
	removed := 0
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		if err := t.store.Delete(ctx, keys[start:end]...); err != nil {
			return removed, fmt.Errorf("deleting namespace keys: %w", err)
		}
		removed = end
	}
	t.logger.Info("model reset", "keys_removed", removed)
	return removed, nil
}

// Package autocompleter is the public entry point of finisher. An
// AutoCompleter binds a storage.Store and a model namespace and exposes
// training, spelling correction, phrase guessing and model reset. All state
// lives in the store, so any number of AutoCompleters in any number of
// processes can serve the same model through a shared backend.
package autocompleter

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/guesser"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/speller"
	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
)

// Defaults applied by New.
const (
	DefaultNamespace        = "finisher"
	DefaultMinNGramSize     = 3
	DefaultMaxEditDistance  = 2
	DefaultPrefixLength     = 7
	DefaultMaxResults       = 10
	DefaultGuessConcurrency = 8
)

// TrainStats summarizes one training call.
type TrainStats = indexer.Stats

// ScoredPhrase is a guessed phrase with its ranking signals.
type ScoredPhrase = ranker.ScoredPhrase

type options struct {
	namespace        string
	minNGramSize     int
	maxEditDistance  int
	prefixLength     int
	maxResults       int
	guessConcurrency int
}

// Option configures an AutoCompleter.
type Option func(*options)

// WithNamespace selects the model namespace. It must match [A-Za-z0-9_.-]+.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithMinNGramSize sets the shortest prefix indexed for completion. It
// applies to training; querying with a different value than the model was
// trained with only changes which prefixes are found.
func WithMinNGramSize(n int) Option {
	return func(o *options) { o.minNGramSize = n }
}

// WithMaxEditDistance sets how far the corrector searches. The deletion
// index is built with this distance at training time, so a model should be
// queried with the distance it was trained with.
func WithMaxEditDistance(d int) Option {
	return func(o *options) { o.maxEditDistance = d }
}

// WithPrefixLength sets how many leading runes of a token feed the deletion
// index. Longer tokens are corrected through their prefix, which keeps the
// index size per token constant. Zero indexes whole tokens. Like the edit
// distance it is fixed when a model is trained.
func WithPrefixLength(n int) Option {
	return func(o *options) { o.prefixLength = n }
}

// WithMaxResults caps the number of guessed phrases. Zero means no cap.
func WithMaxResults(n int) Option {
	return func(o *options) { o.maxResults = n }
}

// WithGuessConcurrency bounds concurrent index reads per guess.
func WithGuessConcurrency(n int) Option {
	return func(o *options) { o.guessConcurrency = n }
}

// AutoCompleter exposes the model operations over one namespace.
type AutoCompleter struct {
	store   storage.Store
	keys    index.Keyspace
	trainer *indexer.Trainer
	speller *speller.Speller
	guesser *guesser.Guesser
}

// New binds store to a namespace. The caller keeps ownership of store.
func New(store storage.Store, opts ...Option) (*AutoCompleter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", apperrors.ErrInvalidInput)
	}
	o := options{
		namespace:        DefaultNamespace,
		minNGramSize:     DefaultMinNGramSize,
		maxEditDistance:  DefaultMaxEditDistance,
		prefixLength:     DefaultPrefixLength,
		maxResults:       DefaultMaxResults,
		guessConcurrency: DefaultGuessConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.minNGramSize < 1 {
		return nil, fmt.Errorf("%w: min n-gram size %d", apperrors.ErrInvalidInput, o.minNGramSize)
	}
	if o.maxEditDistance < 0 {
		return nil, fmt.Errorf("%w: max edit distance %d", apperrors.ErrInvalidInput, o.maxEditDistance)
	}
	if o.prefixLength < 0 || (o.prefixLength > 0 && o.prefixLength <= o.maxEditDistance) {
		return nil, fmt.Errorf("%w: prefix length %d must be zero or above the edit distance", apperrors.ErrInvalidInput, o.prefixLength)
	}
	if o.maxResults < 0 {
		return nil, fmt.Errorf("%w: max results %d", apperrors.ErrInvalidInput, o.maxResults)
	}
	keys, err := index.NewKeyspace(o.namespace)
	if err != nil {
		return nil, err
	}
	return &AutoCompleter{
		store: store,
		keys:  keys,
		trainer: indexer.NewTrainer(store, keys, indexer.Config{
			MinNGramSize:    o.minNGramSize,
			MaxEditDistance: o.maxEditDistance,
			PrefixLength:    o.prefixLength,
		}),
		speller: speller.New(store, keys, o.maxEditDistance, o.prefixLength),
		guesser: guesser.New(store, keys, guesser.Config{
			MaxResults:  o.maxResults,
			Concurrency: o.guessConcurrency,
		}),
	}, nil
}

// Namespace returns the model namespace.
func (a *AutoCompleter) Namespace() string { return a.keys.Namespace() }

// TrainFromStrings adds strings to the model.
//
// Training is additive and not idempotent: every token occurrence increments
// its frequency, so training the same strings twice doubles their weight.
// When training incrementally, feed disjoint slices of the corpus.
func (a *AutoCompleter) TrainFromStrings(ctx context.Context, input []string) error {
	_, err := a.Train(ctx, input)
	return err
}

// Train is TrainFromStrings returning what was written.
func (a *AutoCompleter) Train(ctx context.Context, input []string) (TrainStats, error) {
	return a.trainer.Train(ctx, input)
}

// CorrectPhrase returns the tokens of phrase with every unknown token
// replaced by the most frequent known word within the maximum edit
// distance. Unknown words without such a neighbour pass through unchanged.
func (a *AutoCompleter) CorrectPhrase(ctx context.Context, phrase string) ([]string, error) {
	return a.speller.CorrectPhrase(ctx, phrase, speller.Strict)
}

// GuessFullStrings returns the stored phrases that best match tokens, best
// first. An empty token list yields an empty result.
func (a *AutoCompleter) GuessFullStrings(ctx context.Context, tokens []string) ([]string, error) {
	ranked, err := a.GuessScored(ctx, tokens)
	if err != nil {
		return nil, err
	}
	return texts(ranked), nil
}

// GuessScored is GuessFullStrings with scores.
func (a *AutoCompleter) GuessScored(ctx context.Context, tokens []string) ([]ScoredPhrase, error) {
	return a.guesser.Guess(ctx, tokens)
}

// Complete corrects a partially typed phrase and guesses full phrases from
// the result. Unlike CorrectPhrase, a token that is the beginning of a known
// word is kept as typed so it can be completed.
func (a *AutoCompleter) Complete(ctx context.Context, phrase string) ([]string, error) {
	tokens, err := a.CorrectPrefixes(ctx, phrase)
	if err != nil {
		return nil, err
	}
	return a.GuessFullStrings(ctx, tokens)
}

// CorrectPrefixes is CorrectPhrase for input that is still being typed: a
// token that begins a known word is returned unchanged.
func (a *AutoCompleter) CorrectPrefixes(ctx context.Context, phrase string) ([]string, error) {
	return a.speller.CorrectPhrase(ctx, phrase, speller.KeepPrefixes)
}

// BustCache deletes every key of the namespace, returning the model to the
// untrained state. Other namespaces in the same store are untouched.
func (a *AutoCompleter) BustCache(ctx context.Context) error {
	_, err := a.Bust(ctx)
	return err
}

// Bust is BustCache returning the number of keys removed.
func (a *AutoCompleter) Bust(ctx context.Context) (int, error) {
	return a.trainer.Bust(ctx)
}

// Frequency returns how often token occurred in training, after
// normalization. Unknown tokens have frequency zero.
func (a *AutoCompleter) Frequency(ctx context.Context, token string) (int64, error) {
	terms := tokenizer.Terms(token)
	if len(terms) != 1 {
		return 0, nil
	}
	key := a.keys.Freq(terms[0])
	v, _, err := a.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	c, err := storage.AsCount(key, v)
	return int64(c), err
}

func texts(ranked []ScoredPhrase) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Text
	}
	return out
}

// Package speller corrects query tokens against the trained vocabulary.
//
// Each token is corrected on its own. A known token is returned unchanged.
// Otherwise candidates are looked up in the deletion index, verified with
// Distance, and the most frequent word in the closest non-empty distance
// tier wins, ties going to the lexicographically smaller word. A token with
// no known word within the maximum distance passes through unchanged.
package speller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
)

// Mode selects which tokens are considered already correct.
type Mode int

const (
	// Strict keeps only tokens with a nonzero frequency.
	Strict Mode = iota
	// KeepPrefixes also keeps tokens that are an indexed prefix of a known
	// token, so a half-typed word survives correction and can be completed.
	KeepPrefixes
)

// Speller reads frequencies and the deletion index of one namespace.
type Speller struct {
	store   storage.Store
	keys    index.Keyspace
	maxDist int
	prefix  int
	logger  *slog.Logger
}

// New returns a Speller searching up to maxDist edits away. prefixLen must
// match the prefix length the deletion index was trained with.
func New(store storage.Store, keys index.Keyspace, maxDist, prefixLen int) *Speller {
	return &Speller{
		store:   store,
		keys:    keys,
		maxDist: maxDist,
		prefix:  prefixLen,
		logger:  logger.ForModel("speller", keys.Namespace()),
	}
}

// CorrectPhrase tokenizes phrase and corrects every token.
func (s *Speller) CorrectPhrase(ctx context.Context, phrase string, mode Mode) ([]string, error) {
	return s.Correct(ctx, tokenizer.Terms(phrase), mode)
}

// Correct returns one corrected token per input token, in order. Tokens are
// expected to be normalized already.
func (s *Speller) Correct(ctx context.Context, tokens []string, mode Mode) ([]string, error) {
	if len(tokens) == 0 {
		return []string{}, nil
	}
	distinct := tokenizer.Unique(tokens)

	known, err := s.knownTokens(ctx, distinct, mode)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for _, tok := range distinct {
		if !known[tok] {
			unknown = append(unknown, tok)
		}
	}
	replacements, err := s.bestCandidates(ctx, unknown)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if r, ok := replacements[tok]; ok {
			out[i] = r
			continue
		}
		out[i] = tok
	}
	if len(replacements) > 0 {
		s.logger.Debug("tokens corrected", "input", len(tokens), "replaced", len(replacements))
	}
	return out, nil
}

func (s *Speller) knownTokens(ctx context.Context, tokens []string, mode Mode) (map[string]bool, error) {
	keys := make([]string, 0, 2*len(tokens))
	for _, tok := range tokens {
		keys = append(keys, s.keys.Freq(tok))
	}
	if mode == KeepPrefixes {
		for _, tok := range tokens {
			keys = append(keys, s.keys.NGram(tok))
		}
	}
	vals, err := storage.GetMany(ctx, s.store, keys)
	if err != nil {
		return nil, fmt.Errorf("reading token frequencies: %w", err)
	}

	known := make(map[string]bool, len(tokens))
	for i, tok := range tokens {
		c, err := storage.AsCount(keys[i], vals[i])
		if err != nil {
			return nil, err
		}
		if c > 0 {
			known[tok] = true
		}
	}
	if mode == KeepPrefixes {
		for i, tok := range tokens {
			j := len(tokens) + i
			completions, err := storage.AsSet(keys[j], vals[j])
			if err != nil {
				return nil, err
			}
			if len(completions) > 0 {
				known[tok] = true
			}
		}
	}
	return known, nil
}

type candidate struct {
	word string
	dist int
}

// bestCandidates maps each token that has a correction to its replacement.
func (s *Speller) bestCandidates(ctx context.Context, tokens []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(tokens) == 0 || s.maxDist <= 0 {
		return out, nil
	}

	variantsOf := make(map[string][]string, len(tokens))
	var delKeys []string
	seenKey := make(map[string]struct{})
	for _, tok := range tokens {
		variants := index.Deletes(tok, s.maxDist, s.prefix)
		variantsOf[tok] = variants
		for _, v := range variants {
			key := s.keys.Deletion(v)
			if _, ok := seenKey[key]; ok {
				continue
			}
			seenKey[key] = struct{}{}
			delKeys = append(delKeys, key)
		}
	}
	delVals, err := storage.GetMany(ctx, s.store, delKeys)
	if err != nil {
		return nil, fmt.Errorf("reading deletion index: %w", err)
	}
	sets := make(map[string]storage.Set, len(delKeys))
	for i, key := range delKeys {
		set, err := storage.AsSet(key, delVals[i])
		if err != nil {
			return nil, err
		}
		sets[key] = set
	}

	candidates := make(map[string][]candidate, len(tokens))
	words := make(map[string]struct{})
	for _, tok := range tokens {
		checked := make(map[string]struct{})
		for _, v := range variantsOf[tok] {
			for _, word := range sets[s.keys.Deletion(v)] {
				if _, ok := checked[word]; ok {
					continue
				}
				checked[word] = struct{}{}
				if d, ok := Within(tok, word, s.maxDist); ok && d > 0 {
					candidates[tok] = append(candidates[tok], candidate{word: word, dist: d})
					words[word] = struct{}{}
				}
			}
		}
	}
	if len(words) == 0 {
		return out, nil
	}

	counts, err := s.counts(ctx, words)
	if err != nil {
		return nil, err
	}
	for tok, cands := range candidates {
		if best, ok := pick(cands, counts); ok {
			out[tok] = best
		}
	}
	return out, nil
}

func (s *Speller) counts(ctx context.Context, words map[string]struct{}) (map[string]storage.Count, error) {
	list := make([]string, 0, len(words))
	for w := range words {
		list = append(list, w)
	}
	sort.Strings(list)
	keys := make([]string, len(list))
	for i, w := range list {
		keys[i] = s.keys.Freq(w)
	}
	vals, err := storage.GetMany(ctx, s.store, keys)
	if err != nil {
		return nil, fmt.Errorf("reading candidate frequencies: %w", err)
	}
	out := make(map[string]storage.Count, len(list))
	for i, w := range list {
		c, err := storage.AsCount(keys[i], vals[i])
		if err != nil {
			return nil, err
		}
		out[w] = c
	}
	return out, nil
}

// pick chooses from the lowest distance tier that has a known word: highest
// count first, then the lexicographically smaller word.
func pick(cands []candidate, counts map[string]storage.Count) (string, bool) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if counts[a.word] != counts[b.word] {
			return counts[a.word] > counts[b.word]
		}
		return a.word < b.word
	})
	for _, c := range cands {
		if counts[c.word] > 0 {
			return c.word, true
		}
	}
	return "", false
}

package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/tokenizer"
)

// PhraseEntry is a phrase as first seen in a batch.
type PhraseEntry struct {
	ID     string
	Text   string
	Tokens []string
}

// Batch aggregates one training call in memory so the trainer can merge it
// into the store with a bounded number of round trips.
type Batch struct {
	minNGram int
	counts   map[string]int64
	postings map[string]map[string]struct{}
	ngrams   map[string]map[string]struct{}
	phrases  map[string]*PhraseEntry
	order    []string
	skipped  int
}

// NewBatch creates an empty Batch indexing prefixes of at least minNGram runes.
func NewBatch(minNGram int) *Batch {
	return &Batch{
		minNGram: minNGram,
		counts:   make(map[string]int64),
		postings: make(map[string]map[string]struct{}),
		ngrams:   make(map[string]map[string]struct{}),
		phrases:  make(map[string]*PhraseEntry),
	}
}

// AddPhrase tokenizes text and folds it into the batch. Every occurrence of a
// token counts once, including repeats within one phrase and repeats of the
// same phrase. It reports false for text without tokens, which is skipped.
func (b *Batch) AddPhrase(text string) bool {
	terms := tokenizer.Terms(text)
	if len(terms) == 0 {
		b.skipped++
		return false
	}
	id := PhraseID(text)
	if _, exists := b.phrases[id]; !exists {
		b.phrases[id] = &PhraseEntry{ID: id, Text: text, Tokens: terms}
		b.order = append(b.order, id)
	}
	for _, term := range terms {
		b.counts[term]++
	}
	for _, term := range tokenizer.Unique(terms) {
		addTo(b.postings, term, id)
		for _, gram := range NGrams(term, b.minNGram) {
			addTo(b.ngrams, gram, term)
		}
	}
	return true
}

func addTo(m map[string]map[string]struct{}, key, member string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[member] = struct{}{}
}

// Empty reports whether no phrase was added.
func (b *Batch) Empty() bool { return len(b.order) == 0 }

// Skipped returns the number of inputs that had no tokens.
func (b *Batch) Skipped() int { return b.skipped }

// Tokens returns the distinct tokens of the batch, sorted.
func (b *Batch) Tokens() []string { return sortedKeys(b.counts) }

// Count returns how often token occurred in the batch.
func (b *Batch) Count(token string) int64 { return b.counts[token] }

// PostingsFor returns the ids of batch phrases containing token, sorted.
func (b *Batch) PostingsFor(token string) []string { return sortedKeys(b.postings[token]) }

// NGrams returns the distinct prefixes of the batch, sorted.
func (b *Batch) NGrams() []string { return sortedKeys(b.ngrams) }

// TokensFor returns the batch tokens starting with prefix, sorted.
func (b *Batch) TokensFor(prefix string) []string { return sortedKeys(b.ngrams[prefix]) }

// Phrases returns the distinct phrases in first-seen order.
func (b *Batch) Phrases() []*PhraseEntry {
	out := make([]*PhraseEntry, len(b.order))
	for i, id := range b.order {
		out[i] = b.phrases[id]
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

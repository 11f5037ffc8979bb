// Package memstore is the in-process storage backend. Values are kept in
// their native shape inside a patricia trie, so prefix listing is a subtree
// walk rather than a scan of every key.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Store holds values for the lifetime of the process. Several models may
// share one Store as long as their namespaces differ.
type Store struct {
	mu   sync.RWMutex
	trie *patricia.Trie
	size int
}

// New creates an empty Store.
func New() *Store {
	return &Store{trie: patricia.NewTrie()}
}

func (s *Store) Get(_ context.Context, key string) (storage.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item := s.trie.Get(patricia.Prefix(key))
	if item == nil {
		return nil, false, nil
	}
	return storage.Clone(item.(storage.Value)), true, nil
}

func (s *Store) GetMany(_ context.Context, keys []string) ([]storage.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Value, len(keys))
	for i, key := range keys {
		if item := s.trie.Get(patricia.Prefix(key)); item != nil {
			out[i] = storage.Clone(item.(storage.Value))
		}
	}
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, value storage.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value)
	return nil
}

// SetMany applies all entries under one lock, so readers see either none or
// all of them. Nothing is applied once ctx is done.
func (s *Store) SetMany(ctx context.Context, entries map[string]storage.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range entries {
		s.put(key, value)
	}
	return nil
}

func (s *Store) put(key string, value storage.Value) {
	if s.trie.Insert(patricia.Prefix(key), storage.Clone(value)) {
		s.size++
		return
	}
	s.trie.Set(patricia.Prefix(key), storage.Clone(value))
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if s.trie.Delete(patricia.Prefix(key)) {
			s.size--
		}
	}
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trie.Match(patricia.Prefix(key)), nil
}

// Keys returns the keys under prefix in lexical order.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	err := s.trie.VisitSubtree(patricia.Prefix(prefix), func(p patricia.Prefix, _ patricia.Item) error {
		keys = append(keys, string(p))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) Close() error {
	return nil
}

// Package storage defines the key-value port that model state is persisted
// through, the closed set of value shapes it carries, and helpers that use
// optional batch capabilities when a backend offers them.
package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
)

// Store is the capability set every backend implements. Get on a missing key
// returns ok=false and a nil error. Failures to reach the backend wrap
// errors.ErrBackendUnavailable.
type Store interface {
	Get(ctx context.Context, key string) (Value, bool, error)
	Set(ctx context.Context, key string, value Value) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// BatchGetter is implemented by backends that can fetch many keys in one
// round trip. Missing keys are nil in the result.
type BatchGetter interface {
	GetMany(ctx context.Context, keys []string) ([]Value, error)
}

// BatchSetter is implemented by backends that can write many keys in one
// round trip.
type BatchSetter interface {
	SetMany(ctx context.Context, entries map[string]Value) error
}

// Kind identifies a value shape.
type Kind uint8

const (
	KindCount Kind = iota + 1
	KindSet
	KindPhrase
)

func (k Kind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindSet:
		return "set"
	case KindPhrase:
		return "phrase"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one of Count, Set or Phrase.
type Value interface {
	Kind() Kind
	clone() Value
}

// Count is a non-negative occurrence counter.
type Count int64

func (Count) Kind() Kind     { return KindCount }
func (c Count) clone() Value { return c }

// Set is a sorted collection of unique strings.
type Set []string

func (Set) Kind() Kind     { return KindSet }
func (s Set) clone() Value { return slices.Clone(s) }

// NewSet builds a normalized Set from members in any order.
func NewSet(members ...string) Set {
	out := slices.Clone(members)
	sort.Strings(out)
	return Set(slices.Compact(out))
}

// Contains reports whether member is in s.
func (s Set) Contains(member string) bool {
	_, found := slices.BinarySearch(s, member)
	return found
}

// Union returns a new Set holding the members of s and others.
func (s Set) Union(others ...string) Set {
	merged := make([]string, 0, len(s)+len(others))
	merged = append(merged, s...)
	merged = append(merged, others...)
	return NewSet(merged...)
}

// Phrase is a verbatim training string with its normalized tokens and the
// sequence number it was first inserted with.
type Phrase struct {
	Text   string   `msgpack:"t"`
	Tokens []string `msgpack:"k"`
	Seq    int64    `msgpack:"q"`
}

func (Phrase) Kind() Kind { return KindPhrase }

func (p Phrase) clone() Value {
	p.Tokens = slices.Clone(p.Tokens)
	return p
}

// Clone returns a deep copy of v, or nil for nil. Backends that hold native
// values use it so callers never alias stored data.
func Clone(v Value) Value {
	if v == nil {
		return nil
	}
	return v.clone()
}

// Equal reports whether two values have the same kind and contents.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Count:
		bv, ok := b.(Count)
		return ok && av == bv
	case Set:
		bv, ok := b.(Set)
		return ok && slices.Equal(av, bv)
	case Phrase:
		bv, ok := b.(Phrase)
		return ok && av.Text == bv.Text && av.Seq == bv.Seq && slices.Equal(av.Tokens, bv.Tokens)
	}
	return false
}

// GetMany fetches keys through BatchGetter when available and falls back to
// one Get per key otherwise.
func GetMany(ctx context.Context, s Store, keys []string) ([]Value, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if bg, ok := s.(BatchGetter); ok {
		return bg.GetMany(ctx, keys)
	}
	out := make([]Value, len(keys))
	for i, key := range keys {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

// SetMany writes entries through BatchSetter when available and falls back to
// one Set per key otherwise. Keys are written in sorted order in the fallback
// so partial failures are reproducible.
func SetMany(ctx context.Context, s Store, entries map[string]Value) error {
	if len(entries) == 0 {
		return nil
	}
	if bs, ok := s.(BatchSetter); ok {
		return bs.SetMany(ctx, entries)
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.Set(ctx, k, entries[k]); err != nil {
			return err
		}
	}
	return nil
}

// AsCount converts v to a Count. A nil value is zero; any other kind is a
// malformed value.
func AsCount(key string, v Value) (Count, error) {
	switch c := v.(type) {
	case nil:
		return 0, nil
	case Count:
		return c, nil
	default:
		return 0, apperrors.Malformed(key, fmt.Errorf("expected %s, found %s", KindCount, v.Kind()))
	}
}

// AsSet converts v to a Set. A nil value is the empty set.
func AsSet(key string, v Value) (Set, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case Set:
		return s, nil
	default:
		return nil, apperrors.Malformed(key, fmt.Errorf("expected %s, found %s", KindSet, v.Kind()))
	}
}

// AsPhrase converts v to a Phrase. ok is false for a nil value.
func AsPhrase(key string, v Value) (p Phrase, ok bool, err error) {
	switch pv := v.(type) {
	case nil:
		return Phrase{}, false, nil
	case Phrase:
		return pv, true, nil
	default:
		return Phrase{}, false, apperrors.Malformed(key, fmt.Errorf("expected %s, found %s", KindPhrase, v.Kind()))
	}
}

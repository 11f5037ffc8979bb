// Package index defines how a trained model is laid out in a storage.Store:
// the key schema of a namespace, the in-memory aggregation of one training
// call, and the derived keys (phrase ids, prefixes, deletion variants) that
// training and lookup agree on.
package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
)

const (
	freqSegment     = "freq"
	postingSegment  = "idx"
	phraseSegment   = "phrase"
	prefixSegment   = "pfx"
	deletionSegment = "del"
	seqKey          = "meta:seq"
)

// Keyspace builds the keys of one model namespace.
type Keyspace struct {
	ns string
}

// NewKeyspace validates ns and returns its Keyspace.
func NewKeyspace(ns string) (Keyspace, error) {
	if !config.ValidNamespace(ns) {
		return Keyspace{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidNamespace, ns)
	}
	return Keyspace{ns: ns}, nil
}

// Namespace returns the bare namespace name.
func (k Keyspace) Namespace() string { return k.ns }

// Prefix is the common prefix of every key in the namespace.
func (k Keyspace) Prefix() string { return k.ns + ":" }

// Freq is the key of a token's occurrence count.
func (k Keyspace) Freq(token string) string { return k.key(freqSegment, token) }

// Postings is the key of the set of phrase ids containing token.
func (k Keyspace) Postings(token string) string { return k.key(postingSegment, token) }

// Phrase is the key of a stored phrase record.
func (k Keyspace) Phrase(id string) string { return k.key(phraseSegment, id) }

// NGram is the key of the set of tokens starting with prefix.
func (k Keyspace) NGram(prefix string) string { return k.key(prefixSegment, prefix) }

// Deletion is the key of the set of tokens that reduce to variant.
func (k Keyspace) Deletion(variant string) string { return k.key(deletionSegment, variant) }

// Seq is the key of the last assigned phrase sequence number.
func (k Keyspace) Seq() string { return k.ns + ":" + seqKey }

func (k Keyspace) key(segment, suffix string) string {
	return k.ns + ":" + segment + ":" + suffix
}

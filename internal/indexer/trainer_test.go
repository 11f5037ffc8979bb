package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/finisher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage/memstore"
)

var corpus = []string{"big lebowski (usa)", "big 3", "bigger than big (sumo mack)"}

func newTrainer(t *testing.T, store storage.Store, ns string) (*Trainer, index.Keyspace) {
	t.Helper()
	keys, err := index.NewKeyspace(ns)
	if err != nil {
		t.Fatal(err)
	}
	return NewTrainer(store, keys, Config{MinNGramSize: 3, MaxEditDistance: 2}), keys
}

func count(t *testing.T, s storage.Store, key string) storage.Count {
	t.Helper()
	v, _, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	c, err := storage.AsCount(key, v)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestTrainDeletionIndexBoundedByPrefix(t *testing.T) {
	ctx := context.Background()
	keys, err := index.NewKeyspace("long")
	if err != nil {
		t.Fatal(err)
	}
	word := strings.Repeat("abcdefghij", 40)

	capped := memstore.New()
	stats, err := NewTrainer(capped, keys, Config{MinNGramSize: 3, MaxEditDistance: 2, PrefixLength: 7}).Train(ctx, []string{"hello " + word})
	if err != nil {
		t.Fatal(err)
	}
	// n-gram keys grow linearly with the token; deletion keys must not.
	if stats.KeysWritten > 2*len(word) {
		t.Errorf("capped training wrote %d keys for a %d-rune token", stats.KeysWritten, len(word))
	}
	v, ok, err := capped.Get(ctx, keys.Deletion("bcdefg"))
	if err != nil || !ok {
		t.Fatalf("deletion of prefix missing: %v", err)
	}
	if set, _ := storage.AsSet(keys.Deletion("bcdefg"), v); !set.Contains(word) {
		t.Errorf("del(bcdefg) = %v, want it to hold the full token", set)
	}

	uncapped := memstore.New()
	full, err := NewTrainer(uncapped, keys, Config{MinNGramSize: 3, MaxEditDistance: 2}).Train(ctx, []string{"hello " + word})
	if err != nil {
		t.Fatal(err)
	}
	if full.KeysWritten <= 10*stats.KeysWritten {
		t.Errorf("uncapped wrote %d keys, capped %d", full.KeysWritten, stats.KeysWritten)
	}
}

// stallingStore holds reads until the caller's context is done, like a slow
// backend that outlives a training timeout.
type stallingStore struct{ *memstore.Store }

func (s stallingStore) GetMany(ctx context.Context, keys []string) ([]storage.Value, error) {
	<-ctx.Done()
	return s.Store.GetMany(context.Background(), keys)
}

func TestTrainDoesNotCommitAfterDeadline(t *testing.T) {
	mem := memstore.New()
	keys, err := index.NewKeyspace("late")
	if err != nil {
		t.Fatal(err)
	}
	tr := NewTrainer(stallingStore{mem}, keys, Config{MinNGramSize: 3, MaxEditDistance: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tr.Train(ctx, corpus); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if n := mem.Len(); n != 0 {
		t.Errorf("%d keys written after the deadline", n)
	}
}

func TestTrainWritesModel(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tr, keys := newTrainer(t, store, "m")

	stats, err := tr.Train(ctx, corpus)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Phrases != 3 || stats.NewPhrases != 3 || stats.Skipped != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if got := count(t, store, keys.Freq("big")); got != 3 {
		t.Errorf("freq(big) = %d, want 3", got)
	}
	if got := count(t, store, keys.Freq("lebowski")); got != 1 {
		t.Errorf("freq(lebowski) = %d, want 1", got)
	}

	v, ok, err := store.Get(ctx, keys.Postings("big"))
	if err != nil || !ok {
		t.Fatalf("postings(big) missing: %v", err)
	}
	if ids := v.(storage.Set); len(ids) != 3 {
		t.Errorf("postings(big) = %v", ids)
	}

	v, ok, _ = store.Get(ctx, keys.Phrase(index.PhraseID("big lebowski (usa)")))
	if !ok {
		t.Fatal("phrase record missing")
	}
	p := v.(storage.Phrase)
	if p.Text != "big lebowski (usa)" || p.Seq != 1 {
		t.Errorf("phrase = %+v", p)
	}

	v, _, _ = store.Get(ctx, keys.NGram("big"))
	if got := v.(storage.Set); !got.Contains("big") || !got.Contains("bigger") {
		t.Errorf("pfx(big) = %v", got)
	}
	v, _, _ = store.Get(ctx, keys.Deletion("lbowsk"))
	if got, _ := v.(storage.Set); !got.Contains("lebowski") {
		t.Errorf("del(lbowsk) = %v", got)
	}
	if got := count(t, store, keys.Seq()); got != 3 {
		t.Errorf("seq = %d, want 3", got)
	}
}

func TestTrainIsAdditive(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tr, keys := newTrainer(t, store, "m")

	if _, err := tr.Train(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	once := map[string]storage.Count{}
	for _, tok := range []string{"big", "lebowski", "usa", "bigger", "than", "sumo", "mack"} {
		once[tok] = count(t, store, keys.Freq(tok))
	}
	stats, err := tr.Train(ctx, corpus)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NewPhrases != 0 || stats.NewTokens != 0 {
		t.Errorf("retraining created records: %+v", stats)
	}
	for tok, c := range once {
		if got := count(t, store, keys.Freq(tok)); got != 2*c {
			t.Errorf("freq(%s) = %d after retrain, want %d", tok, got, 2*c)
		}
	}
	v, _, _ := store.Get(ctx, keys.Phrase(index.PhraseID("big 3")))
	if p := v.(storage.Phrase); p.Seq != 2 {
		t.Errorf("retraining changed sequence to %d", p.Seq)
	}
}

func TestTrainSkipsEmptyInput(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tr, _ := newTrainer(t, store, "m")
	stats, err := tr.Train(ctx, []string{"", "123", "!!!"})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 3 || stats.KeysWritten != 0 || store.Len() != 0 {
		t.Errorf("stats = %+v, len = %d", stats, store.Len())
	}
	if _, err := tr.Train(ctx, nil); err != nil {
		t.Fatal(err)
	}
}

func TestTrainRejectsWrongKind(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	tr, keys := newTrainer(t, store, "m")
	if err := store.Set(ctx, keys.Freq("big"), storage.NewSet("oops")); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Train(ctx, corpus); !errors.Is(err, apperrors.ErrMalformedValue) {
		t.Fatalf("expected ErrMalformedValue, got %v", err)
	}
}

func TestBustIsNamespaced(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a, aKeys := newTrainer(t, store, "a")
	b, bKeys := newTrainer(t, store, "a.b")
	if _, err := a.Train(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Train(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	removed, err := a.Bust(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed == 0 {
		t.Error("Bust removed nothing")
	}
	left, _ := store.Keys(ctx, aKeys.Prefix())
	if len(left) != 0 {
		t.Errorf("keys left in namespace: %v", left)
	}
	if got := count(t, store, bKeys.Freq("big")); got != 3 {
		t.Errorf("other namespace freq(big) = %d, want 3", got)
	}
}

// Package benchmark measures training, correction and guessing throughput
// against the in-memory store.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/finisher/internal/searcher/speller"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/autocompleter"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage/memstore"
)

var (
	adjectives = []string{"big", "bigger", "little", "quiet", "loud", "dark", "bright", "lost", "last", "first"}
	nouns      = []string{"lebowski", "fish", "city", "river", "mountain", "house", "story", "night", "road", "garden"}
	suffixes   = []string{"(usa)", "(uk)", "returns", "reloaded", "part ii", "the musical", "2", "redux"}
)

// corpus returns n distinct synthetic titles.
func corpus(n int) []string {
	out := make([]string, 0, n)
	for i := 0; len(out) < n; i++ {
		a := adjectives[i%len(adjectives)]
		noun := nouns[(i/len(adjectives))%len(nouns)]
		s := suffixes[(i/(len(adjectives)*len(nouns)))%len(suffixes)]
		out = append(out, fmt.Sprintf("the %s %s %s %d", a, noun, s, i))
	}
	return out
}

func trained(b *testing.B, n int) *autocompleter.AutoCompleter {
	b.Helper()
	ac, err := autocompleter.New(memstore.New())
	if err != nil {
		b.Fatal(err)
	}
	if err := ac.TrainFromStrings(context.Background(), corpus(n)); err != nil {
		b.Fatal(err)
	}
	return ac
}

// BenchmarkTrain measures training a fresh model with batches of varying
// size.
func BenchmarkTrain(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		texts := corpus(size)
		b.Run(fmt.Sprintf("phrases_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				ac, err := autocompleter.New(memstore.New())
				if err != nil {
					b.Fatal(err)
				}
				if err := ac.TrainFromStrings(context.Background(), texts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDistance(b *testing.B) {
	pairs := []struct{ a, b string }{
		{"lebowski", "lebewski"},
		{"mack", "mak"},
		{"internationalization", "internationalisation"},
	}
	for _, p := range pairs {
		b.Run(p.a, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = speller.Distance(p.a, p.b)
			}
		})
	}
}

func BenchmarkCorrectPhrase(b *testing.B) {
	ac := trained(b, 2000)
	ctx := context.Background()
	queries := map[string]string{
		"known":    "the big lebowski",
		"one_edit": "the bgi lebowsky",
		"unknown":  "zzzzzz qqqqqq",
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := ac.CorrectPhrase(ctx, q); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkGuessFullStrings(b *testing.B) {
	ac := trained(b, 2000)
	ctx := context.Background()
	queries := map[string][]string{
		"selective": {"lebowski", "redux"},
		"prefix":    {"big", "riv"},
		"broad":     {"the"},
	}
	for name, tokens := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := ac.GuessFullStrings(ctx, tokens); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCompleteParallel(b *testing.B) {
	ac := trained(b, 2000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := ac.Complete(ctx, "the quiet mountian ret"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

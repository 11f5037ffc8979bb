// Package ranker orders candidate phrases for a guess.
package ranker

import (
	"math"
	"sort"
	"unicode/utf8"
)

// Candidate is a stored phrase that matched at least one query token.
type Candidate struct {
	ID     string
	Text   string
	Tokens []string
	Seq    int64
	// Hits is the number of distinct query tokens the phrase matched.
	Hits int
	// Matched holds the phrase tokens that some query token expanded to.
	Matched map[string]struct{}
}

// ScoredPhrase is a ranked guess.
type ScoredPhrase struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Score    int     `json:"score"`
	Coverage float64 `json:"coverage"`
	Seq      int64   `json:"seq"`
}

// Rank orders candidates by query tokens matched, then by how much of the
// phrase the matched tokens cover, then by insertion order, then by text.
// Candidates without hits are dropped. A positive limit truncates the result.
func Rank(cands []Candidate, limit int) []ScoredPhrase {
	result := make([]ScoredPhrase, 0, len(cands))
	for _, c := range cands {
		if c.Hits <= 0 {
			continue
		}
		result = append(result, ScoredPhrase{
			ID:       c.ID,
			Text:     c.Text,
			Score:    c.Hits,
			Coverage: math.Round(Coverage(c.Tokens, c.Matched)*10000) / 10000,
			Seq:      c.Seq,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Coverage != b.Coverage {
			return a.Coverage > b.Coverage
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.Text < b.Text
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Coverage is the share of the phrase's token characters that belong to
// matched tokens, in [0, 1].
func Coverage(tokens []string, matched map[string]struct{}) float64 {
	var total, hit int
	for _, tok := range tokens {
		n := utf8.RuneCountInString(tok)
		total += n
		if _, ok := matched[tok]; ok {
			hit += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hit) / float64(total)
}

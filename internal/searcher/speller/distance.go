package speller

import "github.com/hbollon/go-edlib"

// Distance returns the unrestricted Damerau-Levenshtein distance between a
// and b over runes. A transposed pair may be edited again, so "ca" to "abc"
// is 2 where the optimal string alignment variant gives 3.
func Distance(a, b string) int {
	return edlib.DamerauLevenshteinDistance(a, b)
}

// Within reports whether a and b are at most limit edits apart, skipping
// the full computation when their lengths already differ by more.
func Within(a, b string, limit int) (int, bool) {
	la, lb := len([]rune(a)), len([]rune(b))
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > limit {
		return diff, false
	}
	d := Distance(a, b)
	return d, d <= limit
}

package index

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// PhraseID identifies a verbatim training string. Identical strings share an
// id, so retraining a phrase updates one record.
func PhraseID(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", hash[:16])
}

// NGrams returns the prefixes of token that are indexed for completion: every
// prefix of at least minSize runes up to the token itself. A token shorter
// than minSize is its own only prefix.
func NGrams(token string, minSize int) []string {
	runes := []rune(token)
	if len(runes) < minSize {
		return []string{token}
	}
	out := make([]string, 0, len(runes)-minSize+1)
	for n := minSize; n <= len(runes); n++ {
		out = append(out, string(runes[:n]))
	}
	return out
}

// Deletes returns token and every distinct string obtained by deleting up to
// maxDist runes from it, sorted. When prefixLen is positive only the first
// prefixLen runes of token are used, which bounds the variants of a long
// token to those of its prefix. The empty string is a valid variant of any
// token no longer than maxDist. Two words within Damerau-Levenshtein
// distance d of each other share a variant with at most d deletions from
// each side, so a candidate found this way still needs verifying.
func Deletes(token string, maxDist, prefixLen int) []string {
	if prefixLen > 0 {
		if runes := []rune(token); len(runes) > prefixLen {
			token = string(runes[:prefixLen])
		}
	}
	seen := map[string]struct{}{token: {}}
	frontier := []string{token}
	for d := 0; d < maxDist; d++ {
		var next []string
		for _, word := range frontier {
			runes := []rune(word)
			for i := range runes {
				variant := string(runes[:i]) + string(runes[i+1:])
				if _, ok := seen[variant]; ok {
					continue
				}
				seen[variant] = struct{}{}
				next = append(next, variant)
			}
		}
		frontier = next
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

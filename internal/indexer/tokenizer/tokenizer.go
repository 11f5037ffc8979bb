// Package tokenizer normalizes phrases into tokens for training and queries.
// It lower-cases input, splits on every rune that is not a letter or digit,
// and drops tokens without alphabetic content. Digit-only tokens such as the
// "3" of "big 3" are therefore never indexed, and guessing with ["3"] alone
// finds nothing; mixed tokens like "r2d2" are kept. There is no stemming and
// no stop-word list: every word of a phrase is significant for completion.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token is a single normalized term and its position among the kept tokens
// of the original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lower-cased Tokens in input order.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if !hasLetter(word) {
			continue
		}
		tokens = append(tokens, Token{Term: word, Position: len(tokens)})
	}
	return tokens
}

// Terms is Tokenize without positions.
func Terms(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// Normalize applies the tokenizer rules to terms that were split by the
// caller, so "Big," and "big" name the same token. A term may expand to
// several tokens or to none.
func Normalize(terms []string) []string {
	var out []string
	for _, term := range terms {
		out = append(out, Terms(term)...)
	}
	return out
}

// Unique returns terms without duplicates, keeping first-seen order.
func Unique(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func hasLetter(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

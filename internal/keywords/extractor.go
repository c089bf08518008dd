// Package keywords extracts weighted keywords and short phrases from article text.
package keywords

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultLimit is how many keywords Extract returns when no limit is given.
	DefaultLimit = 15
	// FallbackLimit caps the degraded frequency counter.
	FallbackLimit = 10

	phraseBonus = 2
)

// Extractor is the primary keyword stage. MaxInputBytes of 0 accepts any size.
type Extractor struct {
	Limit         int
	MaxInputBytes int
}

// Extract runs the weighted extraction over text.
func (e Extractor) Extract(text string) ([]string, error) {
	if e.MaxInputBytes > 0 && len(text) > e.MaxInputBytes {
		return nil, fmt.Errorf("keyword input is %d bytes, limit is %d", len(text), e.MaxInputBytes)
	}
	return Extract(text, e.Limit), nil
}

type term struct {
	text   string
	weight int
	first  int
}

// Extract returns up to limit keywords ordered by weight. Unigrams weigh one per
// occurrence; contiguous two and three word phrases of bounded length weigh two.
// Equal weights keep first-appearance order, so the output is deterministic.
func Extract(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	tokens := significantTokens(text)
	if len(tokens) == 0 {
		return []string{}
	}

	table := make(map[string]*term)
	order := 0
	add := func(s string, w int) {
		t, ok := table[s]
		if !ok {
			t = &term{text: s, first: order}
			order++
			table[s] = t
		}
		t.weight += w
	}

	for i, tok := range tokens {
		add(tok, 1)
		if i+1 < len(tokens) {
			phrase := tok + " " + tokens[i+1]
			if n := utf8.RuneCountInString(phrase); n >= 6 && n < 30 {
				add(phrase, phraseBonus)
			}
		}
		if i+2 < len(tokens) {
			phrase := tok + " " + tokens[i+1] + " " + tokens[i+2]
			if n := utf8.RuneCountInString(phrase); n >= 9 && n < 40 {
				add(phrase, phraseBonus)
			}
		}
	}

	return topTerms(table, limit)
}

// Frequency is the fallback: plain unigram counts over the stop-word filtered text.
func Frequency(text string, limit int) []string {
	if limit <= 0 {
		limit = FallbackLimit
	}
	table := make(map[string]*term)
	for i, tok := range significantTokens(text) {
		t, ok := table[tok]
		if !ok {
			t = &term{text: tok, first: i}
			table[tok] = t
		}
		t.weight++
	}
	return topTerms(table, limit)
}

func topTerms(table map[string]*term, limit int) []string {
	terms := make([]*term, 0, len(table))
	for _, t := range table {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].weight != terms[j].weight {
			return terms[i].weight > terms[j].weight
		}
		return terms[i].first < terms[j].first
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.text
	}
	return out
}

// significantTokens lowercases, replaces non-letters with spaces and drops
// short tokens and stop words.
func significantTokens(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= 2 || IsStopWord(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Package summarize builds extractive summaries and metric insights from ranked articles.
package summarize

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"research-task-scheduler/internal/models"
)

const (
	// NoArticlesSummary is returned when there is nothing to summarize.
	NoArticlesSummary = "No articles were available to summarize for this topic."

	defaultSentences  = 4
	minSentenceLength = 20
	minWordLength     = 4
	fallbackTitles    = 5
)

// ErrNoSentences means every article summary was too fragmentary to extract from.
var ErrNoSentences = errors.New("no usable sentences in article summaries")

// Generator is the primary summary stage.
type Generator struct {
	Sentences int
}

// Summarize picks the highest scoring sentences across all article summaries.
func (g Generator) Summarize(articles []models.RankedArticle) (string, error) {
	n := g.Sentences
	if n <= 0 {
		n = defaultSentences
	}
	return extract(articles, n)
}

// Insights describes the article set. It never fails.
func (g Generator) Insights(articles []models.RankedArticle) ([]string, error) {
	return GenerateInsights(articles), nil
}

// GenerateSummary is Summarize with the default sentence count.
func GenerateSummary(articles []models.RankedArticle) (string, error) {
	return extract(articles, defaultSentences)
}

type sentence struct {
	text  string
	words []string
	score float64
}

func extract(articles []models.RankedArticle, limit int) (string, error) {
	if len(articles) == 0 {
		return NoArticlesSummary, nil
	}

	var candidates []*sentence
	seen := make(map[string]struct{})
	freq := make(map[string]int)
	for _, a := range articles {
		for _, raw := range splitSentences(a.Summary) {
			if utf8.RuneCountInString(raw) < minSentenceLength {
				continue
			}
			key := strings.ToLower(raw)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			s := &sentence{text: raw, words: significantWords(raw)}
			for _, w := range s.words {
				freq[w]++
			}
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return "", ErrNoSentences
	}

	for _, s := range candidates {
		if len(s.words) == 0 {
			continue
		}
		total := 0
		for _, w := range s.words {
			total += freq[w]
		}
		s.score = float64(total) / float64(len(s.words))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	parts := make([]string, len(candidates))
	for i, s := range candidates {
		parts[i] = s.text
	}
	return strings.Join(parts, ". ") + ".", nil
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func significantWords(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minWordLength {
			out = append(out, w)
		}
	}
	return out
}

// FallbackSummary lists the leading titles when extraction is not possible.
func FallbackSummary(articles []models.RankedArticle) string {
	titles := make([]string, 0, fallbackTitles)
	for _, a := range articles {
		if len(titles) == fallbackTitles {
			break
		}
		title := a.Title
		if title == "" {
			title = a.URL
		}
		titles = append(titles, title)
	}
	return fmt.Sprintf("Research summary based on %d articles. Key topics include: %s", len(articles), strings.Join(titles, ", "))
}

// EmptySummary explains a search that returned nothing.
func EmptySummary(topic string) string {
	return fmt.Sprintf("No articles were found for %q. Try a broader or differently worded topic.", topic)
}

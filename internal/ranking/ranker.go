// Package ranking deduplicates candidate articles and orders them by relevance to a topic.
package ranking

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"research-task-scheduler/internal/models"
)

// DefaultLimit caps how many ranked articles a result keeps.
const DefaultLimit = 20

// Deduplicate drops invalid articles and repeats of lowercase(title)+url, keeping
// the first occurrence and the original order.
func Deduplicate(articles []models.CandidateArticle) []models.CandidateArticle {
	seen := make(map[string]struct{}, len(articles))
	out := make([]models.CandidateArticle, 0, len(articles))
	for _, a := range articles {
		if !a.Valid() {
			continue
		}
		key := strings.ToLower(a.Title) + a.URL
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Score sums, for every word of the topic, two points per case-insensitive
// occurrence in the article title and summary.
func Score(topic string, article models.CandidateArticle) float64 {
	return scoreWith(topicPatterns(topic), article)
}

// Rank scores every article and sorts descending. Ties keep input order.
func Rank(topic string, articles []models.CandidateArticle) []models.RankedArticle {
	patterns := topicPatterns(topic)
	ranked := make([]models.RankedArticle, len(articles))
	for i, a := range articles {
		ranked[i] = models.RankedArticle{CandidateArticle: a, RelevanceScore: scoreWith(patterns, a)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})
	return ranked
}

// Top keeps the first n ranked articles.
func Top(ranked []models.RankedArticle, n int) []models.RankedArticle {
	if n <= 0 || len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// Confidence blends mean relevance (70%) and source diversity capped at three
// sources (30%). It is zero exactly when there are no articles.
func Confidence(articles []models.RankedArticle) float64 {
	if len(articles) == 0 {
		return 0
	}
	var total float64
	sources := make(map[string]struct{})
	for _, a := range articles {
		total += a.RelevanceScore
		sources[a.Source] = struct{}{}
	}
	avg := total / float64(len(articles))
	diversity := math.Min(float64(len(sources)), 3) / 3
	return math.Min(0.7*(avg/10)+0.3*diversity, 1.0)
}

func topicPatterns(topic string) []*regexp.Regexp {
	words := strings.Fields(topic)
	patterns := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		// QuoteMeta keeps topics such as "c++ (beta" from producing invalid patterns.
		patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(w)))
	}
	return patterns
}

func scoreWith(patterns []*regexp.Regexp, a models.CandidateArticle) float64 {
	text := a.Title + " " + a.Summary
	var score float64
	for _, p := range patterns {
		score += 2 * float64(len(p.FindAllStringIndex(text, -1)))
	}
	return score
}

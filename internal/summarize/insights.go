package summarize

import (
	"fmt"
	"strings"
	"time"

	"research-task-scheduler/internal/models"
)

const dateLayout = "2006-01-02"

// GenerateInsights emits one sentence per metric that has data. Metrics
// without applicable data are left out rather than reported as zero.
func GenerateInsights(articles []models.RankedArticle) []string {
	if len(articles) == 0 {
		return []string{"No articles were available, so no insights could be derived."}
	}

	var insights []string

	if sources := distinctSources(articles); len(sources) > 0 {
		insights = append(insights, fmt.Sprintf("Coverage draws on %d distinct source(s): %s.", len(sources), strings.Join(sources, ", ")))
	}

	var earliest, latest time.Time
	dated := 0
	for _, a := range articles {
		if a.PublishedAt == nil || a.PublishedAt.IsZero() {
			continue
		}
		at := a.PublishedAt.UTC()
		if dated == 0 || at.Before(earliest) {
			earliest = at
		}
		if dated == 0 || at.After(latest) {
			latest = at
		}
		dated++
	}
	if dated > 0 {
		days := int(latest.Sub(earliest).Hours() / 24)
		if days == 0 {
			insights = append(insights, fmt.Sprintf("All %d dated articles were published on %s.", dated, earliest.Format(dateLayout)))
		} else {
			insights = append(insights, fmt.Sprintf("Dated coverage spans %d days, from %s to %s.", days, earliest.Format(dateLayout), latest.Format(dateLayout)))
		}
	}

	words := 0
	for _, a := range articles {
		words += a.WordCount
	}
	if words > 0 {
		insights = append(insights, fmt.Sprintf("The analyzed articles contain roughly %d words in total.", words))
	}

	var sentiment float64
	rated := 0
	for _, a := range articles {
		if a.Sentiment != nil {
			sentiment += *a.Sentiment
			rated++
		}
	}
	if rated > 0 {
		insights = append(insights, fmt.Sprintf("Mean sentiment across %d rated articles is %.2f.", rated, sentiment/float64(rated)))
	}

	var relevance float64
	for _, a := range articles {
		relevance += a.RelevanceScore
	}
	insights = append(insights, fmt.Sprintf("Average relevance score is %.1f across %d articles.", relevance/float64(len(articles)), len(articles)))

	return insights
}

// FallbackInsights is the fixed three-line degraded output.
func FallbackInsights(articles []models.RankedArticle) []string {
	sources := distinctSources(articles)
	list := "none"
	if len(sources) > 0 {
		list = strings.Join(sources, ", ")
	}
	return []string{
		fmt.Sprintf("Found %d articles related to the topic.", len(articles)),
		fmt.Sprintf("Sources consulted: %s.", list),
		"Detailed analysis was unavailable; these insights were produced in degraded mode.",
	}
}

// EmptyInsights accompanies EmptySummary.
func EmptyInsights() []string {
	return []string{
		"No search provider returned articles for this topic.",
		"Providers may be unavailable, or the topic may be too narrow.",
	}
}

func distinctSources(articles []models.RankedArticle) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range articles {
		if a.Source == "" {
			continue
		}
		if _, ok := seen[a.Source]; ok {
			continue
		}
		seen[a.Source] = struct{}{}
		out = append(out, a.Source)
	}
	return out
}

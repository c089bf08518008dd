// Package provider defines the search provider contract and the concrete
// encyclopedia and news clients.
package provider

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"research-task-scheduler/internal/models"
)

// Provider returns candidate articles for a topic. A failure should be reported
// as an error; callers treat it as zero results from this provider.
type Provider interface {
	Search(ctx context.Context, topic string) ([]models.CandidateArticle, error)
	IsHealthy(ctx context.Context) bool
}

// Entry binds a provider to the name used for logging, metrics and article sources.
type Entry struct {
	Name     string
	Provider Provider
}

// Health reports IsHealthy for every entry, keyed by name.
func Health(ctx context.Context, entries []Entry) map[string]bool {
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.Name] = e.Provider.IsHealthy(ctx)
	}
	return out
}

// plainText strips markup from API snippets such as
// `<span class="searchmatch">climate</span> change`.
func plainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func wordCount(parts ...string) int {
	n := 0
	for _, p := range parts {
		n += len(strings.Fields(p))
	}
	return n
}

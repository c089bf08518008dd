package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"research-task-scheduler/internal/models"
)

// WikipediaName is the source label attached to encyclopedia articles.
const WikipediaName = "wikipedia"

// Wikipedia queries the MediaWiki full-text search API.
type Wikipedia struct {
	client  *http.Client
	baseURL string
	limit   int
}

// NewWikipedia builds a client for baseURL (e.g. https://en.wikipedia.org).
func NewWikipedia(client *http.Client, baseURL string, limit int) *Wikipedia {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if limit <= 0 {
		limit = 10
	}
	return &Wikipedia{client: client, baseURL: strings.TrimSuffix(baseURL, "/"), limit: limit}
}

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title     string    `json:"title"`
			Snippet   string    `json:"snippet"`
			WordCount int       `json:"wordcount"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"search"`
	} `json:"query"`
}

// Search runs a full-text search and converts hits into candidate articles.
func (w *Wikipedia) Search(ctx context.Context, topic string) ([]models.CandidateArticle, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("format", "json")
	q.Set("srsearch", topic)
	q.Set("srlimit", strconv.Itoa(w.limit))
	q.Set("srprop", "snippet|wordcount|timestamp")

	var body wikiSearchResponse
	if err := w.get(ctx, w.baseURL+"/w/api.php?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	out := make([]models.CandidateArticle, 0, len(body.Query.Search))
	for _, hit := range body.Query.Search {
		a := models.CandidateArticle{
			Title:     hit.Title,
			URL:       w.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_")),
			Summary:   plainText(hit.Snippet),
			Source:    WikipediaName,
			WordCount: hit.WordCount,
		}
		if !hit.Timestamp.IsZero() {
			ts := hit.Timestamp
			a.PublishedAt = &ts
		}
		out = append(out, a)
	}
	return out, nil
}

// IsHealthy checks that the API answers a site-info query.
func (w *Wikipedia) IsHealthy(ctx context.Context) bool {
	var body map[string]any
	return w.get(ctx, w.baseURL+"/w/api.php?action=query&meta=siteinfo&format=json", &body) == nil
}

func (w *Wikipedia) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "research-task-scheduler/1.0")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("wikipedia request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikipedia returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode wikipedia response: %w", err)
	}
	return nil
}

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"research-task-scheduler/internal/models"
)

// NewsName is the fallback source label when an item carries no outlet name.
const NewsName = "news"

// News queries a NewsAPI-compatible /v2/everything endpoint.
type News struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	pageSize int
}

// NewNews builds a news client. Without an API key it reports unhealthy and
// every search fails fast.
func NewNews(client *http.Client, baseURL, apiKey string, pageSize int) *News {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &News{client: client, baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, pageSize: pageSize}
}

type newsResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Content     string     `json:"content"`
		URL         string     `json:"url"`
		PublishedAt *time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// Search asks for the most relevant English articles about topic.
func (n *News) Search(ctx context.Context, topic string) ([]models.CandidateArticle, error) {
	if n.apiKey == "" {
		return nil, errors.New("news api key not configured")
	}
	q := url.Values{}
	q.Set("q", topic)
	q.Set("language", "en")
	q.Set("sortBy", "relevancy")
	q.Set("pageSize", strconv.Itoa(n.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/v2/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", n.apiKey)
	req.Header.Set("User-Agent", "research-task-scheduler/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()

	var body newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode news response (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK || body.Status == "error" {
		return nil, fmt.Errorf("news api %s: %s %s", resp.Status, body.Code, body.Message)
	}

	out := make([]models.CandidateArticle, 0, len(body.Articles))
	for _, item := range body.Articles {
		// NewsAPI tombstones deleted items with this title.
		if item.Title == "[Removed]" {
			continue
		}
		source := item.Source.Name
		if source == "" {
			source = NewsName
		}
		summary := plainText(item.Description)
		content := plainText(item.Content)
		out = append(out, models.CandidateArticle{
			Title:       strings.TrimSpace(item.Title),
			URL:         item.URL,
			Summary:     summary,
			Content:     content,
			Source:      source,
			PublishedAt: item.PublishedAt,
			WordCount:   wordCount(summary, content),
		})
	}
	return out, nil
}

// IsHealthy is true when a key is configured.
func (n *News) IsHealthy(context.Context) bool {
	return n.apiKey != ""
}

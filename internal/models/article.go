package models

import "time"

// CandidateArticle is raw provider output before ranking.
type CandidateArticle struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Summary     string     `json:"summary"`
	Content     string     `json:"content,omitempty"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Sentiment   *float64   `json:"sentiment,omitempty"`
	WordCount   int        `json:"word_count"`
}

// Valid reports whether the article carries at least a title or a URL.
func (a CandidateArticle) Valid() bool {
	return a.Title != "" || a.URL != ""
}

// RankedArticle is a candidate annotated with its relevance to the topic.
type RankedArticle struct {
	CandidateArticle
	RelevanceScore float64 `json:"relevance_score"`
}

// ResearchResult is the output of one completed job.
type ResearchResult struct {
	Topic          string          `json:"topic"`
	Summary        string          `json:"summary"`
	KeyInsights    []string        `json:"key_insights"`
	Keywords       []string        `json:"keywords"`
	Articles       []RankedArticle `json:"articles"`
	TotalArticles  int             `json:"total_articles"`
	ProcessingTime int64           `json:"processing_time_ms"`
	Confidence     float64         `json:"confidence"`
}

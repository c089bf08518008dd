// Package cache keeps recent provider search results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/provider"
	"research-task-scheduler/internal/telemetry"
)

const keyPrefix = "research:search:"

// SearchCache decorates a provider. Redis failures fall through to the
// wrapped provider; provider errors are never cached.
type SearchCache struct {
	name   string
	next   provider.Provider
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

var _ provider.Provider = (*SearchCache)(nil)

func NewSearchCache(name string, next provider.Provider, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *SearchCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchCache{
		name:   name,
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.Named("cache").With(zap.String("provider", name)),
	}
}

// Wrap decorates every entry, keeping entry names.
func Wrap(entries []provider.Entry, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) []provider.Entry {
	out := make([]provider.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, provider.Entry{Name: e.Name, Provider: NewSearchCache(e.Name, e.Provider, client, ttl, logger)})
	}
	return out
}

// Key normalizes the topic so case and spacing variants share an entry.
func Key(providerName, topic string) string {
	return keyPrefix + providerName + ":" + strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

func (c *SearchCache) Search(ctx context.Context, topic string) ([]models.CandidateArticle, error) {
	key := Key(c.name, topic)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var articles []models.CandidateArticle
		if uerr := json.Unmarshal(raw, &articles); uerr == nil {
			telemetry.CacheHits.WithLabelValues(c.name).Inc()
			return articles, nil
		}
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", zap.Error(err))
	}

	articles, err := c.next.Search(ctx, topic)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return articles, nil
	}
	body, err := json.Marshal(articles)
	if err != nil {
		return articles, nil
	}
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
	return articles, nil
}

func (c *SearchCache) IsHealthy(ctx context.Context) bool {
	return c.next.IsHealthy(ctx)
}

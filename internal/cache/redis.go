package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"vidcat/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const searchCachePrefix = "vidcat:search:"

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// SearchCache keeps search pages in Redis. A nil *SearchCache is valid and
// never hits. Redis errors are logged and treated as misses.
type SearchCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

type cachedPage struct {
	Hits  []models.SearchHit `json:"hits"`
	Total int                `json:"total"`
}

func NewSearchCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *SearchCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &SearchCache{redis: client, ttl: ttl, logger: logger}
}

// Key is the canonical cache key of q: its query string with sorted keys.
func Key(q models.SearchQuery) string {
	return searchCachePrefix + q.Values().Encode()
}

func (c *SearchCache) Get(ctx context.Context, q models.SearchQuery) (models.SearchResult, bool) {
	if c == nil {
		return models.SearchResult{}, false
	}

	cached, err := c.redis.Get(ctx, Key(q)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Failed to read search page from Redis")
		}
		return models.SearchResult{}, false
	}

	var page cachedPage
	if err := json.Unmarshal([]byte(cached), &page); err != nil {
		c.logger.WithError(err).Warn("Failed to unmarshal cached search page")
		return models.SearchResult{}, false
	}

	c.logger.WithField("query", q.Term).Debug("Retrieved search page from cache")
	return models.SearchResult{Hits: page.Hits, Total: page.Total, Query: q}, true
}

func (c *SearchCache) Set(ctx context.Context, r models.SearchResult) {
	if c == nil {
		return
	}

	data, err := json.Marshal(cachedPage{Hits: r.Hits, Total: r.Total})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal search page for caching")
		return
	}
	if err := c.redis.Set(ctx, Key(r.Query), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to write search page to cache")
		return
	}
	c.logger.WithField("query", r.Query.Term).Debug("Search page cached")
}

// Purge drops every cached search page. Pages can show any record, so a
// write on one record invalidates all of them.
func (c *SearchCache) Purge(ctx context.Context) {
	if c == nil {
		return
	}

	var keys []string
	iter := c.redis.Scan(ctx, 0, searchCachePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to list cached search pages")
		return
	}

	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			c.logger.WithError(err).Warn("Failed to purge cached search pages")
			return
		}
	}
	c.logger.WithField("count", len(keys)).Debug("Search cache purged")
}

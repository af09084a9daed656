package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// FeedCache keeps recently fetched ICS bodies in Redis. One resolution can
// touch a dozen dates; caching the feed body keeps that to a single upstream
// fetch. Cache failures fail open to a direct fetch.
type FeedCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewFeedCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *FeedCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &FeedCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *FeedCache) Get(ctx context.Context, url string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	body, err := c.rdb.Get(ctx, feedKey(url)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("ics feed cache read failed", "err", err)
		}
		return nil, false
	}
	return body, true
}

func (c *FeedCache) Set(ctx context.Context, url string, body []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, feedKey(url), body, c.ttl).Err(); err != nil {
		c.logger.Warn("ics feed cache write failed", "err", err)
	}
}

// feedKey hashes the URL so secret feed addresses never appear in Redis keys.
func feedKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "icsfeed:" + hex.EncodeToString(sum[:])
}

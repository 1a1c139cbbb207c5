package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kline-pager/internal/market"
	"kline-pager/internal/metrics"
	"kline-pager/internal/paging"
)

// PageCache is the subset of the redis client used by Cached.
type PageCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cached serves fully closed pages from redis and delegates everything else.
type Cached struct {
	next   KlineFetcher
	cache  PageCache
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewCached wraps next with a redis page cache.
func NewCached(next KlineFetcher, cache PageCache, ttl time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("component", "page_cache").Logger(),
	}
}

// FetchPage implements KlineFetcher.
func (c *Cached) FetchPage(ctx context.Context, symbol string, interval paging.Interval, start time.Time, limit int) ([]market.Candle, error) {
	if !pageClosed(interval, start, limit, c.now()) {
		return c.next.FetchPage(ctx, symbol, interval, start, limit)
	}

	key := pageKey(symbol, interval, start, limit)
	payload, err := c.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var candles []market.Candle
		if jsonErr := json.Unmarshal(payload, &candles); jsonErr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return candles, nil
		}
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn().Str("key", key).Msg("dropping undecodable cache entry")
	case errors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
	}

	candles, err := c.next.FetchPage(ctx, symbol, interval, start, limit)
	if err != nil {
		return nil, err
	}

	// Only full pages are stored.
	if len(candles) == limit {
		if encoded, jsonErr := json.Marshal(candles); jsonErr == nil {
			if setErr := c.cache.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
				c.logger.Warn().Err(setErr).Str("key", key).Msg("cache store failed")
			}
		}
	}
	return candles, nil
}

func pageKey(symbol string, interval paging.Interval, start time.Time, limit int) string {
	return fmt.Sprintf("klines:%s:%s:%d:%d", strings.ToUpper(symbol), interval, start.UnixMilli(), limit)
}

// pageClosed reports whether every kline of the page closed before now.
func pageClosed(interval paging.Interval, start time.Time, limit int, now time.Time) bool {
	end := start.Add(time.Duration(limit) * interval.Duration())
	return !end.After(now)
}

var _ KlineFetcher = (*Cached)(nil)

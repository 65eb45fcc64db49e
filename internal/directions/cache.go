package directions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/models"
)

const DefaultCacheTTL = 24 * time.Hour

// CachedProvider memoizes TravelTime results in Redis. A nil client or an
// unreachable server turns the cache into a pass-through.
type CachedProvider struct {
	Provider
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	warnedUnavailable atomic.Bool
}

// NewRedisClient parses url and pings the server. It returns nil when url is
// empty or Redis cannot be reached.
func NewRedisClient(ctx context.Context, url string, logger zerolog.Logger) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, travel cache disabled")
		return nil
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, travel cache disabled")
		_ = client.Close()
		return nil
	}
	return client
}

func NewCachedProvider(next Provider, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{Provider: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedProvider) TravelTime(ctx context.Context, from, to models.GeoPoint) (int, error) {
	if c.client == nil {
		return c.Provider.TravelTime(ctx, from, to)
	}
	key := travelKey(from, to)
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if minutes, convErr := strconv.Atoi(raw); convErr == nil {
			metrics.TravelCache.WithLabelValues("hit").Inc()
			return minutes, nil
		}
	case errors.Is(err, redis.Nil):
	default:
		c.warnUnavailableOnce(err)
	}
	metrics.TravelCache.WithLabelValues("miss").Inc()

	minutes, err := c.Provider.TravelTime(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if err := c.client.Set(ctx, key, strconv.Itoa(minutes), c.ttl).Err(); err != nil {
		c.warnUnavailableOnce(err)
	}
	return minutes, nil
}

func (c *CachedProvider) warnUnavailableOnce(err error) {
	if c.warnedUnavailable.CompareAndSwap(false, true) {
		c.logger.Warn().Err(err).Msg("travel cache unavailable, bypassing")
	}
}

// travelKey rounds to 4 decimals (about 11 m) so nearby lookups share entries.
func travelKey(from, to models.GeoPoint) string {
	return fmt.Sprintf("travel:%.4f,%.4f:%.4f,%.4f", from.Lat, from.Lng, to.Lat, to.Lng)
}

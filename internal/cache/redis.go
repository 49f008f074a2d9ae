package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

// PageCache keeps fetched page text in Redis so repeated monitor runs skip the network
type PageCache struct {
	client *redis.Client
	config Config
	logger *logger.Logger
	hits   int64
	misses int64
}

// NewPageCache connects to Redis
func NewPageCache(config Config, log *logger.Logger) (*PageCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns
	if config.KeyPrefix == "" {
		config.KeyPrefix = "piiwatch"
	}

	c := &PageCache{
		client: redis.NewClient(opts),
		config: config,
		logger: log.WithComponent("page-cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.Info("Page cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("default_ttl", config.DefaultTTL))

	return c, nil
}

// Get returns the cached page for url. Lookup failures count as misses.
func (c *PageCache) Get(ctx context.Context, url string) (*CachedPage, bool) {
	key := c.key(url)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	} else if err != nil {
		atomic.AddInt64(&c.misses, 1)
		c.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var page CachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		atomic.AddInt64(&c.misses, 1)
		c.logger.Warn("Dropping corrupted cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return &page, true
}

// Store caches a page with the default TTL
func (c *PageCache) Store(ctx context.Context, page *CachedPage) error {
	page.CachedAt = time.Now()
	page.TTL = int64(c.config.DefaultTTL.Seconds())

	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal page for caching: %w", err)
	}
	if err := c.client.Set(ctx, c.key(page.URL), data, c.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache page: %w", err)
	}
	return nil
}

// Stats returns cache performance statistics
func (c *PageCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}
	for _, line := range strings.Split(info, "\r\n") {
		if mem, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(mem, 10, 64); err == nil {
				stats.MemoryUsage = n
			}
		}
	}
	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

// Clear removes every cached page
func (c *PageCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":page:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	for i := 0; i < len(keys); i += 100 {
		end := i + 100
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Page cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *PageCache) Close() error {
	return c.client.Close()
}

func (c *PageCache) key(url string) string {
	return pageKey(c.config.KeyPrefix, url)
}

func pageKey(prefix, url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return fmt.Sprintf("%s:page:%s", prefix, hex.EncodeToString(sum[:])[:24])
}

// maskRedisURL masks the password of a Redis URL for logging
func maskRedisURL(url string) string {
	start := 0
	if i := strings.Index(url, "://"); i >= 0 {
		start = i + 3
	}
	at := strings.LastIndex(url, "@")
	if at < start {
		return url
	}
	colon := strings.Index(url[start:at], ":")
	if colon < 0 {
		return url
	}
	return url[:start+colon+1] + "***" + url[at:]
}

package acquire

import (
	"github.com/raaihank/piiwatch/internal/cache"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

// OpenPageCache connects to the Redis page cache described by cfg
func OpenPageCache(cfg config.CacheConfig, log *logger.Logger) (*cache.PageCache, error) {
	return cache.NewPageCache(cache.Config{
		RedisURL:       cfg.RedisURL,
		MaxConnections: cfg.MaxConnections,
		MinIdleConns:   cfg.MinIdleConns,
		DefaultTTL:     cfg.DefaultTTL,
		KeyPrefix:      cfg.KeyPrefix,
	}, log)
}

// BuildFetcher assembles the fetch chain from configuration: plain HTTP,
// headless rendering as a fallback when enabled, and the Redis page cache
// in front of both when enabled and reachable. The page cache is nil when
// it is not in use. The returned closer releases the browser and the
// cache connection.
func BuildFetcher(cfg *config.Config, log *logger.Logger) (Fetcher, *cache.PageCache, func() error) {
	var closers []func() error
	var fetcher Fetcher = NewHTTPFetcher(cfg.Fetch, log)

	if cfg.Fetch.Render {
		render := NewRenderFetcher(cfg.Fetch, log)
		closers = append(closers, render.Close)
		fetcher = FallbackFetcher{fetcher, render}
	}

	var pages *cache.PageCache
	if cfg.Cache.Enabled {
		var err error
		pages, err = OpenPageCache(cfg.Cache, log)
		if err != nil {
			log.Warn("Page cache unavailable, fetching without cache", zap.Error(err))
			pages = nil
		} else {
			closers = append(closers, pages.Close)
			fetcher = NewCachedFetcher(fetcher, pages, log)
		}
	}

	return fetcher, pages, func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

package acquire

import (
	"context"

	"github.com/raaihank/piiwatch/internal/cache"
	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

// PageStore is the subset of cache.PageCache used for fetch results
type PageStore interface {
	Get(ctx context.Context, url string) (*cache.CachedPage, bool)
	Store(ctx context.Context, page *cache.CachedPage) error
}

// CachedFetcher serves pages from a PageStore and fills it on miss
type CachedFetcher struct {
	next   Fetcher
	store  PageStore
	logger *logger.Logger
}

// NewCachedFetcher wraps next with a page cache
func NewCachedFetcher(next Fetcher, store PageStore, log *logger.Logger) *CachedFetcher {
	return &CachedFetcher{next: next, store: store, logger: log.WithComponent("cached-fetcher")}
}

// Fetch returns the cached page or fetches and caches it. Empty pages are not cached.
func (c *CachedFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	if cached, ok := c.store.Get(ctx, url); ok {
		c.logger.Debug("Page cache hit", zap.String("url", url))
		return Page{Text: cached.Text, Title: cached.Title}, nil
	}

	page, err := c.next.Fetch(ctx, url)
	if err != nil || page.Text == "" {
		return page, err
	}

	if err := c.store.Store(ctx, &cache.CachedPage{URL: url, Title: page.Title, Text: page.Text}); err != nil {
		c.logger.Warn("Failed to cache page", zap.String("url", url), zap.Error(err))
	}
	return page, nil
}

package acquire

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"go.uber.org/zap"
)

// RenderFetcher loads pages in headless Chrome so script-built content is visible
type RenderFetcher struct {
	timeout   time.Duration
	userAgent string
	maxBytes  int
	logger    *logger.Logger

	once          sync.Once
	startErr      error
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

// NewRenderFetcher creates a fetcher backed by a lazily started browser
func NewRenderFetcher(cfg config.FetchConfig, log *logger.Logger) *RenderFetcher {
	timeout := cfg.RenderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 50000
	}
	return &RenderFetcher{
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		logger:    log.WithComponent("render-fetcher"),
	}
}

func (r *RenderFetcher) browser() (context.Context, error) {
	r.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
		)
		if r.userAgent != "" {
			opts = append(opts, chromedp.UserAgent(r.userAgent))
		}
		var allocCtx context.Context
		allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		r.browserCtx, r.browserCancel = chromedp.NewContext(allocCtx)
		// An empty run starts the browser so every fetch opens a tab in it.
		if r.startErr = chromedp.Run(r.browserCtx); r.startErr != nil {
			r.logger.Error("Failed to start headless browser", zap.Error(r.startErr))
			return
		}
		r.logger.Info("Headless browser started")
	})
	return r.browserCtx, r.startErr
}

// Fetch navigates to rawURL and extracts text from the rendered DOM
func (r *RenderFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return Page{}, fmt.Errorf("render %s: %w", rawURL, err)
	}
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var title, markup string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	)
	if err != nil {
		r.logger.Debug("Render failed", zap.String("url", rawURL), zap.Error(err))
		return Page{}, fmt.Errorf("render %s: %w", rawURL, err)
	}

	return Page{Text: clip(CleanHTML(markup), r.maxBytes), Title: title}, nil
}

// Close shuts the browser down
func (r *RenderFetcher) Close() error {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

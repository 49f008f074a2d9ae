package app

import (
	"context"
	"fmt"

	"github.com/raaihank/piiwatch/internal/acquire"
	"github.com/raaihank/piiwatch/internal/alerting"
	"github.com/raaihank/piiwatch/internal/cache"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/events"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/monitor"
	"github.com/raaihank/piiwatch/internal/ner"
	"github.com/raaihank/piiwatch/internal/privacy"
	"github.com/raaihank/piiwatch/internal/scan"
	"github.com/raaihank/piiwatch/internal/server"
	"github.com/raaihank/piiwatch/internal/stats"
	"github.com/raaihank/piiwatch/internal/websocket"
	"go.uber.org/zap"
)

// App holds every long-lived component of a piiwatch process
type App struct {
	Config     *config.Config
	Detector   *privacy.Detector
	Aggregator *acquire.Aggregator
	Gate       *alerting.Gate
	Dispatcher *alerting.Dispatcher
	Stats      *stats.Recorder
	Scans      *scan.Manager
	Monitors   *monitor.Scheduler
	Hub        *websocket.Hub
	// PageCache is nil unless the Redis page cache is enabled and reachable
	PageCache  *cache.PageCache

	closers []func() error
	logger  *logger.Logger
}

// NewDetector builds the regex detector with every configured recognizer.
// The closer releases recognizer resources.
func NewDetector(cfg *config.Config, log *logger.Logger) (*privacy.Detector, func() error, error) {
	recognizers, closeRecognizers, err := ner.Build(cfg.Recognizers, log)
	if err != nil {
		return nil, nil, fmt.Errorf("build recognizers: %w", err)
	}
	detector, err := privacy.New(cfg.Detection, log, recognizers...)
	if err != nil {
		_ = closeRecognizers()
		return nil, nil, fmt.Errorf("build detector: %w", err)
	}
	return detector, closeRecognizers, nil
}

// New wires detection, acquisition, alerting and the scan and monitor
// engines from configuration. Alert sinks are opened with ctx.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, logger: log.WithComponent("app")}

	detector, closeDetector, err := NewDetector(cfg, log)
	if err != nil {
		return nil, err
	}
	a.Detector = detector
	a.closers = append(a.closers, closeDetector)

	fetcher, pages, closeFetcher := acquire.BuildFetcher(cfg, log)
	a.PageCache = pages
	a.closers = append(a.closers, closeFetcher)
	a.Aggregator = acquire.NewAggregator(
		acquire.NewTavilyClient(cfg.Search, log),
		fetcher,
		detector,
		acquire.Options{CourtesyDelay: cfg.Fetch.CourtesyDelay, Social: cfg.Social},
		log,
	)

	sinks, err := alerting.BuildSinks(ctx, cfg.Alerts)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.Gate = alerting.NewGate(cfg.Alerts.Thresholds)
	a.Dispatcher = alerting.NewDispatcher(alerting.DispatcherConfig{
		QueueSize: cfg.Alerts.QueueSize,
		Workers:   cfg.Alerts.Workers,
	}, sinks, log)
	a.Stats = stats.NewRecorder(cfg.Scan.StatsLimit, nil)

	var fwd events.Forwarder
	if cfg.WebSocket.Enabled {
		a.Hub = websocket.NewHub(cfg.WebSocket, log)
		fwd = a.Hub
	}

	a.Scans = scan.NewManager(scan.Config{
		Source:            a.Aggregator,
		Analyzer:          detector,
		Gate:              a.Gate,
		Stats:             a.Stats,
		Forwarder:         fwd,
		MaxEntries:        cfg.Scan.MaxEntries,
		DefaultMaxResults: cfg.Scan.DefaultMaxResults,
	}, log)
	a.Monitors = monitor.NewScheduler(monitor.Config{
		Executor:     a.Aggregator,
		Gate:         a.Gate,
		Dispatcher:   a.Dispatcher,
		Stats:        a.Stats,
		Forwarder:    fwd,
		MaxEntries:   cfg.Monitor.MaxEntries,
		HistoryLimit: cfg.Monitor.HistoryLimit,
		AlertLimit:   cfg.Monitor.AlertLimit,
		ListLimit:    cfg.Monitor.ListLimit,
	}, log)

	log.Info("Components initialized",
		zap.Int("alert_sinks", len(sinks)),
		zap.Bool("websocket", a.Hub != nil),
		zap.Bool("page_cache", a.PageCache != nil),
		zap.Bool("render", cfg.Fetch.Render),
	)
	return a, nil
}

// Services exposes the components the HTTP API serves
func (a *App) Services() server.Services {
	svc := server.Services{
		Scans:    a.Scans,
		Monitors: a.Monitors,
		Stats:    a.Stats,
		Detector: a.Detector,
		Gate:     a.Gate,
		Alerts:   a.Dispatcher,
	}
	if a.Hub != nil {
		svc.Hub = a.Hub
		svc.Connections = a.Hub
	}
	if a.PageCache != nil {
		svc.Cache = a.PageCache
	}
	return svc
}

// Run starts background loops and blocks until ctx is done
func (a *App) Run(ctx context.Context) {
	if a.Hub == nil {
		<-ctx.Done()
		return
	}
	a.Hub.Run(ctx)
}

// ReloadThresholds applies alert thresholds from a reloaded configuration
func (a *App) ReloadThresholds(cfg *config.Config) {
	thresholds := cfg.Alerts.Thresholds
	if thresholds == nil {
		thresholds = alerting.DefaultThresholds()
	}
	a.Gate.SetThresholds(thresholds)
	a.logger.Info("Alert thresholds reloaded", zap.Any("thresholds", a.Gate.Thresholds()))
}

// Close cancels running scans and monitors, flushes queued alerts and
// releases detector and fetcher resources
func (a *App) Close(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(a.Scans.Close(ctx))
	keep(a.Monitors.Close(ctx))
	a.Dispatcher.Close(ctx)
	keep(a.closeResources())
	return first
}

func (a *App) closeResources() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to release resource", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}

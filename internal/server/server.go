package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/piiwatch/internal/alerting"
	"github.com/raaihank/piiwatch/internal/cache"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/monitor"
	"github.com/raaihank/piiwatch/internal/privacy"
	"github.com/raaihank/piiwatch/internal/scan"
	"github.com/raaihank/piiwatch/internal/stats"
	"github.com/raaihank/piiwatch/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info
const Version = "0.2.0"

// Detector reports which detection layers are loaded
type Detector interface {
	Status() privacy.ModelStatus
	EnabledPatterns() []string
}

// DeliveryReporter exposes alert delivery counters
type DeliveryReporter interface {
	Stats() alerting.DeliveryStats
}

// CacheReporter exposes page cache statistics
type CacheReporter interface {
	Stats(ctx context.Context) (*cache.Stats, error)
}

// ConnectionReporter exposes websocket hub counters
type ConnectionReporter interface {
	Stats() websocket.HubStats
}

// Services are the components the API serves
type Services struct {
	Scans    *scan.Manager
	Monitors *monitor.Scheduler
	Stats    *stats.Recorder
	Detector Detector
	Gate     *alerting.Gate
	// Hub serves /ws when set
	Hub      http.Handler

	// Optional reporters surfaced by /health
	Alerts      DeliveryReporter
	Cache       CacheReporter
	Connections ConnectionReporter
}

// Server is the HTTP API server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	svc     Services
	router  *mux.Router
	server  *http.Server
	limiter *clientLimiter
	started time.Time

	trustedProxies []*net.IPNet
}

// New creates the API server
func New(cfg *config.Config, svc Services, log *logger.Logger) *Server {
	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		svc:     svc,
		router:  mux.NewRouter(),
		started: time.Now(),

		trustedProxies: parseTrustedProxies(cfg.Server.TrustedProxies),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.svc.Hub != nil && s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.Handle(path, s.svc.Hub).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/scan", s.handleStartScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/url", s.handleScanURL).Methods(http.MethodPost)
	api.HandleFunc("/scan/social", s.handleScanSocial).Methods(http.MethodPost)
	api.HandleFunc("/scan/email", s.handleScanEmail).Methods(http.MethodPost)
	api.HandleFunc("/scan/file", s.handleScanFile).Methods(http.MethodPost)
	api.HandleFunc("/scan/{id}", s.handleGetScan).Methods(http.MethodGet)
	api.HandleFunc("/scan/{id}/stream", s.handleScanStream).Methods(http.MethodGet)

	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)

	api.HandleFunc("/monitor/start", s.handleStartMonitor).Methods(http.MethodPost)
	api.HandleFunc("/monitor", s.handleListMonitors).Methods(http.MethodGet)
	api.HandleFunc("/monitor/{id}", s.handleGetMonitor).Methods(http.MethodGet)
	api.HandleFunc("/monitor/{id}/stop", s.handleStopMonitor).Methods(http.MethodPost)
	api.HandleFunc("/monitor/{id}/stream", s.handleMonitorStream).Methods(http.MethodGet)

	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting piiwatch API server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("rate_limit", s.limiter != nil),
		zap.Bool("websocket", s.svc.Hub != nil && s.config.WebSocket.Enabled),
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping piiwatch API server")
	return s.server.Shutdown(ctx)
}

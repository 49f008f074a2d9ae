package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/piiwatch/internal/app"
	"github.com/raaihank/piiwatch/internal/config"
	"github.com/raaihank/piiwatch/internal/logger"
	"github.com/raaihank/piiwatch/internal/server"
	"go.uber.org/zap"
)

var (
	commit = "dev"
	date   = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the server at this base URL and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("piiwatch %s (commit: %s, built: %s)\n", server.Version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}
	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting piiwatch",
		zap.String("version", server.Version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize components", zap.Error(err))
	}
	go components.Run(ctx)

	if *configPath != "" {
		if _, err := config.Watch(*configPath, components.ReloadThresholds); err != nil {
			log.Warn("Configuration hot reload disabled", zap.Error(err))
		}
	}

	srv := server.New(cfg, components.Services(), log)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	exitCode := 0
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to shutdown server gracefully", zap.Error(err))
		exitCode = 1
	}
	if err := components.Close(shutdownCtx); err != nil {
		log.Error("Failed to release components", zap.Error(err))
		exitCode = 1
	}
	cancel()

	log.Info("Server shutdown complete")
	if exitCode != 0 {
		log.Sync()
		os.Exit(exitCode)
	}
}

func performHealthCheck(baseURL string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
}

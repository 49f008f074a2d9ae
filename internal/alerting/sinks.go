package alerting

import (
	"context"
	"fmt"

	"github.com/raaihank/piiwatch/internal/config"
)

// BuildSinks opens every sink enabled in the configuration
func BuildSinks(ctx context.Context, cfg config.AlertsConfig) ([]Sink, error) {
	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close(ctx)
		}
	}

	if cfg.Webhook.Enabled {
		s, err := NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Timeout)
		if err != nil {
			return nil, fmt.Errorf("webhook sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.File.Enabled {
		s, err := NewFileSink(cfg.File.Path)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("file sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Postgres.Enabled {
		s, err := NewPostgresSink(ctx, cfg.Postgres.DatabaseURL, cfg.Postgres.Table, cfg.Postgres.MaxOpenConns)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}

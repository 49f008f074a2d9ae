package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/piiwatch/")
	v.AddConfigPath("$HOME/.piiwatch/")

	// Environment variable overrides
	v.SetEnvPrefix("PIIWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	for _, proxy := range config.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid trusted proxy %q: must be an IP or CIDR", proxy)
		}
	}

	if config.Detection.MaxLength <= 0 {
		return fmt.Errorf("detection.max_length must be positive")
	}

	if config.Recognizers.Transformer.Enabled {
		t := config.Recognizers.Transformer
		if t.ModelPath == "" || t.VocabPath == "" {
			return fmt.Errorf("transformer recognizer needs model_path and vocab_path")
		}
		if t.MaxTokens < 8 {
			return fmt.Errorf("invalid transformer max_tokens: %d", t.MaxTokens)
		}
		if t.MinScore < 0 || t.MinScore > 1 {
			return fmt.Errorf("invalid transformer min_score: %v", t.MinScore)
		}
	}

	if config.Recognizers.Statistical.Enabled && config.Recognizers.Statistical.Endpoint == "" {
		return fmt.Errorf("statistical recognizer needs an endpoint")
	}

	if config.Monitor.HistoryLimit <= 0 || config.Monitor.AlertLimit <= 0 {
		return fmt.Errorf("monitor history_limit and alert_limit must be positive")
	}

	for method, threshold := range config.Alerts.Thresholds {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("invalid alert threshold for %s: %v (must be within 0..1)", method, threshold)
		}
	}

	if config.Alerts.Webhook.Enabled && config.Alerts.Webhook.URL == "" {
		return fmt.Errorf("alerts.webhook.url is required when the webhook sink is enabled")
	}

	if config.Alerts.Postgres.Enabled && config.Alerts.Postgres.DatabaseURL == "" {
		return fmt.Errorf("alerts.postgres.database_url is required when the postgres sink is enabled")
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when the cache is enabled")
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes.
// The callback receives a fully validated configuration; invalid edits are ignored.
func Watch(configPath string, callback func(*Config)) (*viper.Viper, error) {
	v := viper.New()
	if _, err := load(v, configPath); err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return v, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := validateConfig(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return v, nil
}

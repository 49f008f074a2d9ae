package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Detection   DetectionConfig   `yaml:"detection" mapstructure:"detection"`
	Recognizers RecognizersConfig `yaml:"recognizers" mapstructure:"recognizers"`
	Search      SearchConfig      `yaml:"search" mapstructure:"search"`
	Fetch       FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
	Social      SocialConfig      `yaml:"social" mapstructure:"social"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Scan        ScanConfig        `yaml:"scan" mapstructure:"scan"`
	Monitor     MonitorConfig     `yaml:"monitor" mapstructure:"monitor"`
	Alerts      AlertsConfig      `yaml:"alerts" mapstructure:"alerts"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	WebSocket   WebSocketConfig   `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port        int           `yaml:"port" mapstructure:"port"`
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	// WriteTimeout stays 0 by default: SSE streams stay open for the whole scan or monitor.
	WriteTimeout  time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxUploadSize int64         `yaml:"max_upload_size" mapstructure:"max_upload_size"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers identify the client. Other peers are keyed by address.
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// DetectionConfig contains the pattern layer configuration
type DetectionConfig struct {
	Patterns    []string `yaml:"patterns" mapstructure:"patterns"`
	MaxLength   int      `yaml:"max_length" mapstructure:"max_length"`
	PatternFile string   `yaml:"pattern_file" mapstructure:"pattern_file"`
}

// RecognizersConfig contains the entity-recognition provider configuration
type RecognizersConfig struct {
	Statistical StatisticalConfig `yaml:"statistical" mapstructure:"statistical"`
	Transformer TransformerConfig `yaml:"transformer" mapstructure:"transformer"`
}

// StatisticalConfig points at an HTTP service wrapping a statistical NLP model
type StatisticalConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// TransformerConfig contains the token-classification model configuration
type TransformerConfig struct {
	Enabled    bool     `yaml:"enabled" mapstructure:"enabled"`
	ModelPath  string   `yaml:"model_path" mapstructure:"model_path"`
	VocabPath  string   `yaml:"vocab_path" mapstructure:"vocab_path"`
	Labels     []string `yaml:"labels" mapstructure:"labels"`
	MaxTokens  int      `yaml:"max_tokens" mapstructure:"max_tokens"`
	ChunkWords int      `yaml:"chunk_words" mapstructure:"chunk_words"`
	MinScore   float64  `yaml:"min_score" mapstructure:"min_score"`
	LowerCase  bool     `yaml:"lower_case" mapstructure:"lower_case"`
}

// SearchConfig contains the web search provider configuration
type SearchConfig struct {
	Provider string        `yaml:"provider" mapstructure:"provider"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string        `yaml:"api_key" mapstructure:"api_key"`
	Depth    string        `yaml:"depth" mapstructure:"depth"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// FetchConfig contains page fetching configuration
type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	SocialTimeout time.Duration `yaml:"social_timeout" mapstructure:"social_timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes      int           `yaml:"max_bytes" mapstructure:"max_bytes"`
	CourtesyDelay time.Duration `yaml:"courtesy_delay" mapstructure:"courtesy_delay"`
	Render        bool          `yaml:"render" mapstructure:"render"`
	RenderTimeout time.Duration `yaml:"render_timeout" mapstructure:"render_timeout"`
}

// SocialConfig holds platform credentials; without them profile lookups are simulated
type SocialConfig struct {
	TwitterBearerToken string `yaml:"twitter_bearer_token" mapstructure:"twitter_bearer_token"`
	InstagramToken     string `yaml:"instagram_token" mapstructure:"instagram_token"`
	DeepSearch         bool   `yaml:"deep_search" mapstructure:"deep_search"`
}

// CacheConfig contains the Redis page cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// ScanConfig contains one-shot scan configuration
type ScanConfig struct {
	MaxEntries        int `yaml:"max_entries" mapstructure:"max_entries"`
	DefaultMaxResults int `yaml:"default_max_results" mapstructure:"default_max_results"`
	StatsLimit        int `yaml:"stats_limit" mapstructure:"stats_limit"`
}

// MonitorConfig contains scheduled monitoring configuration
type MonitorConfig struct {
	MaxEntries   int `yaml:"max_entries" mapstructure:"max_entries"`
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
	AlertLimit   int `yaml:"alert_limit" mapstructure:"alert_limit"`
	ListLimit    int `yaml:"list_limit" mapstructure:"list_limit"`
}

// AlertsConfig contains the alert gate thresholds and delivery sinks
type AlertsConfig struct {
	Thresholds map[string]float64 `yaml:"thresholds" mapstructure:"thresholds"`
	QueueSize  int                `yaml:"queue_size" mapstructure:"queue_size"`
	Workers    int                `yaml:"workers" mapstructure:"workers"`
	Webhook    WebhookSinkConfig  `yaml:"webhook" mapstructure:"webhook"`
	File       FileSinkConfig     `yaml:"file" mapstructure:"file"`
	Postgres   PostgresSinkConfig `yaml:"postgres" mapstructure:"postgres"`
}

// WebhookSinkConfig posts alerts as JSON
type WebhookSinkConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// FileSinkConfig appends alerts to a JSONL file
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// PostgresSinkConfig archives alerts into a table
type PostgresSinkConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	Table        string `yaml:"table" mapstructure:"table"`
	MaxOpenConns int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
}

// RateLimitConfig contains per-client API rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string            `yaml:"level" mapstructure:"level"`
	Format string            `yaml:"format" mapstructure:"format"` // json or console
	File   LoggingFileConfig `yaml:"file" mapstructure:"file"`
}

// LoggingFileConfig contains file logging configuration
type LoggingFileConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8001,
			ReadTimeout:   30 * time.Second,
			IdleTimeout:   60 * time.Second,
			MaxUploadSize: 10 << 20,
		},
		Detection: DetectionConfig{
			Patterns:  []string{"all"},
			MaxLength: 50000,
		},
		Recognizers: RecognizersConfig{
			Statistical: StatisticalConfig{
				Enabled:  false,
				Endpoint: "http://localhost:8081/ents",
				Timeout:  10 * time.Second,
			},
			Transformer: TransformerConfig{
				Enabled:    false,
				ModelPath:  "./models/bert-base-ner.onnx",
				VocabPath:  "./models/vocab.txt",
				Labels:     []string{"O", "B-MISC", "I-MISC", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC"},
				MaxTokens:  512,
				ChunkWords: 400,
				MinScore:   0.7,
			},
		},
		Search: SearchConfig{
			Provider: "tavily",
			Endpoint: "https://api.tavily.com/search",
			Depth:    "advanced",
			Timeout:  30 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:       15 * time.Second,
			SocialTimeout: 20 * time.Second,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxBytes:      50000,
			CourtesyDelay: 200 * time.Millisecond,
			RenderTimeout: 30 * time.Second,
		},
		Social: SocialConfig{
			DeepSearch: true,
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     6 * time.Hour,
			KeyPrefix:      "piiwatch",
		},
		Scan: ScanConfig{
			MaxEntries:        0,
			DefaultMaxResults: 5,
			StatsLimit:        1000,
		},
		Monitor: MonitorConfig{
			MaxEntries:   0,
			HistoryLimit: 30,
			AlertLimit:   50,
			ListLimit:    20,
		},
		Alerts: AlertsConfig{
			Thresholds: map[string]float64{
				"regex":       0.85,
				"transformer": 0.92,
			},
			QueueSize: 100,
			Workers:   1,
			Webhook:   WebhookSinkConfig{Timeout: 10 * time.Second},
			File:      FileSinkConfig{Path: "logs/alerts.jsonl"},
			Postgres:  PostgresSinkConfig{Table: "pii_alerts", MaxOpenConns: 4},
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			Burst:          20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LoggingFileConfig{
				Enabled: false,
				Path:    "logs/piiwatch.log",
			},
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			AllowedOrigins:  []string{"*"}, // Allow all origins for development
		},
	}
}

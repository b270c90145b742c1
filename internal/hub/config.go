// Package hub provides configuration helpers that define runtime defaults,
// validation, and tuning parameters for the PulseHub service.
package hub

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full runtime configuration for the hub service. All
// collaborator URLs are optional; empty values select the in-process
// implementations.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	LogLevel       string

	BatchSize     int
	BatchInterval time.Duration

	ReplayCapacity int
	ReplayOnJoin   int

	RateLimitWindow time.Duration
	RateLimitMax    int64

	PresenceTTL    time.Duration
	OfflineTTL     time.Duration
	TypingInterval time.Duration

	StatsInterval   time.Duration
	ShutdownTimeout time.Duration

	RedisURL  string
	BrokerURL string

	AuthEndpoint string
	StaticTokens map[string]string

	AdminToken string
}

const (
	minPresenceTTL = 300 * time.Second
	maxPresenceTTL = 3600 * time.Second
)

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  4096,
		LogLevel:        "info",
		BatchSize:       100,
		BatchInterval:   50 * time.Millisecond,
		ReplayCapacity:  1000,
		ReplayOnJoin:    50,
		RateLimitWindow: 60 * time.Second,
		RateLimitMax:    100,
		PresenceTTL:     minPresenceTTL,
		OfflineTTL:      3600 * time.Second,
		TypingInterval:  time.Second,
		StatsInterval:   60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// sanitizeConfig replaces unusable values with defaults and clamps the
// presence TTL into its supported range.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = def.BatchInterval
	}
	if cfg.ReplayCapacity <= 0 {
		cfg.ReplayCapacity = def.ReplayCapacity
	}
	if cfg.ReplayOnJoin <= 0 {
		cfg.ReplayOnJoin = def.ReplayOnJoin
	}
	if cfg.ReplayOnJoin > cfg.ReplayCapacity {
		cfg.ReplayOnJoin = cfg.ReplayCapacity
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = def.RateLimitWindow
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = def.RateLimitMax
	}
	if cfg.PresenceTTL < minPresenceTTL {
		cfg.PresenceTTL = minPresenceTTL
	}
	if cfg.PresenceTTL > maxPresenceTTL {
		cfg.PresenceTTL = maxPresenceTTL
	}
	if cfg.OfflineTTL < cfg.PresenceTTL {
		cfg.OfflineTTL = def.OfflineTTL
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = def.TypingInterval
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = def.StatsInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.StaticTokens == nil {
		cfg.StaticTokens = map[string]string{}
	}

	return cfg
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv loads configuration from PULSEHUB_* environment variables
// and an optional pulsehub.yaml file in the working directory or
// /etc/pulsehub. Unset values fall back to defaults.
func NewConfigFromEnv() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("pulsehub")
	v.AutomaticEnv()

	v.SetConfigName("pulsehub")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pulsehub")

	def := defaultConfig()
	v.SetDefault("port", def.Port)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("batch_size", def.BatchSize)
	v.SetDefault("batch_interval", def.BatchInterval)
	v.SetDefault("replay_capacity", def.ReplayCapacity)
	v.SetDefault("replay_on_join", def.ReplayOnJoin)
	v.SetDefault("rate_limit_window", def.RateLimitWindow)
	v.SetDefault("rate_limit_max", def.RateLimitMax)
	v.SetDefault("presence_ttl", def.PresenceTTL)
	v.SetDefault("offline_ttl", def.OfflineTTL)
	v.SetDefault("typing_interval", def.TypingInterval)
	v.SetDefault("stats_interval", def.StatsInterval)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("redis_url", "")
	v.SetDefault("broker_url", "")
	v.SetDefault("auth_endpoint", "")
	v.SetDefault("auth_static_tokens", "")
	v.SetDefault("admin_token", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Port:            v.GetString("port"),
		AllowedOrigins:  splitList(v.GetStringSlice("allowed_origins")),
		MaxMessageSize:  v.GetInt64("max_message_size"),
		LogLevel:        v.GetString("log_level"),
		BatchSize:       v.GetInt("batch_size"),
		BatchInterval:   v.GetDuration("batch_interval"),
		ReplayCapacity:  v.GetInt("replay_capacity"),
		ReplayOnJoin:    v.GetInt("replay_on_join"),
		RateLimitWindow: v.GetDuration("rate_limit_window"),
		RateLimitMax:    v.GetInt64("rate_limit_max"),
		PresenceTTL:     v.GetDuration("presence_ttl"),
		OfflineTTL:      v.GetDuration("offline_ttl"),
		TypingInterval:  v.GetDuration("typing_interval"),
		StatsInterval:   v.GetDuration("stats_interval"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		RedisURL:        v.GetString("redis_url"),
		BrokerURL:       v.GetString("broker_url"),
		AuthEndpoint:    v.GetString("auth_endpoint"),
		StaticTokens:    parseTokenPairs(v.GetString("auth_static_tokens")),
		AdminToken:      v.GetString("admin_token"),
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

// splitList flattens list values that arrive as a single comma-separated
// string, which is how environment variables deliver them.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// parseTokenPairs parses "token:user,token2:user2" into a token map,
// skipping malformed pairs.
func parseTokenPairs(value string) map[string]string {
	tokens := map[string]string{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, userID, ok := strings.Cut(pair, ":")
		if !ok || token == "" || userID == "" {
			continue
		}
		tokens[token] = userID
	}
	return tokens
}

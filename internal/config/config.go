// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings such as
// the bot token, database path, cache connection, generation API access,
// polling cadence, and pricing.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// SunoConfig defines access to the music-generation provider API.
type SunoConfig struct {
	APIKey         string        // SUNO_API_KEY (required)
	BaseURL        string        // SUNO_BASE_URL
	CallbackURL    string        // SUNO_CALLBACK_URL (passed through on submit)
	Model          string        // SUNO_MODEL (e.g. "V5")
	RequestTimeout time.Duration // per-call HTTP timeout
	RateLimit      int           // SUNO_RATE_LIMIT: requests per window (>= 1)
	RateWindow     time.Duration // SUNO_RATE_WINDOW: rolling window duration
}

// PollerConfig defines the background task-polling cadence and safety limits.
type PollerConfig struct {
	Interval       time.Duration // POLL_INTERVAL: scan tick spacing
	Timeout        time.Duration // POLL_TIMEOUT: default per-task wall-clock budget
	BatchSize      int           // POLL_BATCH_SIZE: max tasks per scan
	MaxErrors      int           // MAX_POLL_ERRORS: error ceiling before terminal ERROR
	MinTimeout     time.Duration // MIN_POLL_TIMEOUT: global floor on per-task budgets
	DeliveryWindow time.Duration // DELIVERY_TIMEOUT: audio download budget per track
}

// Config holds all configuration values for the application.
type Config struct {
	// Bot
	BotToken string // BOT_TOKEN (required)

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage
	DBPath    string        // SQLite path
	RedisAddr string        // host:port of the cache store
	RedisDB   int           // redis logical db
	CacheTTL  time.Duration // TTL of cached user projections

	// Pricing
	GenerationCost int // credits charged per generation
	ReferralBonus  int // referral balance granted per referred signup

	// Ops
	AdminPort string // internal health/metrics listener port

	Suno   SunoConfig
	Poller PollerConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		BotToken: getenv("BOT_TOKEN", ""),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DBPath:    getenv("DB_PATH", "sunobot.db"),
		RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getint("REDIS_DB", 0),
		CacheTTL:  getdur("CACHE_TTL", 24*time.Hour),

		GenerationCost: getint("GENERATION_COST", 2),
		ReferralBonus:  getint("REFERRAL_BONUS", 1),

		AdminPort: getenv("ADMIN_PORT", "9090"),

		Suno: SunoConfig{
			APIKey:         getenv("SUNO_API_KEY", ""),
			BaseURL:        strings.TrimRight(getenv("SUNO_BASE_URL", "https://api.sunoapi.org"), "/"),
			CallbackURL:    getenv("SUNO_CALLBACK_URL", "https://example.com/callback"),
			Model:          getenv("SUNO_MODEL", "V5"),
			RequestTimeout: getdur("SUNO_REQUEST_TIMEOUT", 30*time.Second),
			RateLimit:      getint("SUNO_RATE_LIMIT", 10),
			RateWindow:     getdur("SUNO_RATE_WINDOW", 10*time.Second),
		},
		Poller: PollerConfig{
			Interval:       getdur("POLL_INTERVAL", 10*time.Second),
			Timeout:        getdur("POLL_TIMEOUT", 10*time.Minute),
			BatchSize:      getint("POLL_BATCH_SIZE", 20),
			MaxErrors:      getint("MAX_POLL_ERRORS", 3),
			MinTimeout:     getdur("MIN_POLL_TIMEOUT", 10*time.Minute),
			DeliveryWindow: getdur("DELIVERY_TIMEOUT", 60*time.Second),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		return cfg, errors.New("BOT_TOKEN must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.GenerationCost < 1 {
		return cfg, errors.New("GENERATION_COST must be >= 1")
	}
	if cfg.ReferralBonus < 0 {
		return cfg, errors.New("REFERRAL_BONUS must be >= 0")
	}
	if strings.TrimSpace(cfg.AdminPort) == "" {
		return cfg, errors.New("ADMIN_PORT must not be empty")
	}
	if strings.TrimSpace(cfg.Suno.APIKey) == "" {
		return cfg, errors.New("SUNO_API_KEY must not be empty")
	}
	if cfg.Suno.RequestTimeout <= 0 {
		return cfg, errors.New("SUNO_REQUEST_TIMEOUT must be a positive duration")
	}
	if cfg.Suno.RateLimit < 1 {
		return cfg, errors.New("SUNO_RATE_LIMIT must be >= 1")
	}
	if cfg.Suno.RateWindow <= 0 {
		return cfg, errors.New("SUNO_RATE_WINDOW must be a positive duration")
	}
	if cfg.Poller.Interval <= 0 || cfg.Poller.Timeout <= 0 || cfg.Poller.DeliveryWindow <= 0 {
		return cfg, errors.New("poller durations must be positive")
	}
	if cfg.Poller.BatchSize < 1 {
		return cfg, errors.New("POLL_BATCH_SIZE must be >= 1")
	}
	if cfg.Poller.MaxErrors < 1 {
		return cfg, errors.New("MAX_POLL_ERRORS must be >= 1")
	}
	if cfg.Poller.MinTimeout < 0 {
		return cfg, errors.New("MIN_POLL_TIMEOUT must be >= 0")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// plain integers are taken as seconds, matching the original
		// deployment's env files
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

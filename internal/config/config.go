package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the chat webhook service.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	UpdateTimeout    time.Duration `env:"APP_UPDATE_TIMEOUT" envDefault:"55s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"kvchat"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"json"` // json or console

	TelegramToken         string        `env:"TELEGRAM_TOKEN"`
	TelegramAPIBase       string        `env:"TELEGRAM_API_BASE" envDefault:"https://api.telegram.org"`
	TelegramTimeout       time.Duration `env:"TELEGRAM_TIMEOUT" envDefault:"15s"`
	TelegramWebhookSecret string        `env:"TELEGRAM_WEBHOOK_SECRET"`
	// TelegramWebhookURL, when set, is registered with setWebhook at startup.
	TelegramWebhookURL string `env:"TELEGRAM_WEBHOOK_URL"`
	WebhookPath        string `env:"WEBHOOK_PATH" envDefault:"/api"`

	LLMProvider   string        `env:"LLM_PROVIDER" envDefault:"auto"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	GeminiBaseURL string        `env:"GEMINI_API_BASE" envDefault:"https://generativelanguage.googleapis.com"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIModel   string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"45s"`

	RedisURL         string        `env:"REDIS_URL"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	HistoryBackend   string        `env:"HISTORY_BACKEND" envDefault:"auto"`
	HistoryKeyPrefix string        `env:"HISTORY_KEY_PREFIX"`
	HistoryTTL       time.Duration `env:"HISTORY_TTL" envDefault:"0s"`
	HistoryMaxTurns  int           `env:"HISTORY_MAX_TURNS" envDefault:"40"`
	HistoryLockTTL   time.Duration `env:"HISTORY_LOCK_TTL" envDefault:"60s"`
	HistoryLockWait  time.Duration `env:"HISTORY_LOCK_WAIT" envDefault:"30s"`

	PersonaEnabled     bool   `env:"PERSONA_ENABLED" envDefault:"false"`
	PersonaInstruction string `env:"PERSONA_INSTRUCTION"`
	PersonaAck         string `env:"PERSONA_ACK"`

	ReplyReset    string `env:"BOT_REPLY_RESET"`
	ReplyApology  string `env:"BOT_REPLY_APOLOGY"`
	ReplyConfig   string `env:"BOT_REPLY_CONFIG"`
	ReplyDegraded string `env:"BOT_REPLY_DEGRADED"`
	ReplyBusy     string `env:"BOT_REPLY_BUSY"`

	// AdminToken enables the admin history and event feed routes.
	AdminToken string `env:"ADMIN_TOKEN"`
}

// Load reads environment variables and applies safe defaults. Missing credentials are not
// an error here: the affected component is reported unavailable at startup instead.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	// Hosting platforms and older deployments use different names for the same settings.
	if os.Getenv("APP_BIND_ADDR") == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			cfg.BindAddr = ":" + port
		}
	}
	if cfg.TelegramToken == "" {
		cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = strings.TrimSpace(os.Getenv("KV_URL"))
	}

	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.AdminToken = strings.TrimSpace(cfg.AdminToken)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.HistoryBackend = strings.ToLower(strings.TrimSpace(cfg.HistoryBackend))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.UpdateTimeout < time.Second {
		return fmt.Errorf("APP_UPDATE_TIMEOUT must be at least 1s")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.TelegramTimeout <= 0 {
		return fmt.Errorf("TELEGRAM_TIMEOUT must be positive")
	}
	if c.HistoryTTL < 0 {
		return fmt.Errorf("HISTORY_TTL must be >= 0")
	}
	if c.HistoryMaxTurns < 0 {
		return fmt.Errorf("HISTORY_MAX_TURNS must be >= 0")
	}
	if c.HistoryMaxTurns > 0 {
		minTurns := 2
		if c.PersonaEnabled {
			minTurns = 4
		}
		if c.HistoryMaxTurns%2 != 0 || c.HistoryMaxTurns < minTurns {
			return fmt.Errorf("HISTORY_MAX_TURNS must be 0 or an even number >= %d", minTurns)
		}
	}
	if c.HistoryLockTTL <= 0 {
		return fmt.Errorf("HISTORY_LOCK_TTL must be positive")
	}
	if c.HistoryLockWait < 0 {
		return fmt.Errorf("HISTORY_LOCK_WAIT must be >= 0")
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		return fmt.Errorf("WEBHOOK_PATH must start with /")
	}
	switch c.LLMProvider {
	case "auto", "gemini", "openai", "mock":
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not one of auto|gemini|openai|mock", c.LLMProvider)
	}
	switch c.HistoryBackend {
	case "auto", "redis", "postgres", "memory":
	default:
		return fmt.Errorf("HISTORY_BACKEND %q is not one of auto|redis|postgres|memory", c.HistoryBackend)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not one of json|console", c.LogFormat)
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables that are already
// set. A missing file is not an error; loaded reports whether the file was read.
func LoadEnvFile(path string) (loaded bool, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

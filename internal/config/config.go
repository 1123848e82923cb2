package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/elonfeng/govdigest/internal/retry"
	"github.com/elonfeng/govdigest/pkg/country"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	NewsAPI  NewsAPIConfig  `yaml:"news_api"`
	Feeds    []FeedItem     `yaml:"feeds" validate:"dive"`
	LLM      LLMConfig      `yaml:"llm"`
	Retry    retry.Config   `yaml:"retry"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Lock     LockConfig     `yaml:"lock"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// NewsAPIConfig configures the press-release API client.
type NewsAPIConfig struct {
	URL       string        `yaml:"url" validate:"omitempty,url"`
	APIKey    string        `yaml:"api_key"`
	PerPage   int           `yaml:"per_page" validate:"gte=1,lte=500"`
	BatchSize int           `yaml:"batch_size" validate:"gte=1,lte=100"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
}

// FeedItem is a government RSS/Atom feed assigned to one country.
type FeedItem struct {
	Country string `yaml:"country" validate:"required,country"`
	Name    string `yaml:"name" validate:"required"`
	URL     string `yaml:"url" validate:"required,url"`
}

// LLMConfig configures the completion backend.
type LLMConfig struct {
	Provider          string        `yaml:"provider" validate:"omitempty,oneof=openrouter openai anthropic"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"` // custom endpoint (optional)
	Temperature       float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `yaml:"max_tokens" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"` // 0 disables limiting
}

// PipelineConfig configures digest generation.
type PipelineConfig struct {
	BackfillDays          int      `yaml:"backfill_days" validate:"gte=1"`
	Concurrency           int      `yaml:"concurrency" validate:"gte=1,lte=64"`
	MaxReleasesPerCountry int      `yaml:"max_releases_per_country" validate:"gte=0"` // 0 means no cap
	WeekEnd               string   `yaml:"week_end" validate:"oneof=monday tuesday wednesday thursday friday saturday sunday"`
	CountryFallback       string   `yaml:"country_fallback" validate:"oneof=degrade fail"`
	PruneDays             int      `yaml:"prune_days" validate:"gte=0"`
	Countries             []string `yaml:"countries" validate:"dive,country"` // empty means all supported
	ExcludeKeywords       []string `yaml:"exclude_keywords"`
}

// WeekEndDay returns the configured week-end weekday.
func (p PipelineConfig) WeekEndDay() time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), p.WeekEnd) {
			return d
		}
	}
	return time.Sunday
}

// ScheduleConfig configures the cron trigger for the schedule command.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

// LockConfig configures the cross-process run lock. An empty RedisURL
// disables it.
type LockConfig struct {
	RedisURL string        `yaml:"redis_url"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl" validate:"gt=0"`
}

// MetricsConfig configures run metrics export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `yaml:"job"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./digests.db"},
		NewsAPI: NewsAPIConfig{
			PerPage:   100,
			BatchSize: 50,
			Timeout:   30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "openrouter",
			Temperature: 0.3,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Retry: retry.DefaultConfig(),
		Pipeline: PipelineConfig{
			BackfillDays:          1,
			Concurrency:           4,
			MaxReleasesPerCountry: 5,
			WeekEnd:               "sunday",
			CountryFallback:       "degrade",
			PruneDays:             90,
		},
		Schedule: ScheduleConfig{Cron: "15 2 * * *"},
		Lock: LockConfig{
			Key: "govdigest:run",
			TTL: 2 * time.Hour,
		},
		Metrics: MetricsConfig{Job: "govdigest"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env (if present), then the YAML file, then env var overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Codes must be in the supported table; pseudo-codes like WHO are longer than two letters.
	_ = v.RegisterValidation("country", func(fl validator.FieldLevel) bool {
		return country.Supported(fl.Field().String())
	})
	return v
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.NewsAPI.URL == "" && len(c.Feeds) == 0 {
		return errors.New("invalid config: news_api.url or at least one feed is required")
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DIGEST_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("WORLD_NEWS_API_URL"); v != "" {
		cfg.NewsAPI.URL = v
	}
	if v := os.Getenv("WORLD_NEWS_API_KEY"); v != "" {
		cfg.NewsAPI.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "openrouter"
	}
	if v := os.Getenv("OPENROUTER_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "anthropic"
	}
	if v := os.Getenv("BACKFILL_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BACKFILL_DAYS: %w", err)
		}
		cfg.Pipeline.BackfillDays = n
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	return nil
}

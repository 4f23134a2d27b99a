package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Source   SourceConfig   `yaml:"source"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Filter   FilterConfig   `yaml:"filter"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SourceConfig selects and configures the post source.
type SourceConfig struct {
	Provider string        `yaml:"provider"` // "twitter" or "nitter"
	Twitter  TwitterConfig `yaml:"twitter"`
	Nitter   NitterConfig  `yaml:"nitter"`
}

// TwitterConfig for the v2 search API.
type TwitterConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token"`
}

// NitterConfig for the Nitter RSS fallback.
type NitterConfig struct {
	URL string `yaml:"url"`
}

// ScheduleConfig holds cron specs for each job, evaluated in Timezone.
type ScheduleConfig struct {
	Timezone   string   `yaml:"timezone"`
	Scrape     []string `yaml:"scrape"`
	Solve      string   `yaml:"solve"`
	Pick       string   `yaml:"pick"`
	JobTimeout string   `yaml:"job_timeout"`
}

// ParseJobTimeout returns the per-run ceiling as time.Duration.
func (s ScheduleConfig) ParseJobTimeout() time.Duration {
	d, err := time.ParseDuration(s.JobTimeout)
	if err != nil || d <= 0 {
		return 9 * time.Minute
	}
	return d
}

// AlertsConfig configures notification destinations.
type AlertsConfig struct {
	SMS     SMSConfig     `yaml:"sms"`
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SMSConfig for Twilio text messages.
type SMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AccountSID string `yaml:"account_sid"`
	Token      string `yaml:"token"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
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

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	SiteURL string `yaml:"site_url"`
}

// FilterConfig configures which posts may become puzzle content.
type FilterConfig struct {
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./birdle.db"},
		Source: SourceConfig{
			Provider: "twitter",
			Twitter:  TwitterConfig{BaseURL: "https://api.twitter.com"},
			Nitter:   NitterConfig{URL: "https://nitter.net"},
		},
		Schedule: ScheduleConfig{
			Timezone:   "Europe/Madrid",
			Scrape:     []string{"0 7 * * *", "30 7 * * *"},
			Solve:      "0 8 * * *",
			Pick:       "0 9 * * *",
			JobTimeout: "9m",
		},
		Server: ServerConfig{Port: 8080, SiteURL: "https://birdle.app"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
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

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Source.Provider {
	case "twitter", "nitter":
	default:
		return fmt.Errorf("unknown source provider %q", c.Source.Provider)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIRDLE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("BIRDLE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		cfg.Source.Twitter.BearerToken = v
	}
	if v := os.Getenv("NITTER_URL"); v != "" {
		cfg.Source.Nitter.URL = v
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Alerts.SMS.AccountSID = v
	}
	if v := os.Getenv("TWILIO_TOKEN"); v != "" {
		cfg.Alerts.SMS.Token = v
	}
	if v := os.Getenv("TWILIO_SOURCE_NUMBER"); v != "" {
		cfg.Alerts.SMS.From = v
	}
	if v := os.Getenv("TWILIO_TARGET_NUMBER"); v != "" {
		cfg.Alerts.SMS.To = v
	}
	if s := cfg.Alerts.SMS; s.AccountSID != "" && s.Token != "" && s.From != "" && s.To != "" {
		cfg.Alerts.SMS.Enabled = true
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}

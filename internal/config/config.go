// Package config loads application configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"farewatch/internal/model"
)

// Config holds all farewatch configuration.
type Config struct {
	DBPath      string   `yaml:"db_path"`
	SecretsPath string   `yaml:"secrets_path"`
	ListenAddr  string   `yaml:"listen_addr"`
	Provider    string   `yaml:"provider"` // "skyquery" or "airdist"
	Currency    string   `yaml:"currency"`
	WebhookURL  string   `yaml:"webhook_url"`
	LogLevel    string   `yaml:"log_level"`
	Denylist    []string `yaml:"denylist"` // carrier names/codes and airport codes

	Refresh RefreshConfig `yaml:"refresh"`
}

// RefreshConfig tunes the refresh pipeline.
type RefreshConfig struct {
	Hours        []int         `yaml:"hours"`
	Concurrency  int           `yaml:"concurrency"`
	Delay        time.Duration `yaml:"delay"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	RateRPS      float64       `yaml:"rate_rps"`
	RateBurst    int           `yaml:"rate_burst"`
}

// Load reads the YAML file at path (a missing file yields defaults), applies
// environment overrides, and fills in defaults.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.defaults()
	if cfg.Provider != "skyquery" && cfg.Provider != "airdist" {
		return cfg, fmt.Errorf("unknown provider %q (want skyquery or airdist)", cfg.Provider)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FAREWATCH_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("FAREWATCH_SECRETS_PATH"); v != "" {
		c.SecretsPath = v
	}
	if v := os.Getenv("FAREWATCH_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("FAREWATCH_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("FAREWATCH_CURRENCY"); v != "" {
		c.Currency = v
	}
	if v := os.Getenv("FAREWATCH_WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("FAREWATCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FAREWATCH_DENYLIST"); v != "" {
		c.Denylist = splitCSV(v)
	}
	if v := os.Getenv("FAREWATCH_REFRESH_HOURS"); v != "" {
		var hours []int
		for _, part := range splitCSV(v) {
			if h, err := strconv.Atoi(part); err == nil {
				hours = append(hours, h)
			}
		}
		if len(hours) > 0 {
			c.Refresh.Hours = hours
		}
	}
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "farewatch.db"
	}
	if c.SecretsPath == "" {
		c.SecretsPath = "farewatch-secrets.json"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8422"
	}
	if c.Provider == "" {
		c.Provider = "skyquery"
	}
	if c.Currency == "" {
		c.Currency = model.DefaultCurrency
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Refresh.Hours) == 0 {
		c.Refresh.Hours = []int{8, 12, 16, 20}
	}
	if c.Refresh.Concurrency <= 0 {
		c.Refresh.Concurrency = 1
	}
	if c.Refresh.Delay <= 0 {
		c.Refresh.Delay = 400 * time.Millisecond
	}
	if c.Refresh.FetchTimeout <= 0 {
		c.Refresh.FetchTimeout = 45 * time.Second
	}
	if c.Refresh.RateRPS <= 0 {
		c.Refresh.RateRPS = 0.5
	}
	if c.Refresh.RateBurst <= 0 {
		c.Refresh.RateBurst = 2
	}
}

// SlogLevel maps the configured level string onto a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

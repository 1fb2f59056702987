package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string

	// Summarizer connection
	SummarizerURL    string
	SummarizerAPIKey string

	// Auth for the local API; empty disables it.
	APIKey string

	// Upload limits
	MaxUploadBytes int64

	// Applies to request/response calls only; the event stream has none.
	RequestTimeout time.Duration

	StatsWindow    time.Duration
	WSWriteTimeout time.Duration

	LogLevel string
}

var defaults = map[string]any{
	"PORT":               "8090",
	"SUMMARIZER_URL":     "http://localhost:8000",
	"SUMMARIZER_API_KEY": "",
	"PAGEWATCH_API_KEY":  "",
	"MAX_UPLOAD_BYTES":   int64(52428800), // 50MB
	"REQUEST_TIMEOUT":    30 * time.Second,
	"STATS_WINDOW":       time.Hour,
	"WS_WRITE_TIMEOUT":   10 * time.Second,
	"LOG_LEVEL":          "info",
}

// Load reads configuration from the environment and, when configPath is
// not empty, from a YAML file. Environment variables take precedence.
func Load(configPath string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Config{
		Port:             v.GetString("PORT"),
		SummarizerURL:    strings.TrimRight(v.GetString("SUMMARIZER_URL"), "/"),
		SummarizerAPIKey: v.GetString("SUMMARIZER_API_KEY"),
		APIKey:           v.GetString("PAGEWATCH_API_KEY"),
		MaxUploadBytes:   v.GetInt64("MAX_UPLOAD_BYTES"),
		RequestTimeout:   v.GetDuration("REQUEST_TIMEOUT"),
		StatsWindow:      v.GetDuration("STATS_WINDOW"),
		WSWriteTimeout:   v.GetDuration("WS_WRITE_TIMEOUT"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
	}

	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 1 * time.Hour
	}
	if cfg.WSWriteTimeout <= 0 {
		cfg.WSWriteTimeout = 10 * time.Second
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	u, err := url.Parse(c.SummarizerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SUMMARIZER_URL must be an absolute http(s) URL, got %q", c.SummarizerURL)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LOG_LEVEL, defaulting to info.
func (c Config) Level() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
}

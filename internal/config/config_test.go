package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Empty values are treated as unset.
	for k := range defaults {
		t.Setenv(k, "")
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8090" {
		t.Errorf("expected port 8090, got %q", cfg.Port)
	}
	if cfg.SummarizerURL != "http://localhost:8000" {
		t.Errorf("expected default summarizer url, got %q", cfg.SummarizerURL)
	}
	if cfg.MaxUploadBytes != 52428800 {
		t.Errorf("expected 50MB upload limit, got %d", cfg.MaxUploadBytes)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.APIKey != "" {
		t.Errorf("expected no api key, got %q", cfg.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SUMMARIZER_URL", "https://summarizer.example.com/")
	t.Setenv("PAGEWATCH_API_KEY", "local-key")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9999" || cfg.APIKey != "local-key" || cfg.MaxUploadBytes != 1024 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.SummarizerURL != "https://summarizer.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.SummarizerURL)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.RequestTimeout)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Level())
	}
}

func TestLoad_ConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagewatch.yaml")
	data := "port: \"7000\"\nsummarizer_url: http://files.internal:8000\nstats_window: 5m\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "7100" {
		t.Errorf("expected env to override file, got %q", cfg.Port)
	}
	if cfg.SummarizerURL != "http://files.internal:8000" {
		t.Errorf("expected url from file, got %q", cfg.SummarizerURL)
	}
	if cfg.StatsWindow != 5*time.Minute {
		t.Errorf("expected 5m stats window, got %v", cfg.StatsWindow)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Port:           "8090",
		SummarizerURL:  "http://localhost:8000",
		MaxUploadBytes: 1,
		RequestTimeout: time.Second,
		LogLevel:       "info",
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Port = "" }},
		{"relative url", func(c *Config) { c.SummarizerURL = "localhost:8000" }},
		{"ftp url", func(c *Config) { c.SummarizerURL = "ftp://host" }},
		{"zero upload", func(c *Config) { c.MaxUploadBytes = 0 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

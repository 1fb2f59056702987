package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dgallion1/pagewatch/internal/config"
	"github.com/dgallion1/pagewatch/internal/library"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "pagewatch",
	Short: "Upload PDFs to the summarizer and follow per-page summaries as they stream",
	Long: `pagewatch uploads a PDF to the summarization service, consumes its event
stream and reconciles it into per-page summaries. It can run a local API
with a WebSocket feed (serve), follow one upload in the terminal (upload)
or manage documents the service already stores.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
}

// loadConfig loads the dotenv file, then configuration, and validates it.
func loadConfig() (config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newJSONLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
}

func newTextLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

func newLibraryClient(cfg config.Config, log *slog.Logger) *library.Client {
	return library.NewClient(cfg.SummarizerURL, cfg.SummarizerAPIKey, cfg.RequestTimeout, log)
}

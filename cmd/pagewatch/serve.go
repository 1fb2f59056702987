package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/pagewatch/internal/api"
	"github.com/dgallion1/pagewatch/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API and WebSocket feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newJSONLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client := newLibraryClient(cfg, log)
		defer client.Close()

		sessions := session.NewController(client, client, session.NewStreamStats(cfg.StatsWindow), log)
		srv := api.NewServer(ctx, sessions, client, log, cfg)

		httpServer := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       120 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("starting pagewatch", "port", cfg.Port, "summarizer", cfg.SummarizerURL)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		// Graceful shutdown.
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down...")

			sessions.Cancel()
			srv.Close()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return httpServer.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

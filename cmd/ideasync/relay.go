package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Diduck/notion-idea-pipeline/internal/relay"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the CORS relay in front of the Notion API",
	Long: `Forward every request to the Notion API and add permissive CORS headers
so browser clients can call Notion. Point notion.relay_url at this address.`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func runRelay(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	handler := relay.NewHandler(relay.Options{
		Upstream:     cfg.Relay.Upstream,
		HTTPClient:   &http.Client{Timeout: cfg.Relay.Timeout.Std()},
		MaxBodyBytes: cfg.Relay.MaxBodyBytes,
		Logger:       logger,
	})
	srv := &http.Server{Addr: cfg.Relay.Addr, Handler: handler}

	go func() {
		logger.Info("relay starting", "address", cfg.Relay.Addr, "upstream", handler.Upstream())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("relay shutdown error", "error", err)
	}
	logger.Info("relay stopped")
	return nil
}

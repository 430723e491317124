package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vodlive/hlsingest/internal/hlsserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve [manifest-url]",
	Short: "Serve a manifest's virtual byte stream over HTTP",
	Long: `Resolve an HLS manifest and serve its virtual byte stream (the fMP4
init segment followed by tracked media segments, laid out as one
continuous addressable resource) over a debug HTTP server exposing:

  GET /stream  - the virtual byte stream, with Range support
  GET /status  - the facade's current state as JSON
  GET /health  - circuit breaker state of the HTTP fetch clients as JSON

This is a reference/debug server, not a CDN-facing origin: it exists to
let you inspect and test the ingest pipeline directly.

Example:
  hlsingest serve https://example.com/master.m3u8 --port 8080`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "bind host (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "bind port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initLogger(cfg)
	logger := slog.Default()

	manifestURL := args[0]

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	in, err := buildInput(manifestURL, &cfg.HLS, logger)
	if err != nil {
		return err
	}
	defer in.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := in.ListVariants(ctx); err != nil {
		return fmt.Errorf("resolving manifest: %w", err)
	}

	logger.Info("manifest resolved",
		slog.String("manifest_url", manifestURL),
		slog.Bool("live", in.IsLive()),
		slog.Float64("duration_seconds", in.ComputeDuration()),
	)

	srv := hlsserver.New(hlsserver.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, in, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

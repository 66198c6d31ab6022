package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/bindery/internal/bundle"
	"github.com/lehigh-university-libraries/bindery/internal/handlers"
	"github.com/lehigh-university-libraries/bindery/internal/history"
	"github.com/lehigh-university-libraries/bindery/internal/httpx"
	"github.com/lehigh-university-libraries/bindery/internal/jobs"
	"github.com/lehigh-university-libraries/bindery/internal/ledger"
	"github.com/lehigh-university-libraries/bindery/internal/notify"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the conversion HTTP service",
		Long: `Starts the conversion service.

Clients POST page images to /convert as multipart form data, where each
file's form field name is its path-like key (book/page.png). Progress is
available from /status/{id} or pushed over the /ws websocket, and finished
books are downloaded as one zip from /download/{id}.`,
		Example: `  # Start server on the configured address (default :8888)
  bindery serve

  # Start server on a custom address with a config file
  bindery serve --addr :3000 --config bindery.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			hub := notify.NewHub(slog.Default())
			hub.Start()
			defer hub.Stop()

			opts := []jobs.Option{jobs.WithNotifier(hub)}
			if cfg.DatabaseURL != "" {
				store, err := history.Open(ctx, cfg.DatabaseURL, slog.Default())
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Migrate(ctx, "up"); err != nil {
					return err
				}
				opts = append(opts, jobs.WithRecorder(store))
				slog.Info("Recording job history", "database", "postgres")
			}

			l := ledger.New()
			orchestrator := newOrchestrator(cfg, l, opts...)

			var limiter *httpx.RateLimiter
			if cfg.RateLimit.RPS > 0 {
				limiter = httpx.NewRateLimiter(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
				if err := limiter.TrustProxies(cfg.RateLimit.TrustedProxies); err != nil {
					return err
				}
			}

			mux := http.NewServeMux()
			handler := handlers.New(orchestrator, l, bundle.New(cfg.OutputDir, cfg.Profile().Ext()))
			handler.Routes(mux, hub, limiter)

			chain := httpx.Chain(mux,
				httpx.RequestIDMiddleware,
				httpx.AccessLogMiddleware,
				httpx.RecoveryMiddleware,
				httpx.RequestSizeLimitMiddleware(cfg.MaxUploadBytes),
			)
			server := &http.Server{
				Addr:              cfg.Addr,
				Handler:           chain,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Bindery service available", "addr", cfg.Addr, "output_dir", cfg.OutputDir, "format", cfg.Converter.OutputFormat)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-ctx.Done():
				slog.Info("Shutting down server...")
			case err := <-serverErr:
				return err
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancelShutdown()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server shutdown failed", "err", err)
			}
			if err := orchestrator.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Conversion jobs interrupted by shutdown", "err", err)
			}
			slog.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides config)")

	return cmd
}

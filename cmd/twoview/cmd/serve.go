package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/twoview/internal/config"
	"github.com/MeKo-Tech/twoview/internal/server"
)

// Rate limit state of clients idle for a day is dropped.
const (
	pruneInterval = time.Minute
	pruneIdle     = 24 * time.Hour
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the reconstruction API",
	Long: `Start an HTTP server that provides REST and WebSocket endpoints for reconstruction.

The server provides the following endpoints:
  POST /v1/reconstruct  - Reconstruct an uploaded pair (left, right, rig)
  POST /v1/disparity    - Disparity map of an uploaded pair as PNG
  POST /v1/batch        - Reconstruct several pairs sent as JSON
  GET  /ws/reconstruct  - Reconstruction with progress over WebSocket
  GET  /health          - Health check endpoint
  GET  /config          - Effective pipeline configuration
  GET  /metrics         - Prometheus metrics

Examples:
  twoview serve
  twoview serve --port 8080
  twoview serve --host 0.0.0.0 --port 3000 --requests-per-minute 30`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	keys := addStageFlags(serveCmd)
	d := config.DefaultConfig().Server
	f := serveCmd.Flags()
	f.StringP("host", "H", d.Host, "server host")
	f.IntP("port", "p", d.Port, "server port")
	f.String("cors-origin", d.CORSOrigin, "CORS allowed origins")
	f.Int("max-upload-size", d.MaxUploadMB, "maximum upload size in MB")
	f.Int("timeout", d.TimeoutSec, "request timeout in seconds")
	f.Int("shutdown-timeout", d.ShutdownTimeout, "shutdown timeout in seconds")
	f.Int("requests-per-minute", d.RateLimit.RequestsPerMinute, "maximum requests per minute per client (0 = unlimited)")
	f.Int("requests-per-hour", d.RateLimit.RequestsPerHour, "maximum requests per hour per client (0 = unlimited)")
	f.Int("max-requests-per-day", d.RateLimit.MaxRequestsPerDay, "maximum requests per day per client (0 = unlimited)")
	f.Int64("max-data-per-day", d.RateLimit.MaxDataPerDayMB, "maximum uploaded MB per day per client (0 = unlimited)")

	keys["server.host"] = "host"
	keys["server.port"] = "port"
	keys["server.cors_origin"] = "cors-origin"
	keys["server.max_upload_mb"] = "max-upload-size"
	keys["server.timeout_sec"] = "timeout"
	keys["server.shutdown_timeout"] = "shutdown-timeout"
	keys["server.rate_limit.requests_per_minute"] = "requests-per-minute"
	keys["server.rate_limit.requests_per_hour"] = "requests-per-hour"
	keys["server.rate_limit.max_requests_per_day"] = "max-requests-per-day"
	keys["server.rate_limit.max_data_per_day_mb"] = "max-data-per-day"
	bindConfig(serveCmd, keys)
}

// buildServerConfig maps the resolved configuration to server.Config.
func buildServerConfig(cfg *config.Config) (server.Config, error) {
	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return server.Config{}, err
	}
	s := cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return server.Config{}, fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", s.Port)
	}
	return server.Config{
		Host:           s.Host,
		Port:           s.Port,
		CORSOrigin:     s.CORSOrigin,
		MaxUploadMB:    int64(s.MaxUploadMB),
		TimeoutSec:     s.TimeoutSec,
		PipelineConfig: pcfg,
		RateLimit: server.RateLimitConfig{
			RequestsPerMinute: s.RateLimit.RequestsPerMinute,
			RequestsPerHour:   s.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: s.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     s.RateLimit.MaxDataPerDayMB * 1024 * 1024,
		},
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()
	serverConfig, err := buildServerConfig(cfg)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(serverConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	timeout := time.Duration(serverConfig.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		// responses are written after the reconstruction finishes
		WriteTimeout: timeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	go srv.PruneClients(ctx, pruneInterval, pruneIdle)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting reconstruction server", "host", serverConfig.Host, "port", serverConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil {
			slog.Error("Server error", "error", serveErr)
		}
	}
	stop()

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}
	if err := srv.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}
	slog.Info("Graceful shutdown completed")
	return serveErr
}

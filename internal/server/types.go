package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/twoview/internal/pipeline"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    *pipeline.Pipeline
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	maxBatch    int
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigin     string
	MaxUploadMB    int64
	TimeoutSec     int
	MaxBatchPairs  int // 0 uses 10
	PipelineConfig pipeline.Config
	RateLimit      RateLimitConfig
}

// RateLimitConfig holds per-client limits. Zero disables a limit; all zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

func (c RateLimitConfig) enabled() bool {
	return c.RequestsPerMinute > 0 || c.RequestsPerHour > 0 || c.MaxRequestsPerDay > 0 || c.MaxDataPerDay > 0
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ReconstructResponse is the JSON body of a reconstruction. Points holds x, y, z, r, g, b rows
// when the request asked for them.
type ReconstructResponse struct {
	Success bool             `json:"success"`
	Result  *pipeline.Result `json:"result"`
	Frame   string           `json:"frame"`
	Points  [][6]float64     `json:"points,omitempty"`
}

// NewServer creates a new reconstruction server instance.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.New(config.PipelineConfig)
	if err != nil {
		return nil, err
	}

	s := &Server{
		pipeline:    pl,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		maxBatch:    config.MaxBatchPairs,
	}
	if s.maxBatch <= 0 {
		s.maxBatch = 10
	}
	if rl := config.RateLimit; rl.enabled() {
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/config", s.corsMiddleware(s.configHandler))
	mux.HandleFunc("/v1/reconstruct", s.corsMiddleware(s.rateLimitMiddleware(s.reconstructHandler)))
	mux.HandleFunc("/v1/disparity", s.corsMiddleware(s.rateLimitMiddleware(s.disparityHandler)))
	mux.HandleFunc("/v1/batch", s.corsMiddleware(s.rateLimitMiddleware(s.batchHandler)))
	mux.HandleFunc("/ws/reconstruct", s.rateLimitMiddleware(s.reconstructWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// PruneClients drops rate limit state of clients idle for longer than idle, checking every
// interval until ctx is done.
func (s *Server) PruneClients(ctx context.Context, interval, idle time.Duration) {
	if s.rateLimiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Prune(idle); n > 0 {
				slog.Debug("Pruned idle rate limit clients", "count", n)
			}
		}
	}
}

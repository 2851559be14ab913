package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/dataset"
	"github.com/MeKo-Tech/twoview/internal/rectify"
	"github.com/MeKo-Tech/twoview/internal/utils"
	"github.com/MeKo-Tech/twoview/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// configHandler returns the effective pipeline configuration and accumulated stage timings.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Reconstruction pipeline not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Info())
}

// requestContext bounds a reconstruction by the configured timeout.
func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(s.timeoutSec)*time.Second)
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	var degenerate *rectify.DegenerateGeometryError
	var invalid *utils.InvalidConfigurationError
	var imgErr *utils.ImageProcessingError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &degenerate):
		return http.StatusUnprocessableEntity
	case errors.As(err, &invalid), errors.As(err, &imgErr),
		errors.Is(err, dataset.ErrFormat), errors.Is(err, camera.ErrInvalidCamera):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

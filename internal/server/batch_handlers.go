package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/twoview/internal/pipeline"
)

// BatchRequest is the JSON body of /v1/batch. Images are base64 encoded by encoding/json.
type BatchRequest struct {
	Pairs        []BatchPair `json:"pairs"`
	MaxDisparity int         `json:"max_disparity,omitempty"`
}

// BatchPair is one stereo pair of a batch request. Rig holds the YAML rig document.
type BatchPair struct {
	Name  string `json:"name"`
	Left  []byte `json:"left"`
	Right []byte `json:"right"`
	Rig   string `json:"rig"`
}

// BatchResponse is the response for batch processing.
type BatchResponse struct {
	Success bool                   `json:"success"`
	Results []BatchResult          `json:"results"`
	Summary BatchProcessingSummary `json:"summary"`
}

// BatchResult is the outcome of one pair.
type BatchResult struct {
	Name    string           `json:"name"`
	Success bool             `json:"success"`
	Result  *pipeline.Result `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// BatchProcessingSummary provides summary statistics for batch processing.
type BatchProcessingSummary struct {
	TotalItems    int     `json:"total_items"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	TotalPoints   int     `json:"total_points"`
	TotalDuration float64 `json:"total_duration_seconds"`
	AvgItemTime   float64 `json:"avg_item_time_seconds"`
}

// batchHandler reconstructs several pairs in one request. A failing pair is reported in its
// result entry and does not fail the request.
func (s *Server) batchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB<<20)
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reconstructRequestsTotal.WithLabelValues("batch", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Failed to parse JSON request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Pairs) == 0 {
		reconstructRequestsTotal.WithLabelValues("batch", "error").Inc()
		s.writeErrorResponse(w, "No pairs provided in batch request", http.StatusBadRequest)
		return
	}
	if len(req.Pairs) > s.maxBatch {
		reconstructRequestsTotal.WithLabelValues("batch", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Batch size %d exceeds limit of %d pairs", len(req.Pairs), s.maxBatch),
			http.StatusBadRequest)
		return
	}

	start := time.Now()
	results := make([]BatchResult, len(req.Pairs))
	rc := RequestConfig{MaxDisparity: req.MaxDisparity}

	// Pairs that fail to decode are reported directly; the rest go through the worker pool.
	var jobs []pipeline.Job
	var slots []int
	for i, pair := range req.Pairs {
		results[i].Name = pair.Name
		uploadSizeBytes.Observe(float64(len(pair.Left) + len(pair.Right)))
		scene, err := decodeScene(bytes.NewReader(pair.Left), bytes.NewReader(pair.Right), strings.NewReader(pair.Rig))
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		job := scene.Job()
		if pair.Name != "" {
			job.Name = pair.Name
		}
		job.Hints = rc.apply(job.Hints, s.pipeline.Config().Filter.ZRange)
		jobs = append(jobs, job)
		slots = append(slots, i)
	}

	if len(jobs) > 0 {
		var mu sync.Mutex
		cfg := s.pipeline.Config()
		cfg.Parallel.ProgressCallback = nil
		cfg.Parallel.ErrorHandler = func(i int, _ pipeline.Job, err error) {
			mu.Lock()
			defer mu.Unlock()
			results[slots[i]].Error = err.Error()
		}
		bp, err := pipeline.New(cfg)
		if err != nil {
			reconstructRequestsTotal.WithLabelValues("batch", "error").Inc()
			s.writeErrorResponse(w, fmt.Sprintf("Failed to create pipeline: %v", err), http.StatusInternalServerError)
			return
		}
		ctx, cancel := s.requestContext(r.Context())
		defer cancel()
		out, err := bp.ProcessPairs(ctx, jobs)
		if out == nil && err != nil {
			reconstructRequestsTotal.WithLabelValues("batch", "error").Inc()
			s.writeErrorResponse(w, fmt.Sprintf("Batch processing failed: %v", err), statusFor(err))
			return
		}
		for k, res := range out {
			if res == nil {
				continue
			}
			results[slots[k]].Success = true
			results[slots[k]].Result = res
			if results[slots[k]].Name == "" {
				results[slots[k]].Name = res.Name
			}
		}
	}

	summary := BatchProcessingSummary{TotalItems: len(results)}
	for _, br := range results {
		if br.Success {
			summary.Successful++
			summary.TotalPoints += br.Result.Summary.Points
		} else {
			summary.Failed++
		}
	}
	summary.TotalDuration = time.Since(start).Seconds()
	summary.AvgItemTime = summary.TotalDuration / float64(summary.TotalItems)

	status := "success"
	if summary.Failed > 0 {
		status = "partial"
	}
	reconstructRequestsTotal.WithLabelValues("batch", status).Inc()

	writeJSON(w, http.StatusOK, BatchResponse{
		Success: summary.Failed == 0,
		Results: results,
		Summary: summary,
	})
}

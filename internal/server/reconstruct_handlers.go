package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/twoview/internal/dataset"
	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/postfilter"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

// RequestConfig holds per-request overrides of the scene hints.
type RequestConfig struct {
	MaxDisparity int
	ZMin         *float64
	ZMax         *float64
}

// parseRequestConfig reads overrides through get, which is usually r.FormValue.
func parseRequestConfig(get func(string) string) (RequestConfig, error) {
	var rc RequestConfig
	if v := get("max_disparity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return rc, utils.InvalidConfig("max_disparity", v, "must be a positive integer")
		}
		rc.MaxDisparity = n
	}
	for _, f := range []struct {
		key string
		dst **float64
	}{{"z_min", &rc.ZMin}, {"z_max", &rc.ZMax}} {
		v := get(f.key)
		if v == "" {
			continue
		}
		z, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rc, utils.InvalidConfig(f.key, v, "must be a number")
		}
		*f.dst = &z
	}
	return rc, nil
}

// apply merges the overrides into h. base is the depth range used when h carries none.
func (rc RequestConfig) apply(h pipeline.Hints, base postfilter.ZRange) pipeline.Hints {
	if rc.MaxDisparity > 0 {
		h.MaxDisparity = rc.MaxDisparity
	}
	if rc.ZMin == nil && rc.ZMax == nil {
		return h
	}
	zr := base
	if h.ZRange != nil {
		zr = *h.ZRange
	}
	if rc.ZMin != nil {
		zr.Min = *rc.ZMin
	}
	if rc.ZMax != nil {
		zr.Max = *rc.ZMax
	}
	h.ZRange = &zr
	return h
}

// decodeScene builds a scene from encoded images and a YAML rig.
func decodeScene(left, right, rig io.Reader) (*dataset.Scene, error) {
	rg, err := dataset.ParseRig(rig)
	if err != nil {
		return nil, err
	}
	l, err := utils.DecodeImage(left)
	if err != nil {
		return nil, fmt.Errorf("left image: %w", err)
	}
	r, err := utils.DecodeImage(right)
	if err != nil {
		return nil, fmt.Errorf("right image: %w", err)
	}
	return rg.Scene(l, r)
}

// parseStereoRequest reads the multipart fields left, right and rig. The rig may be sent as a
// file or as a plain form value.
func (s *Server) parseStereoRequest(w http.ResponseWriter, r *http.Request) (*dataset.Scene, RequestConfig, int, error) {
	maxBytes := s.maxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, RequestConfig{}, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request larger than %d MB", s.maxUploadMB)
		}
		return nil, RequestConfig{}, http.StatusBadRequest, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	var parts [2][]byte
	for i, field := range []string{"left", "right"} {
		file, header, err := r.FormFile(field)
		if err != nil {
			return nil, RequestConfig{}, http.StatusBadRequest, fmt.Errorf("missing %s image: %w", field, err)
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return nil, RequestConfig{}, http.StatusBadRequest, fmt.Errorf("read %s image: %w", field, err)
		}
		uploadSizeBytes.Observe(float64(header.Size))
		parts[i] = data
	}

	var rig io.Reader
	if file, _, err := r.FormFile("rig"); err == nil {
		defer func() { _ = file.Close() }()
		rig = file
	} else if v := r.FormValue("rig"); v != "" {
		rig = strings.NewReader(v)
	} else {
		return nil, RequestConfig{}, http.StatusBadRequest, errors.New("missing rig description")
	}

	rc, err := parseRequestConfig(r.FormValue)
	if err != nil {
		return nil, RequestConfig{}, http.StatusBadRequest, err
	}
	scene, err := decodeScene(bytes.NewReader(parts[0]), bytes.NewReader(parts[1]), rig)
	if err != nil {
		return nil, RequestConfig{}, statusFor(err), err
	}
	return scene, rc, http.StatusOK, nil
}

// pipelineFor returns the shared pipeline specialized to the scene hints and request overrides.
func (s *Server) pipelineFor(scene *dataset.Scene, rc RequestConfig) (*pipeline.Pipeline, error) {
	return s.pipeline.WithHints(rc.apply(scene.Hints, s.pipeline.Config().Filter.ZRange))
}

// run reconstructs scene within the request timeout.
func (s *Server) run(ctx context.Context, scene *dataset.Scene, rc RequestConfig, cb pipeline.ProgressCallback) (*pipeline.Result, *pipeline.Pipeline, error) {
	p, err := s.pipelineFor(scene, rc)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := s.requestContext(ctx)
	defer cancel()
	res, err := p.TwoViewWithProgress(ctx, scene.Left, scene.Right, cb)
	if err != nil {
		return nil, p, err
	}
	if res.Name == "" {
		res.Name = scene.Name
	}
	return res, p, nil
}

// reconstructHandler turns an uploaded stereo pair into a point cloud. format selects json (the
// default) or one of the point cloud encodings; points=1 adds the points to the JSON body.
func (s *Server) reconstructHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scene, rc, status, err := s.parseStereoRequest(w, r)
	if err != nil {
		reconstructRequestsTotal.WithLabelValues("reconstruct", "error").Inc()
		s.writeErrorResponse(w, err.Error(), status)
		return
	}

	format := strings.ToLower(r.FormValue("format"))
	var cloudFormat pointcloud.Format
	if format != "" && format != "json" {
		if cloudFormat, err = pointcloud.ParseFormat(format); err != nil {
			reconstructRequestsTotal.WithLabelValues("reconstruct", "error").Inc()
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	start := time.Now()
	res, _, err := s.run(r.Context(), scene, rc, nil)
	if err != nil {
		reconstructRequestsTotal.WithLabelValues("reconstruct", "error").Inc()
		slog.Warn("Reconstruction failed", "scene", scene.Name, "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("Reconstruction failed: %v", err), statusFor(err))
		return
	}
	reconstructRequestsTotal.WithLabelValues("reconstruct", "success").Inc()
	slog.Debug("Reconstruction request served", "scene", res.Name, "points", res.Summary.Points,
		"duration", time.Since(start))

	if format == "" || format == "json" {
		resp := ReconstructResponse{Success: true, Result: res, Frame: res.Summary.Frame}
		if includePoints(r.FormValue("points")) {
			resp.Points = pointRows(res.Cloud)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var buf bytes.Buffer
	if err := pointcloud.Write(&buf, res.Cloud, cloudFormat); err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to encode point cloud: %v", err), http.StatusInternalServerError)
		return
	}
	name := res.Name
	if name == "" {
		name = "cloud"
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+cloudFormat.Extension()))
	w.Header().Set("X-Point-Count", strconv.Itoa(res.Cloud.Size()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// disparityHandler returns the disparity map of an uploaded pair as an 8-bit PNG. which=right
// selects the right-to-left map.
func (s *Server) disparityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scene, rc, status, err := s.parseStereoRequest(w, r)
	if err != nil {
		reconstructRequestsTotal.WithLabelValues("disparity", "error").Inc()
		s.writeErrorResponse(w, err.Error(), status)
		return
	}

	res, p, err := s.run(r.Context(), scene, rc, nil)
	if err != nil {
		reconstructRequestsTotal.WithLabelValues("disparity", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Disparity computation failed: %v", err), statusFor(err))
		return
	}
	reconstructRequestsTotal.WithLabelValues("disparity", "success").Inc()

	m := res.Disparity.LeftToRight
	if strings.EqualFold(r.FormValue("which"), "right") {
		m = res.Disparity.RightToLeft
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, m.Image(float64(p.Config().Disparity.MaxDisparity))); err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to encode disparity image: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Valid-Disparities", strconv.Itoa(m.ValidCount()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func includePoints(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// pointRows flattens a cloud into x, y, z, r, g, b rows.
func pointRows(pc *pointcloud.PointCloud) [][6]float64 {
	if pc == nil {
		return nil
	}
	rows := make([][6]float64, len(pc.Points))
	for i, p := range pc.Points {
		rows[i] = [6]float64{
			p.Position.X, p.Position.Y, p.Position.Z,
			float64(p.Color.R), float64(p.Color.G), float64(p.Color.B),
		}
	}
	return rows
}

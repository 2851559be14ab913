package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/twoview/internal/postfilter"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twoview_stage_duration_seconds",
		Help:    "Duration of each reconstruction stage",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"stage"})

	pairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twoview_pairs_total",
		Help: "Image pairs processed by outcome",
	}, []string{"status"})

	pointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twoview_points_total",
		Help: "Triangulated points by post-filter outcome",
	}, []string{"outcome"})
)

const (
	stageRectify     = "rectify"
	stageDisparity   = "disparity"
	stageTriangulate = "triangulate"
	stageFilter      = "filter"
)

func observeStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func observePair(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	pairsTotal.WithLabelValues(status).Inc()
}

func observePoints(s postfilter.Stats) {
	for outcome, n := range map[string]int{
		"kept":         s.Kept,
		"invalid":      s.Invalid,
		"inconsistent": s.Inconsistent,
		"out_of_range": s.OutOfRange,
		"background":   s.Background,
		"outlier":      s.Outliers,
	} {
		if n > 0 {
			pointsTotal.WithLabelValues(outcome).Add(float64(n))
		}
	}
}

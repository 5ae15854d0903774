// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package reid

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	detectionsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "antler",
		Subsystem: "reid",
		Name:      "detections_processed_total",
		Help:      "Detections that finished re-identification.",
	})

	profilesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "antler",
		Subsystem: "reid",
		Name:      "profiles_created_total",
		Help:      "New deer profiles opened because no candidate scored high enough.",
	})

	assignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "antler",
		Subsystem: "reid",
		Name:      "assignments_total",
		Help:      "Detections attached to an existing profile, by decision path.",
	}, []string{"path"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "antler",
		Subsystem: "reid",
		Name:      "failures_total",
		Help:      "Re-identification attempts that returned an error, by kind.",
	}, []string{"kind"})

	processingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "antler",
		Subsystem: "reid",
		Name:      "processing_seconds",
		Help:      "Wall time spent re-identifying one detection.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	bestScoreObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "antler",
		Subsystem: "reid",
		Name:      "best_candidate_score",
		Help:      "Ensemble score of the best candidate per search; watch this to tune the match threshold.",
		Buckets:   prometheus.LinearBuckets(0, 0.05, 21),
	})

	stageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "antler",
		Subsystem: "reid",
		Name:      "stage_duration_seconds",
		Help:      "Wall time inside one detection by stage: load, embed, search, commit. Retried rounds count once per round.",
	}, []string{"stage"})
)

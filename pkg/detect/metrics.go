// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package detect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	imagesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "antler",
		Subsystem: "detect",
		Name:      "images_processed_total",
		Help:      "Images that completed the detection stage",
	})

	detectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "antler",
		Subsystem: "detect",
		Name:      "detections_total",
		Help:      "Detection rows persisted, duplicates included",
	})

	duplicatesMarkedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "antler",
		Subsystem: "detect",
		Name:      "duplicates_marked_total",
		Help:      "Detection rows marked duplicate by IoU dedup; divide by detections_total for the dedup ratio",
	})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "antler",
		Subsystem: "detect",
		Name:      "failures_total",
		Help:      "Detection stage failures by error kind",
	}, []string{"kind"})

	processingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "antler",
		Subsystem: "detect",
		Name:      "processing_duration_seconds",
		Help:      "Wall time of one image through the detection stage",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	stageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "antler",
		Subsystem: "detect",
		Name:      "stage_duration_seconds",
		Help:      "Wall time inside one image by stage: load, detect, commit",
	}, []string{"stage"})
)

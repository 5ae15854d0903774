// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "antler",
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Model call latency by role and operation",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"role", "op"},
	)

	inferenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antler",
			Subsystem: "inference",
			Name:      "errors_total",
			Help:      "Model call failures by role, operation and failure kind",
		},
		[]string{"role", "op", "kind"},
	)

	deviceSlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "antler",
			Subsystem: "inference",
			Name:      "device_slots_in_use",
			Help:      "Device semaphore slots currently held",
		},
	)

	engineReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "antler",
			Subsystem: "inference",
			Name:      "engine_ready",
			Help:      "1 once the engine for a model role is loaded, 0 after a failed load or a close",
		},
		[]string{"role"},
	)
)

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antler",
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Total number of items appended per queue",
		},
		[]string{"queue"},
	)

	reservedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antler",
			Subsystem: "queue",
			Name:      "reserved_total",
			Help:      "Total number of reservations handed out per queue",
		},
		[]string{"queue"},
	)

	ackedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antler",
			Subsystem: "queue",
			Name:      "acked_total",
			Help:      "Total number of items acknowledged per queue",
		},
		[]string{"queue"},
	)

	nackedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antler",
			Subsystem: "queue",
			Name:      "nacked_total",
			Help:      "Total number of handler failures charged against retry budgets",
		},
		[]string{"queue"},
	)

	releasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antler",
			Subsystem: "queue",
			Name:      "released_total",
			Help:      "Total number of items returned unprocessed without a budget charge",
		},
		[]string{"queue"},
	)

	deadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antler",
			Subsystem: "queue",
			Name:      "dead_lettered_total",
			Help:      "Total number of items parked for operator inspection",
		},
		[]string{"queue"},
	)

	timedOutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "antler",
			Subsystem: "queue",
			Name:      "timed_out_total",
			Help:      "Total number of reservations reclaimed by the timeout sweep",
		},
	)

	depthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "antler",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Queue depth by status at last stats scrape",
		},
		[]string{"queue", "status"},
	)
)

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer pairs a histogram with a summary under the same name so a single
// observation feeds both bucketed and quantile views.
type Timer struct {
	histogram *prometheus.HistogramVec
	summary   *prometheus.SummaryVec
}

func NewTimer(metricsName, help string, labels []string, opts ...OptsFunc) *Timer {
	opt := &mOpts{
		name: metricsName,
		help: help,
	}
	for _, optsFunc := range opts {
		optsFunc(opt)
	}
	if len(opt.buckets) == 0 {
		opt.buckets = defaultBuckets
	}
	if len(opt.quantile) == 0 {
		opt.quantile = defaultQuantile
	}
	histogram := prometheus.NewHistogramVec(opt.GetHistogramOpts(), labels)
	summary := prometheus.NewSummaryVec(opt.GetSummaryOpts(), labels)
	prometheus.MustRegister(histogram, summary)
	return &Timer{
		histogram: histogram,
		summary:   summary,
	}
}

// Timer starts the clock and returns a closure that records the elapsed
// seconds against the given label values.
func (self *Timer) Timer() func(labels ...string) {
	start := time.Now()
	return func(labels ...string) {
		elapsed := time.Since(start).Seconds()
		self.histogram.WithLabelValues(labels...).Observe(elapsed)
		self.summary.WithLabelValues(labels...).Observe(elapsed)
	}
}

func (self *Timer) Observe(v float64, labels ...string) {
	self.histogram.WithLabelValues(labels...).Observe(v)
	self.summary.WithLabelValues(labels...).Observe(v)
}

func (self *Timer) Delete(labels ...string) {
	self.histogram.DeleteLabelValues(labels...)
	self.summary.DeleteLabelValues(labels...)
}

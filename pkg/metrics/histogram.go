// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type HistogramVec struct {
	histogram *prometheus.HistogramVec
}

// NewHistogramVec registers a histogram named metricsName+"_h". When no
// WithBuckets option is given the default latency buckets are used.
func NewHistogramVec(metricsName, help string, labels []string, opts ...OptsFunc) *HistogramVec {
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
	histogram := prometheus.NewHistogramVec(opt.GetHistogramOpts(), labels)
	prometheus.MustRegister(histogram)
	return &HistogramVec{
		histogram: histogram,
	}
}

func (self *HistogramVec) Observe(v float64, labels ...string) {
	self.histogram.WithLabelValues(labels...).Observe(v)
}

func (self *HistogramVec) Delete(labels ...string) {
	self.histogram.DeleteLabelValues(labels...)
}

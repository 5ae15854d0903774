// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultMetricsNamespace = "antler"

var (
	defaultBuckets  = []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5, 1, 2.5, 5, 10, 60, 600, 3600}
	defaultQuantile = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}
)

// mOpts carries the shared knobs behind the metric constructors. Type
// suffixes (_c/_g/_h/_s) keep the four flavours of one name apart in the
// registry unless WithoutSuffix is set.
type mOpts struct {
	name          string
	help          string
	namespace     *string
	labels        map[string]string
	buckets       []float64
	quantile      map[float64]float64
	withoutSuffix bool
}

type OptsFunc func(*mOpts)

func WithNamespace(namespace string) OptsFunc {
	return func(o *mOpts) {
		o.namespace = &namespace
	}
}

func WithBuckets(buckets []float64) OptsFunc {
	return func(o *mOpts) {
		o.buckets = buckets
	}
}

func WithLabels(labels map[string]string) OptsFunc {
	return func(o *mOpts) {
		o.labels = labels
	}
}

func WithQuantile(quantile map[float64]float64) OptsFunc {
	return func(o *mOpts) {
		o.quantile = quantile
	}
}

func WithoutSuffix() OptsFunc {
	return func(o *mOpts) {
		o.withoutSuffix = true
	}
}

func (o *mOpts) metricName(suffix string) string {
	if o.withoutSuffix {
		return o.name
	}
	return o.name + suffix
}

func (o *mOpts) metricNamespace() string {
	if o.namespace == nil {
		return DefaultMetricsNamespace
	}
	return *o.namespace
}

func (o *mOpts) metricHelp() string {
	if o.help == "" {
		return o.name
	}
	return o.help
}

func (o *mOpts) GetCounterOpts() prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   o.metricNamespace(),
		Name:        o.metricName("_c"),
		Help:        o.metricHelp() + " (counters)",
		ConstLabels: o.labels,
	}
}

func (o *mOpts) GetGaugeOpts() prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   o.metricNamespace(),
		Name:        o.metricName("_g"),
		Help:        o.metricHelp() + " (gauge)",
		ConstLabels: o.labels,
	}
}

func (o *mOpts) GetHistogramOpts() prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   o.metricNamespace(),
		Name:        o.metricName("_h"),
		Help:        o.metricHelp() + " (histogram)",
		ConstLabels: o.labels,
		Buckets:     o.buckets,
	}
}

func (o *mOpts) GetSummaryOpts() prometheus.SummaryOpts {
	return prometheus.SummaryOpts{
		Namespace:   o.metricNamespace(),
		Name:        o.metricName("_s"),
		Help:        o.metricHelp() + " (summary)",
		ConstLabels: o.labels,
		Objectives:  o.quantile,
	}
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// histogramSnapshot gathers the default registry and returns sample count
// and sum per first label value of the named histogram.
func histogramSnapshot(t *testing.T, name string) (map[string]uint64, map[string]float64) {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	counts := map[string]uint64{}
	sums := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := m.GetLabel()[0].GetValue()
			counts[key] = m.GetHistogram().GetSampleCount()
			sums[key] = m.GetHistogram().GetSampleSum()
		}
	}
	return counts, sums
}

// bucketCeilings returns the upper bounds of the named histogram's buckets
// for one label value, without the implicit +Inf.
func bucketCeilings(t *testing.T, name, label string) []float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetLabel()[0].GetValue() != label {
				continue
			}
			var ceilings []float64
			for _, b := range m.GetHistogram().GetBucket() {
				ceilings = append(ceilings, b.GetUpperBound())
			}
			return ceilings
		}
	}
	t.Fatalf("histogram %s{%s} not found", name, label)
	return nil
}

func TestHistogramVecObserve(t *testing.T) {
	h := NewHistogramVec("test_stage_latency", "stage wall time", []string{"stage"})

	h.Observe(0.1, "detect")
	h.Observe(0.4, "detect")
	h.Observe(2.0, "embed")

	counts, sums := histogramSnapshot(t, "antler_test_stage_latency_h")
	assert.Equal(t, uint64(2), counts["detect"])
	assert.InDelta(t, 0.5, sums["detect"], 1e-9)
	assert.Equal(t, uint64(1), counts["embed"])
	assert.InDelta(t, 2.0, sums["embed"], 1e-9)
}

func TestHistogramVecBuckets(t *testing.T) {
	t.Run("custom buckets are kept as given", func(t *testing.T) {
		want := []float64{0.25, 1, 4, 16}
		h := NewHistogramVec("test_search_latency", "candidate search time", []string{"queue"},
			WithBuckets(want))
		h.Observe(0.5, "reid")

		assert.Equal(t, want, bucketCeilings(t, "antler_test_search_latency_h", "reid"))
	})

	t.Run("no option falls back to the latency defaults", func(t *testing.T) {
		h := NewHistogramVec("test_commit_latency", "commit time", []string{"queue"})
		h.Observe(0.5, "detect")

		ceilings := bucketCeilings(t, "antler_test_commit_latency_h", "detect")
		assert.Equal(t, defaultBuckets, ceilings)
	})
}

func TestHistogramVecDelete(t *testing.T) {
	h := NewHistogramVec("test_latency_delete", "", []string{"queue"})
	h.Observe(1.0, "detect")
	h.Observe(2.0, "reid")

	h.Delete("detect")

	counts, _ := histogramSnapshot(t, "antler_test_latency_delete_h")
	assert.NotContains(t, counts, "detect")
	assert.Contains(t, counts, "reid")
}

func TestHistogramVecOptions(t *testing.T) {
	h := NewHistogramVec("test_latency_raw", "raw named histogram", []string{"queue"},
		WithNamespace("wildsight"), WithoutSuffix())
	h.Observe(0.2, "detect")

	counts, _ := histogramSnapshot(t, "wildsight_test_latency_raw")
	assert.Equal(t, uint64(1), counts["detect"])
}

func TestHistogramVecConcurrent(t *testing.T) {
	h := NewHistogramVec("test_latency_concurrent", "", []string{"queue"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Observe(0.25, "reid")
			}
		}()
	}
	wg.Wait()

	counts, sums := histogramSnapshot(t, "antler_test_latency_concurrent_h")
	assert.Equal(t, uint64(1000), counts["reid"])
	assert.InDelta(t, 250.0, sums["reid"], 1e-9)
}

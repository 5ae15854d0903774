package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gaugeValues gathers the named gauge family and keys the values by the
// first label value.
func gaugeValues(t *testing.T, name string) map[string]float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		out := make(map[string]float64, len(mf.GetMetric()))
		for _, m := range mf.GetMetric() {
			labels := m.GetLabel()
			require.NotEmpty(t, labels)
			out[labels[0].GetValue()] = m.GetGauge().GetValue()
		}
		return out
	}
	return nil
}

func TestGaugeVecArithmetic(t *testing.T) {
	gauge := NewGaugeVec("test_gauge_arith", "gauge arithmetic", []string{"slot"})

	gauge.Set(10, "a")
	gauge.Inc("a")
	gauge.Dec("a")
	gauge.Dec("a")
	gauge.Add(2.5, "a")
	gauge.Sub(0.5, "a")
	gauge.Set(100, "b")

	values := gaugeValues(t, "antler_test_gauge_arith_g")
	require.Len(t, values, 2)
	assert.InDelta(t, 11.0, values["a"], 1e-9)
	assert.Equal(t, 100.0, values["b"])
}

func TestGaugeVecCanGoNegative(t *testing.T) {
	gauge := NewGaugeVec("test_gauge_neg", "gauge negative", []string{"slot"})

	gauge.Set(10, "x")
	gauge.Add(-5, "x")
	gauge.Sub(8, "x")

	values := gaugeValues(t, "antler_test_gauge_neg_g")
	assert.Equal(t, -3.0, values["x"])
}

func TestGaugeVecDelete(t *testing.T) {
	gauge := NewGaugeVec("test_gauge_del", "gauge delete", []string{"service"})

	gauge.Set(1, "api")
	gauge.Set(2, "worker")
	gauge.Delete("api")

	values := gaugeValues(t, "antler_test_gauge_del_g")
	require.Len(t, values, 1)
	assert.NotContains(t, values, "api")
}

func TestGaugeVecOptions(t *testing.T) {
	gauge := NewGaugeVec("test_gauge_raw", "gauge without suffix", []string{"slot"},
		WithNamespace("wildsight"), WithoutSuffix())
	gauge.Set(7, "x")

	values := gaugeValues(t, "wildsight_test_gauge_raw")
	assert.Equal(t, 7.0, values["x"])
}

func TestGaugeVecConcurrent(t *testing.T) {
	gauge := NewGaugeVec("test_gauge_conc", "gauge concurrent", []string{"slot"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				gauge.Inc("shared")
			}
		}()
	}
	wg.Wait()

	values := gaugeValues(t, "antler_test_gauge_conc_g")
	assert.Equal(t, 1000.0, values["shared"])
}

func TestGaugeVecAsCollector(t *testing.T) {
	// Describe and Collect let a private registry pick the vec up
	gauge := NewGaugeVec("test_gauge_collector", "gauge collector", []string{"slot"})
	gauge.Set(42, "x")

	descs := make(chan *prometheus.Desc, 4)
	gauge.Describe(descs)
	close(descs)
	assert.NotEmpty(t, descs)

	metrics := make(chan prometheus.Metric, 4)
	gauge.Collect(metrics)
	close(metrics)
	assert.Len(t, metrics, 1)
}

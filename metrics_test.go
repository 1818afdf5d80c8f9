package tigerclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsInitialState(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	assert.Zero(t, snap.Completions)
	assert.Zero(t, snap.Submits)
}

func TestMetricsCompletions(t *testing.T) {
	m := NewMetrics()

	m.RecordCompletion("ok", 1_000_000)       // 1ms
	m.RecordCompletion("ok", 2_000_000)       // 2ms
	m.RecordCompletion("invalid_data_size", 500_000)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.Completions)
	assert.Equal(t, uint64(1), snap.InvalidDataSizeErrors)
	assert.Zero(t, snap.TooMuchDataErrors)
}

func TestMetricsPendingDepth(t *testing.T) {
	m := NewMetrics()

	m.RecordPendingDepth(1)
	m.RecordPendingDepth(3)
	m.RecordPendingDepth(2)

	snap := m.Snapshot()
	assert.Equal(t, uint32(3), snap.MaxPendingDepth)
	assert.InDelta(t, 2.0, snap.AvgPendingDepth, 0.01)
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics()

	m.RecordCompletion("ok", 500)        // under 1us bucket
	m.RecordCompletion("ok", 50_000)     // under 100us bucket
	m.RecordCompletion("ok", 50_000_000) // under 100ms bucket

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.LatencyHistogram[0]) // <= 1us
	assert.Equal(t, uint64(2), snap.LatencyHistogram[2]) // <= 100us (cumulative)
	assert.Equal(t, uint64(3), snap.LatencyHistogram[5]) // <= 100ms (cumulative)
}

func TestMetricsPercentiles(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 100; i++ {
		m.RecordCompletion("ok", 1_000_000) // 1ms, single bucket
	}

	snap := m.Snapshot()
	assert.Equal(t, uint64(1_000_000), snap.LatencyP50Ns)
	assert.Equal(t, uint64(1_000_000), snap.LatencyP99Ns)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordCompletion("ok", 1_000_000)
	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.Completions)
	assert.Zero(t, snap.AvgLatencyNs)
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveCompletion("too_much_data", 10_000)
	obs.ObservePendingDepth(5)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.TooMuchDataErrors)
	assert.Equal(t, uint32(5), snap.MaxPendingDepth)
}

func TestNoOpObserver(t *testing.T) {
	var o Observer = NoOpObserver{}
	assert.NotPanics(t, func() {
		o.ObserveCompletion("ok", 1)
		o.ObservePendingDepth(1)
	})
}

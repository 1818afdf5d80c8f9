package tigerclient

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the round-trip latency histogram buckets in
// nanoseconds, from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for one Client.
type Metrics struct {
	// Packet lifecycle counters
	Acquires    atomic.Uint64 // successful Acquire calls
	Releases    atomic.Uint64 // Release calls
	Submits     atomic.Uint64 // Submit calls
	Completions atomic.Uint64 // completion callbacks invoked

	// Dispatch/batching counters
	Dispatches  atomic.Uint64 // batches handed to the protocol client
	FastPath    atomic.Uint64 // submissions that bypassed the pending queue
	Merges      atomic.Uint64 // packets merged into an existing pending root
	NewRoots    atomic.Uint64 // packets that started a new pending root

	// Error counters, keyed to the spec §7 taxonomy entries that surface
	// through packet status rather than init.
	InvalidOperationErrors atomic.Uint64
	InvalidDataSizeErrors  atomic.Uint64
	TooMuchDataErrors      atomic.Uint64
	TransportErrors        atomic.Uint64

	// Pending queue depth statistics, sampled once per reactor tick.
	PendingDepthTotal atomic.Uint64
	PendingDepthCount atomic.Uint64
	MaxPendingDepth   atomic.Uint32

	// Round-trip latency tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Client lifecycle
	StartTime atomic.Int64 // NewClient timestamp (UnixNano)
	StopTime  atomic.Int64 // Close timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCompletion records one packet completion and its round-trip
// latency, classifying the failure counters when status is non-ok.
func (m *Metrics) RecordCompletion(status string, latencyNs uint64) {
	m.Completions.Add(1)
	switch status {
	case "invalid_operation":
		m.InvalidOperationErrors.Add(1)
	case "invalid_data_size":
		m.InvalidDataSizeErrors.Add(1)
	case "too_much_data":
		m.TooMuchDataErrors.Add(1)
	case "transport_error":
		m.TransportErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordPendingDepth records the pending queue's length at one reactor
// tick for average/maximum tracking.
func (m *Metrics) RecordPendingDepth(depth uint32) {
	m.PendingDepthTotal.Add(uint64(depth))
	m.PendingDepthCount.Add(1)
	for {
		current := m.MaxPendingDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxPendingDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the client as closed.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	Acquires    uint64
	Releases    uint64
	Submits     uint64
	Completions uint64

	Dispatches uint64
	FastPath   uint64
	Merges     uint64
	NewRoots   uint64

	InvalidOperationErrors uint64
	InvalidDataSizeErrors  uint64
	TooMuchDataErrors      uint64
	TransportErrors        uint64

	AvgPendingDepth float64
	MaxPendingDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot returns a point-in-time snapshot of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Acquires:               m.Acquires.Load(),
		Releases:               m.Releases.Load(),
		Submits:                m.Submits.Load(),
		Completions:            m.Completions.Load(),
		Dispatches:             m.Dispatches.Load(),
		FastPath:               m.FastPath.Load(),
		Merges:                 m.Merges.Load(),
		NewRoots:               m.NewRoots.Load(),
		InvalidOperationErrors: m.InvalidOperationErrors.Load(),
		InvalidDataSizeErrors:  m.InvalidDataSizeErrors.Load(),
		TooMuchDataErrors:      m.TooMuchDataErrors.Load(),
		TransportErrors:        m.TransportErrors.Load(),
		MaxPendingDepth:        m.MaxPendingDepth.Load(),
	}

	depthTotal := m.PendingDepthTotal.Load()
	depthCount := m.PendingDepthCount.Load()
	if depthCount > 0 {
		snap.AvgPendingDepth = float64(depthTotal) / float64(depthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful for testing.
func (m *Metrics) Reset() {
	m.Acquires.Store(0)
	m.Releases.Store(0)
	m.Submits.Store(0)
	m.Completions.Store(0)
	m.Dispatches.Store(0)
	m.FastPath.Store(0)
	m.Merges.Store(0)
	m.NewRoots.Store(0)
	m.InvalidOperationErrors.Store(0)
	m.InvalidDataSizeErrors.Store(0)
	m.TooMuchDataErrors.Store(0)
	m.TransportErrors.Store(0)
	m.PendingDepthTotal.Store(0)
	m.PendingDepthCount.Store(0)
	m.MaxPendingDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection, mirroring the teacher's
// Observer interface but keyed to multiplexer events instead of I/O.
type Observer interface {
	ObserveCompletion(status string, latencyNs uint64)
	ObservePendingDepth(depth uint32)
}

// NoOpObserver is a no-op Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCompletion(string, uint64) {}
func (NoOpObserver) ObservePendingDepth(uint32)       {}

// MetricsObserver implements Observer by recording to a Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCompletion(status string, latencyNs uint64) {
	o.metrics.RecordCompletion(status, latencyNs)
}

func (o *MetricsObserver) ObservePendingDepth(depth uint32) {
	o.metrics.RecordPendingDepth(depth)
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*NoOpObserver)(nil)
)

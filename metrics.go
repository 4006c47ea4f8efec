package tinywebd

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/tinywebd/internal/interfaces"
)

// LatencyBuckets defines the request-latency histogram buckets in
// nanoseconds, log-spaced from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks connection and request statistics for a running server.
type Metrics struct {
	AcceptedConns atomic.Uint64
	ClosedConns   atomic.Uint64
	RejectedConns atomic.Uint64

	RequestsOK       atomic.Uint64 // 2xx
	RequestsNotFound atomic.Uint64 // 404
	RequestsBadOrErr atomic.Uint64 // 400/403 and others

	BytesIn  atomic.Uint64
	BytesOut atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a Metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAccept records one accepted connection.
func (m *Metrics) RecordAccept() { m.AcceptedConns.Add(1) }

// RecordClose records one closed connection.
func (m *Metrics) RecordClose() { m.ClosedConns.Add(1) }

// RecordRejected records one connection turned away because the server was
// at capacity.
func (m *Metrics) RecordRejected() { m.RejectedConns.Add(1) }

// RecordRequest records one completed request.
func (m *Metrics) RecordRequest(statusCode int, bytesIn, bytesOut uint64, latencyNs uint64) {
	switch {
	case statusCode >= 200 && statusCode < 300:
		m.RequestsOK.Add(1)
	case statusCode == 404:
		m.RequestsNotFound.Add(1)
	default:
		m.RequestsBadOrErr.Add(1)
	}
	m.BytesIn.Add(bytesIn)
	m.BytesOut.Add(bytesOut)
	m.recordLatency(latencyNs)
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

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read without
// further synchronization.
type MetricsSnapshot struct {
	AcceptedConns uint64
	ClosedConns   uint64
	RejectedConns uint64

	RequestsOK       uint64
	RequestsNotFound uint64
	RequestsBadOrErr uint64

	BytesIn  uint64
	BytesOut uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalRequests uint64
	ErrorRate     float64
}

// Snapshot returns a consistent point-in-time view of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		AcceptedConns:    m.AcceptedConns.Load(),
		ClosedConns:      m.ClosedConns.Load(),
		RejectedConns:    m.RejectedConns.Load(),
		RequestsOK:       m.RequestsOK.Load(),
		RequestsNotFound: m.RequestsNotFound.Load(),
		RequestsBadOrErr: m.RequestsBadOrErr.Load(),
		BytesIn:          m.BytesIn.Load(),
		BytesOut:         m.BytesOut.Load(),
	}

	snap.TotalRequests = snap.RequestsOK + snap.RequestsNotFound + snap.RequestsBadOrErr
	if snap.TotalRequests > 0 {
		snap.ErrorRate = float64(snap.RequestsBadOrErr) / float64(snap.TotalRequests) * 100.0
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())

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

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// by linear interpolation between histogram buckets.
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

// MetricsObserver adapts Metrics to interfaces.Observer so the server can
// report through an interface without a direct dependency on the concrete
// type.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAccept() { o.metrics.RecordAccept() }
func (o *MetricsObserver) ObserveClose()  { o.metrics.RecordClose() }
func (o *MetricsObserver) ObserveRejected() { o.metrics.RecordRejected() }
func (o *MetricsObserver) ObserveRequest(statusCode int, bytesIn, bytesOut uint64, latencyNs uint64) {
	o.metrics.RecordRequest(statusCode, bytesIn, bytesOut, latencyNs)
}

// NoOpObserver discards every observation; it is the default when a caller
// doesn't want metrics collection.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAccept()                                               {}
func (NoOpObserver) ObserveClose()                                                {}
func (NoOpObserver) ObserveRejected()                                             {}
func (NoOpObserver) ObserveRequest(statusCode int, bytesIn, bytesOut uint64, latencyNs uint64) {}

var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = NoOpObserver{}
)

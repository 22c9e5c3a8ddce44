package authgate

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected or failed logins.
	MetricLoginFailure
	// MetricRestoreSuccess counts successful session restores.
	MetricRestoreSuccess
	// MetricRestoreFailure counts restores that ended unauthenticated.
	MetricRestoreFailure
	// MetricDeviceTrusted counts validations that found the device
	// already authorized.
	MetricDeviceTrusted
	// MetricDeviceValidationError counts device validations that failed
	// closed on an error.
	MetricDeviceValidationError
	// MetricFaceRegisterAccepted counts enrollments with a descriptor.
	MetricFaceRegisterAccepted
	// MetricFaceRegisterRejected counts enrollments without a descriptor.
	MetricFaceRegisterRejected
	// MetricFaceMatchAccepted counts positive photo validations.
	MetricFaceMatchAccepted
	// MetricFaceMatchRejected counts negative photo validations.
	MetricFaceMatchRejected
	// MetricDeviceSaved counts successful device persists.
	MetricDeviceSaved
	// MetricTrustCompleted counts explicit trust completions.
	MetricTrustCompleted
	// MetricSessionExpired counts clock- or backend-detected expiries.
	MetricSessionExpired
	// MetricLogout counts logouts, including forced ones.
	MetricLogout
	// MetricPhotoRateLimited counts photo uploads blocked by the
	// cooldown limiter.
	MetricPhotoRateLimited
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's in-process counters. All methods are safe for
// concurrent use and no-ops on a nil or disabled receiver.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics returns a Metrics honoring cfg.Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counting is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: map[MetricID]uint64{}}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.Value(id)
	}
	return snap
}

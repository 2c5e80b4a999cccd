package profileauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricSignUpSuccess MetricID = iota
	MetricSignUpDuplicate
	MetricSignUpRateLimited
	MetricSignInSuccess
	MetricSignInFailure
	MetricSignInRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts refresh tokens presented after they
	// were rotated out.
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricSilentRefresh
	MetricAuthenticateAdmitted
	MetricAuthenticateRejected
	MetricLogout
	MetricVerificationRequest
	MetricVerificationRequestFailure
	MetricVerificationDeliveryFailure
	MetricVerificationConfirm
	MetricVerificationConfirmFailure
	// MetricVerificationNotFound counts confirms with no pending entry.
	MetricVerificationNotFound
	MetricVerificationMismatch
	MetricEmailVerified
	MetricPasswordResetSuccess
	MetricLoginChangeSuccess
	MetricEmailChangeSuccess
	MetricPhoneChangeSuccess
	MetricPasswordChangeSuccess
	MetricAuthenticateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the first seven latency
// buckets. Anything slower lands in the eighth.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBuckets = len(latencyBounds) + 1

// counter sits alone on a cache line; hot counters are bumped from every
// request goroutine.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters plus the Authenticate latency
// histogram. A nil or disabled Metrics accepts every call and records
// nothing.
type Metrics struct {
	on      bool
	latency bool
	counts  [metricIDCount]counter
	buckets [latencyBuckets]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy. Histograms holds per-bucket
// (not cumulative) counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{on: cfg.Enabled, latency: cfg.Enabled && cfg.EnableLatencyHistograms}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.on }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counts[id].Add(1)
}

// Observe records d. MetricAuthenticateLatency is the only histogram; other
// ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricAuthenticateLatency {
		return
	}
	m.buckets[bucketFor(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].Load()
}

// Snapshot copies every counter. The histogram is included only when
// latency recording is on. Maps are never nil.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	if !m.Enabled() {
		return s
	}
	for id := range metricIDCount {
		s.Counters[id] = m.counts[id].Load()
	}
	if m.latency {
		hist := make([]uint64, latencyBuckets)
		for i := range hist {
			hist[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricAuthenticateLatency] = hist
	}
	return s
}

// bucketFor compares at millisecond precision, so 5.9ms still counts as 5ms.
func bucketFor(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}

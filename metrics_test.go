package profileauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricSignInSuccess)
	m.Observe(MetricAuthenticateLatency, time.Millisecond)

	assert.Zero(t, m.Value(MetricSignInSuccess))
	assert.False(t, m.LatencyEnabled(), "latency needs metrics on")
	snap := m.Snapshot()
	assert.NotNil(t, snap.Counters)
	assert.Empty(t, snap.Counters)
	assert.Empty(t, snap.Histograms)

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
	assert.Zero(t, nilMetrics.Value(MetricLogout))
	assert.Empty(t, nilMetrics.Snapshot().Counters)
}

func TestMetricsCountConcurrently(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers, each = 32, 4000
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for range each {
				m.Inc(MetricRefreshSuccess)
			}
		})
	}
	wg.Wait()

	assert.EqualValues(t, workers*each, m.Value(MetricRefreshSuccess))
	assert.Zero(t, m.Value(MetricRefreshFailure))
	m.Inc(metricIDCount)
}

func TestLatencyBuckets(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{5*time.Millisecond + 900*time.Microsecond, 0},
		{6 * time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{time.Minute, 7},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, bucketFor(tc.d), "%s", tc.d)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricSignInSuccess)
	m.Inc(MetricSignInFailure)
	m.Inc(MetricSignInFailure)
	m.Observe(MetricAuthenticateLatency, 2*time.Millisecond)
	m.Observe(MetricAuthenticateLatency, 700*time.Millisecond)
	m.Observe(MetricSignInSuccess, time.Second)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.Counters[MetricSignInSuccess])
	assert.EqualValues(t, 2, snap.Counters[MetricSignInFailure])
	assert.Len(t, snap.Counters, int(metricIDCount))
	require.Len(t, snap.Histograms, 1)
	assert.Equal(t, []uint64{1, 0, 0, 0, 0, 0, 0, 1}, snap.Histograms[MetricAuthenticateLatency])

	m.Inc(MetricSignInSuccess)
	assert.EqualValues(t, 1, snap.Counters[MetricSignInSuccess], "snapshot is a copy")
}

func TestAuthenticateRecordsLatencyWithoutProviderWrites(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Metrics.Enabled = true
		c.Metrics.EnableLatencyHistograms = true
	})
	env.seedUser(t, UserRecord{UserID: "u1", Login: "alice", Email: "alice@example.com"}, "correct-password-123")

	pair, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-password-123")
	require.NoError(t, err)
	before := env.users.updateCalls

	_, err = env.engine.Authenticate(context.Background(), Credentials{AccessToken: pair.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, before, env.users.updateCalls, "Authenticate must not write to the user store")

	snap := env.engine.MetricsSnapshot()
	var total uint64
	for _, v := range snap.Histograms[MetricAuthenticateLatency] {
		total += v
	}
	assert.EqualValues(t, 1, total)
	assert.EqualValues(t, 1, snap.Counters[MetricAuthenticateAdmitted])
}

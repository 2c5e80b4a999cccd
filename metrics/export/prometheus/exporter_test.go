package prometheus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/profileauth"
)

type staticSource struct {
	snap    profileauth.MetricsSnapshot
	dropped uint64
}

func (s staticSource) MetricsSnapshot() profileauth.MetricsSnapshot { return s.snap }
func (s staticSource) AuditDropped() uint64                         { return s.dropped }

func sampleSource() staticSource {
	return staticSource{
		snap: profileauth.MetricsSnapshot{
			Counters: map[profileauth.MetricID]uint64{
				profileauth.MetricSignInSuccess:        7,
				profileauth.MetricRefreshReuseDetected: 1,
			},
			Histograms: map[profileauth.MetricID][]uint64{
				profileauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	}
}

func TestRenderEmptySnapshot(t *testing.T) {
	exp := NewPrometheusExporterFromSource(staticSource{})
	assert.Empty(t, exp.Render())

	var nilExp *PrometheusExporter
	assert.Empty(t, nilExp.Render())
}

func TestRenderFamilies(t *testing.T) {
	out := NewPrometheusExporterFromSource(sampleSource()).Render()

	for _, want := range []string{
		"# TYPE profileauth_sign_in_success_total counter\n",
		"profileauth_sign_in_success_total 7\n",
		"profileauth_refresh_reuse_detected_total 1\n",
		"profileauth_sign_up_success_total 0\n",
		"# TYPE profileauth_authenticate_latency_seconds histogram\n",
		`profileauth_authenticate_latency_seconds_bucket{le="0.005"} 1` + "\n",
		`profileauth_authenticate_latency_seconds_bucket{le="0.01"} 3` + "\n",
		`profileauth_authenticate_latency_seconds_bucket{le="+Inf"} 36` + "\n",
		"profileauth_authenticate_latency_seconds_count 36\n",
		"profileauth_audit_dropped_total 2\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestRenderIsDeterministic(t *testing.T) {
	exp := NewPrometheusExporterFromSource(sampleSource())
	assert.Equal(t, exp.Render(), exp.Render())
}

func TestWriteToReportsBytesAndErrors(t *testing.T) {
	exp := NewPrometheusExporterFromSource(sampleSource())

	var sb strings.Builder
	n, err := exp.WriteTo(&sb)
	require.NoError(t, err)
	assert.Equal(t, int64(sb.Len()), n)

	_, err = exp.WriteTo(failingWriter{})
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewPrometheusExporterFromSource(sampleSource()).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "profileauth_sign_in_success_total 7")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(sampleSource())
	b.ReportAllocs()
	for b.Loop() {
		_ = exp.Render()
	}
}

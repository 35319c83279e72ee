package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerObserveDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDuration(h)

	assert.GreaterOrEqual(t, timer.Duration(), 10*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(h))
}

func TestMessagesSentByTransport(t *testing.T) {
	before := testutil.ToFloat64(MessagesSent.WithLabelValues("ws"))
	MessagesSent.WithLabelValues("ws").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesSent.WithLabelValues("ws")))
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	WSConnections.Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "socialhub_ws_connections 3"))
}

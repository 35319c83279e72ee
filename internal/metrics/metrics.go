// Package metrics exposes Prometheus collectors for the HTTP API, the
// realtime hub and the messaging pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Realtime metrics
	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "socialhub_ws_connections",
			Help: "Number of open WebSocket connections",
		},
	)

	OnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "socialhub_online_users",
			Help: "Number of users with a registered realtime connection",
		},
	)

	WSEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_ws_events_total",
			Help: "Total number of client events received by type",
		},
		[]string{"event"},
	)

	// Messaging metrics
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_messages_sent_total",
			Help: "Total number of direct messages persisted by transport",
		},
		[]string{"transport"},
	)

	MessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socialhub_messages_delivered_total",
			Help: "Total number of messages pushed to an online recipient",
		},
	)

	PostsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socialhub_posts_created_total",
			Help: "Total number of posts created",
		},
	)

	MediaUploadedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialhub_media_uploaded_bytes_total",
			Help: "Bytes of media stored by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(WSConnections)
	prometheus.MustRegister(OnlineUsers)
	prometheus.MustRegister(WSEventsTotal)
	prometheus.MustRegister(MessagesSent)
	prometheus.MustRegister(MessagesDelivered)
	prometheus.MustRegister(PostsCreated)
	prometheus.MustRegister(MediaUploadedBytes)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation for a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on h.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

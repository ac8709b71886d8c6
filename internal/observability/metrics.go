package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	directoryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_directory_requests_total",
			Help: "Total number of directory API requests issued by the client.",
		},
		[]string{"op", "status"},
	)
	directoryRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatclient_directory_request_duration_seconds",
			Help:    "Directory API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	liveActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatclient_live_active_connections",
			Help: "Number of open live channels.",
		},
		[]string{"scope"},
	)
	liveEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatclient_live_events_total",
			Help: "Total number of live channel events by direction-agnostic name.",
		},
		[]string{"scope", "event"},
	)
	sessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatclient_session_state",
			Help: "Current sync controller state (0=logged_out, 1=authenticating, 2=lobby, 3=room_active).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		directoryRequestsTotal,
		directoryRequestDuration,
		liveActiveConnections,
		liveEventsTotal,
		sessionState,
	)
}

func ObserveDirectoryRequest(op, status string, elapsed time.Duration) {
	directoryRequestsTotal.WithLabelValues(op, status).Inc()
	directoryRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func IncLiveActive(scope string) {
	liveActiveConnections.WithLabelValues(scope).Inc()
}

func DecLiveActive(scope string) {
	liveActiveConnections.WithLabelValues(scope).Dec()
}

func IncLiveEvent(scope, event string) {
	liveEventsTotal.WithLabelValues(scope, event).Inc()
}

func SetSessionState(state int) {
	sessionState.Set(float64(state))
}

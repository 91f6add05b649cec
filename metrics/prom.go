// Package metrics exposes Prometheus collectors for the GBXRemote client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbxremote_queries_total",
			Help: "Queries sent to the dedicated server, by method and outcome",
		},
		[]string{"method", "status"},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gbxremote_query_duration_seconds",
			Help:    "Round-trip time of queries to the dedicated server",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method"},
	)

	faultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbxremote_faults_total",
			Help: "Faults reported by the dedicated server, by category",
		},
		[]string{"kind"},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbxremote_callbacks_total",
			Help: "Callbacks pushed by the dedicated server",
		},
		[]string{"method"},
	)

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbxremote_frames_total",
			Help: "Frames exchanged with the dedicated server",
		},
		[]string{"direction"},
	)

	frameBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gbxremote_frame_bytes_total",
			Help: "Payload bytes exchanged with the dedicated server",
		},
		[]string{"direction"},
	)

	multicallSplitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gbxremote_multicall_splits_total",
			Help: "Multicall batches bisected because they exceeded the request size limit",
		},
	)

	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gbxremote_connections_open",
			Help: "Open connections to dedicated servers",
		},
	)
)

// Register registers every collector with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		queriesTotal, queryDuration, faultsTotal, callbacksTotal,
		framesTotal, frameBytesTotal, multicallSplitsTotal, connected,
	)
}

// Query outcomes.
const (
	StatusOK    = "ok"
	StatusFault = "fault"
	StatusError = "error"
)

// ObserveQuery records one finished query.
func ObserveQuery(method, status string, d time.Duration) {
	queriesTotal.WithLabelValues(method, status).Inc()
	queryDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveFault records a classified fault.
func ObserveFault(kind string) { faultsTotal.WithLabelValues(kind).Inc() }

// CallbackReceived records a buffered callback.
func CallbackReceived(method string) { callbacksTotal.WithLabelValues(method).Inc() }

// FrameSent records an outgoing frame.
func FrameSent(size int) {
	framesTotal.WithLabelValues("out").Inc()
	frameBytesTotal.WithLabelValues("out").Add(float64(size))
}

// FrameReceived records an incoming frame.
func FrameReceived(size int) {
	framesTotal.WithLabelValues("in").Inc()
	frameBytesTotal.WithLabelValues("in").Add(float64(size))
}

// MulticallSplit records one bisection of an oversized batch.
func MulticallSplit() { multicallSplitsTotal.Inc() }

// ConnectionOpened counts a transport that completed its handshake.
func ConnectionOpened() { connected.Inc() }

// ConnectionClosed counts a transport that went away.
func ConnectionClosed() { connected.Dec() }

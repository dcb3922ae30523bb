// Package metrics provides Prometheus metrics for the file exchange server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/denysvitali/filexchange/internal/models"
)

var (
	// Connection metrics
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filexchange_connections_active",
			Help: "Number of open client connections",
		},
	)

	connectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filexchange_connections_total",
			Help: "Total number of accepted connections",
		},
	)

	protocolErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filexchange_protocol_errors_total",
			Help: "Connections closed because of a framing or decode error",
		},
	)

	// Frame metrics
	framesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filexchange_frames_received_total",
			Help: "Total number of decoded frames by command",
		},
		[]string{"command"},
	)

	framesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filexchange_frames_sent_total",
			Help: "Total number of frames written by command",
		},
		[]string{"command"},
	)

	bytesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filexchange_bytes_sent_total",
			Help: "Total bytes written to connections",
		},
	)

	// Content transfer metrics
	contentBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filexchange_content_bytes_uploaded_total",
			Help: "Total file bytes stored from FileMessage uploads",
		},
	)

	contentBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filexchange_content_bytes_downloaded_total",
			Help: "Total file bytes served in FileMessage responses",
		},
	)

	// Dispatch metrics
	dispatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filexchange_dispatch_errors_total",
			Help: "Requests that failed in the dispatcher",
		},
		[]string{"command"},
	)
)

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func ConnectionOpened() {
	connectionsTotal.Inc()
	connectionsActive.Inc()
}

func ConnectionClosed() {
	connectionsActive.Dec()
}

func RecordProtocolError() {
	protocolErrorsTotal.Inc()
}

func RecordFrameReceived(cmd models.Command) {
	framesReceivedTotal.WithLabelValues(cmd.Kind().String()).Inc()
}

// RecordFrameSent counts a written frame of n bytes
func RecordFrameSent(cmd models.Command, n int64) {
	framesSentTotal.WithLabelValues(cmd.Kind().String()).Inc()
	bytesSentTotal.Add(float64(n))
}

func RecordUpload(size int) {
	contentBytesUploaded.Add(float64(size))
}

func RecordDownload(size int) {
	contentBytesDownloaded.Add(float64(size))
}

func RecordDispatchError(kind models.CommandKind) {
	dispatchErrorsTotal.WithLabelValues(kind.String()).Inc()
}

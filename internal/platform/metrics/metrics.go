package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the media server.
type Metrics struct {
	registry             *prometheus.Registry
	sessionsTotal        prometheus.Counter
	activeSessions       prometheus.Gauge
	commandsTotal        *prometheus.CounterVec
	unknownCommandsTotal prometheus.Counter
	transcodesTotal      prometheus.Counter
	transcodeFailures    prometheus.Counter
	streamsLaunchedTotal *prometheus.CounterVec
	hlsRequestsTotal     prometheus.Counter
	errorsTotal          prometheus.Counter
}

// New creates and registers Prometheus metrics for the server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediasrv_sessions_total",
		Help: "Total number of client sessions accepted",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mediasrv_sessions_active",
		Help: "Number of currently connected client sessions",
	})
	commandsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasrv_commands_total",
		Help: "Total number of protocol commands processed, by command",
	}, []string{"command"})
	unknownCommandsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediasrv_unknown_commands_total",
		Help: "Total number of unrecognized protocol commands",
	})
	transcodesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediasrv_transcodes_total",
		Help: "Total number of artifacts produced by the backfill coordinator",
	})
	transcodeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediasrv_transcode_failures_total",
		Help: "Total number of failed transcode attempts",
	})
	streamsLaunchedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediasrv_streams_launched_total",
		Help: "Total number of streams launched, by protocol",
	}, []string{"protocol"})
	hlsRequestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediasrv_hls_requests_total",
		Help: "Total number of requests served by embedded HLS file servers",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediasrv_errors_total",
		Help: "Total number of client-facing error replies",
	})

	registry.MustRegister(
		sessionsTotal,
		activeSessions,
		commandsTotal,
		unknownCommandsTotal,
		transcodesTotal,
		transcodeFailures,
		streamsLaunchedTotal,
		hlsRequestsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:             registry,
		sessionsTotal:        sessionsTotal,
		activeSessions:       activeSessions,
		commandsTotal:        commandsTotal,
		unknownCommandsTotal: unknownCommandsTotal,
		transcodesTotal:      transcodesTotal,
		transcodeFailures:    transcodeFailures,
		streamsLaunchedTotal: streamsLaunchedTotal,
		hlsRequestsTotal:     hlsRequestsTotal,
		errorsTotal:          errorsTotal,
	}
}

// IncSessions increments the accepted-session counter.
func (m *Metrics) IncSessions() {
	m.sessionsTotal.Inc()
}

// SetActiveSessions sets the connected-session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncCommand increments the per-command counter.
func (m *Metrics) IncCommand(command string) {
	m.commandsTotal.WithLabelValues(command).Inc()
}

// IncUnknownCommands increments the unrecognized-command counter.
func (m *Metrics) IncUnknownCommands() {
	m.unknownCommandsTotal.Inc()
}

// IncTranscodes increments the produced-artifact counter.
func (m *Metrics) IncTranscodes() {
	m.transcodesTotal.Inc()
}

// IncTranscodeFailures increments the failed-transcode counter.
func (m *Metrics) IncTranscodeFailures() {
	m.transcodeFailures.Inc()
}

// IncStreamsLaunched increments the launched-stream counter for a protocol.
func (m *Metrics) IncStreamsLaunched(protocol string) {
	m.streamsLaunchedTotal.WithLabelValues(protocol).Inc()
}

// IncHLSRequests increments the embedded-file-server request counter.
func (m *Metrics) IncHLSRequests() {
	m.hlsRequestsTotal.Inc()
}

// IncErrors increments the client-facing error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice agent server
type Metrics struct {
	// UDP packet metrics
	PacketsReceived prometheus.Counter
	PacketsBuffered prometheus.Counter
	EmptyDatagrams  prometheus.Counter

	// Session metrics
	ActiveSessions     prometheus.Gauge
	SessionsCreated    prometheus.Counter
	SessionsSuperseded prometheus.Counter
	SessionsFlushed    *prometheus.CounterVec
	UtteranceSize      prometheus.Histogram
	UtteranceDuration  prometheus.Histogram

	// Dispatch metrics
	QueueDepth     prometheus.Gauge
	FlushesDropped prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Agent metrics
	AgentRequests  prometheus.Counter
	AgentSuccesses prometheus.Counter
	AgentFailures  prometheus.Counter
	AgentDuration  prometheus.Histogram
	AgentRetries   prometheus.Counter

	// Reply metrics
	RepliesSent   prometheus.Counter
	RepliesFailed prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// UDP packet metrics
		PacketsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_packets_buffered_total",
			Help: "Total number of packets appended to a session buffer",
		}),
		EmptyDatagrams: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_empty_datagrams_total",
			Help: "Total number of zero-length datagrams dropped",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Current number of sessions buffering an utterance",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_superseded_total",
			Help: "Total number of sessions superseded by a new utterance from the same address",
		}),
		SessionsFlushed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_sessions_flushed_total",
			Help: "Total number of sessions flushed, by trigger reason",
		}, []string{"reason"}),
		UtteranceSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_utterance_size_bytes",
			Help:    "Size of completed utterances in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_utterance_duration_seconds",
			Help:    "Wall time from first packet to flush",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),

		// Dispatch metrics
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_dispatch_queue_depth",
			Help: "Current number of flushed utterances waiting for a worker",
		}),
		FlushesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_flushes_dropped_total",
			Help: "Total number of flushed utterances dropped due to queue pressure",
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Agent metrics
		AgentRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_requests_total",
			Help: "Total number of agent requests sent",
		}),
		AgentSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_successes_total",
			Help: "Total number of successful agent requests",
		}),
		AgentFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_failures_total",
			Help: "Total number of failed agent requests",
		}),
		AgentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_duration_seconds",
			Help:    "Duration of agent requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		AgentRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_retries_total",
			Help: "Total number of agent request retries",
		}),

		// Reply metrics
		RepliesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_replies_sent_total",
			Help: "Total number of UDP replies sent to clients",
		}),
		RepliesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_replies_failed_total",
			Help: "Total number of UDP reply send failures",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordPacketBuffered increments the packets buffered counter
func (m *Metrics) RecordPacketBuffered() {
	m.PacketsBuffered.Inc()
}

// RecordEmptyDatagram increments the empty datagram counter
func (m *Metrics) RecordEmptyDatagram() {
	m.EmptyDatagrams.Inc()
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionSuperseded increments the sessions superseded counter
func (m *Metrics) RecordSessionSuperseded() {
	m.SessionsSuperseded.Inc()
}

// RecordSessionFlushed records a completed utterance with its trigger reason
func (m *Metrics) RecordSessionFlushed(reason string, sizeBytes int, durationSeconds float64) {
	m.SessionsFlushed.WithLabelValues(reason).Inc()
	m.UtteranceSize.Observe(float64(sizeBytes))
	m.UtteranceDuration.Observe(durationSeconds)
}

// SetQueueDepth sets the current dispatch queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordFlushDropped increments the dropped flushes counter
func (m *Metrics) RecordFlushDropped() {
	m.FlushesDropped.Inc()
}

// RecordTranscriptionRequest increments the transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the transcription retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordAgentRequest increments the agent requests counter
func (m *Metrics) RecordAgentRequest() {
	m.AgentRequests.Inc()
}

// RecordAgentSuccess records a successful agent call
func (m *Metrics) RecordAgentSuccess(durationSeconds float64) {
	m.AgentSuccesses.Inc()
	m.AgentDuration.Observe(durationSeconds)
}

// RecordAgentFailure records a failed agent call
func (m *Metrics) RecordAgentFailure(durationSeconds float64) {
	m.AgentFailures.Inc()
	m.AgentDuration.Observe(durationSeconds)
}

// RecordAgentRetry increments the agent retry counter
func (m *Metrics) RecordAgentRetry() {
	m.AgentRetries.Inc()
}

// RecordReplySent increments the replies sent counter
func (m *Metrics) RecordReplySent() {
	m.RepliesSent.Inc()
}

// RecordReplyFailed increments the reply failures counter
func (m *Metrics) RecordReplyFailed() {
	m.RepliesFailed.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

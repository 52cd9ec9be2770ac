// Package metrics defines the Prometheus instrumentation for the capture
// pipeline: capture throughput, buffer depth, chunk delivery, and session
// lifecycle counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription pipeline
type Metrics struct {
	// Capture metrics
	BlocksCaptured   prometheus.Counter
	SamplesBuffered  prometheus.Counter
	SamplesDropped   prometheus.Counter
	BufferDepth      prometheus.Gauge

	// Delivery metrics
	ChunksDelivered  prometheus.Counter
	ChunksFailed     prometheus.Counter
	DeliveryDuration prometheus.Histogram

	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter
	SessionsFailed   prometheus.Counter
	SessionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		BlocksCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_capture_blocks_total",
			Help: "Total number of audio blocks received from the capture source",
		}),
		SamplesBuffered: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_samples_buffered_total",
			Help: "Total number of target-rate samples appended to the segment buffer",
		}),
		SamplesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_samples_dropped_total",
			Help: "Total number of oldest samples dropped by a bounded segment buffer",
		}),
		BufferDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "asr_segment_buffer_samples",
			Help: "Current number of samples waiting in the segment buffer",
		}),

		// Delivery metrics
		ChunksDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_chunks_delivered_total",
			Help: "Total number of audio chunks successfully delivered",
		}),
		ChunksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_chunks_failed_total",
			Help: "Total number of audio chunk deliveries that failed",
		}),
		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_chunk_delivery_duration_seconds",
			Help:    "Duration of chunk delivery requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),

		// Session metrics
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_finished_total",
			Help: "Total number of recording sessions finished cleanly",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_sessions_failed_total",
			Help: "Total number of recording sessions that ended in error",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_session_duration_seconds",
			Help:    "Duration of recording sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_http_requests_total",
			Help: "Total number of monitoring HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asr_http_request_duration_seconds",
			Help:    "Duration of monitoring HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordBlockCaptured increments the captured blocks counter
func (m *Metrics) RecordBlockCaptured() {
	m.BlocksCaptured.Inc()
}

// RecordSamplesBuffered records samples appended and any bound-induced drops
func (m *Metrics) RecordSamplesBuffered(appended, dropped int) {
	m.SamplesBuffered.Add(float64(appended))
	if dropped > 0 {
		m.SamplesDropped.Add(float64(dropped))
	}
}

// SetBufferDepth sets the current segment buffer depth
func (m *Metrics) SetBufferDepth(samples int) {
	m.BufferDepth.Set(float64(samples))
}

// RecordChunkDelivered increments delivered chunks and records latency
func (m *Metrics) RecordChunkDelivered(durationSeconds float64) {
	m.ChunksDelivered.Inc()
	m.DeliveryDuration.Observe(durationSeconds)
}

// RecordChunkFailed increments the failed chunk deliveries counter
func (m *Metrics) RecordChunkFailed() {
	m.ChunksFailed.Inc()
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionFinished increments finished sessions and records duration
func (m *Metrics) RecordSessionFinished(durationSeconds float64) {
	m.SessionsFinished.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionFailed increments the failed sessions counter
func (m *Metrics) RecordSessionFailed() {
	m.SessionsFailed.Inc()
}

// RecordHTTPRequest records a monitoring HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

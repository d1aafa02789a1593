package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "segmenter_active_sessions",
		Help: "Number of recorder sessions currently running",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_sessions_total",
		Help: "Total number of recorder sessions by outcome",
	}, []string{"outcome"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "segmenter_session_duration_seconds",
		Help:    "Wall-clock duration of recorder sessions in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 8, 15, 30, 60, 300},
	})

	// Frame and classifier metrics
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_frames_total",
		Help: "Total number of frames classified, by verdict",
	}, []string{"backend", "verdict"}) // verdict: speech, silence, pending, error

	backendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_backend_errors_total",
		Help: "Classifier failures absorbed as non-speech",
	}, []string{"backend"})

	trimmedSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_backend_trimmed_samples_total",
		Help: "Samples discarded from classifier buffers that exceeded their cap",
	}, []string{"backend"})

	// Segment metrics
	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_segments_total",
		Help: "Total number of speech segments emitted",
	}, []string{"backend"})

	segmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "segmenter_segment_duration_seconds",
		Help:    "Audio duration of emitted segments in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
	})

	// Source metrics
	sourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_source_errors_total",
		Help: "Fatal frame source failures",
	}, []string{"source"})

	droppedSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_source_dropped_samples_total",
		Help: "Samples dropped because a source buffer was full",
	}, []string{"source"})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmenter_audio_bytes_total",
		Help: "Total audio bytes received from sources",
	}, []string{"source"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "segmenter_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// Verdict labels for RecordFrame
const (
	VerdictSpeech  = "speech"
	VerdictSilence = "silence"
	VerdictPending = "pending"
	VerdictError   = "error"
)

// SessionMetrics tracks metrics for a single recorder session
type SessionMetrics struct {
	sessionID string
	backend   string
	startTime time.Time
	ended     bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID, backend string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		backend:   backend,
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
	activeSessions.Inc()
}

// RecordSessionEnd records the end of a session. Only the first call counts.
func (m *SessionMetrics) RecordSessionEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended || m.startTime.IsZero() {
		return
	}
	m.ended = true

	activeSessions.Dec()
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordFrame records one classified frame
func (m *SessionMetrics) RecordFrame(verdict string) {
	framesTotal.WithLabelValues(m.backend, verdict).Inc()
}

// RecordBackendError records a classifier failure absorbed as non-speech
func (m *SessionMetrics) RecordBackendError() {
	backendErrors.WithLabelValues(m.backend).Inc()
}

// RecordSegment records an emitted segment
func (m *SessionMetrics) RecordSegment(duration time.Duration) {
	segmentsTotal.WithLabelValues(m.backend).Inc()
	segmentDuration.Observe(duration.Seconds())
}

// RecordSourceError records a fatal source failure
func RecordSourceError(source string) {
	sourceErrors.WithLabelValues(source).Inc()
}

// RecordDroppedSamples records samples a source could not buffer
func RecordDroppedSamples(source string, n int) {
	if n > 0 {
		droppedSamples.WithLabelValues(source).Add(float64(n))
	}
}

// RecordTrimmedSamples records samples a classifier discarded from its buffer
func RecordTrimmedSamples(backend string, n int) {
	if n > 0 {
		trimmedSamples.WithLabelValues(backend).Add(float64(n))
	}
}

// RecordAudioBytes records audio bytes received from a source
func RecordAudioBytes(source string, bytes int) {
	audioBytesProcessed.WithLabelValues(source).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

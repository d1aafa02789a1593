package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/observability"
	"github.com/lexiqai/speech-segmenter/internal/resilience"
)

// Guard wraps a Backend so that classification never fails: errors and
// panics become non-speech verdicts with Verdict.Err set. An optional circuit
// breaker stops calling a backend that keeps failing until its reset timeout
// elapses.
type Guard struct {
	inner     Backend
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger
	metrics   *observability.SessionMetrics
	suspended bool
}

// GuardOption customizes a Guard
type GuardOption func(*Guard)

// WithBreaker sets the circuit breaker consulted before each call
func WithBreaker(cb *resilience.CircuitBreaker) GuardOption {
	return func(g *Guard) { g.breaker = cb }
}

// WithLogger sets the logger used for absorbed failures
func WithLogger(logger zerolog.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// WithMetrics sets the session metrics that count absorbed failures
func WithMetrics(m *observability.SessionMetrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard wraps inner
func NewGuard(inner Backend, opts ...GuardOption) *Guard {
	g := &Guard{
		inner:  inner,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	// a broken model fails on every frame; keep the log readable
	g.logger = g.logger.Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second})
	return g
}

// NewBreaker builds the circuit breaker used by Guard and reports its state
// transitions to the metrics gauge.
func NewBreaker(name string, maxFailures int, resetTimeout time.Duration) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(name, maxFailures, resetTimeout,
		resilience.WithStateChange(func(name string, _, to resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(to))
		}))
}

func (g *Guard) Name() string { return g.inner.Name() }

// Classify never returns an error
func (g *Guard) Classify(frame audio.Frame) (Verdict, error) {
	if g.breaker != nil && !g.breaker.Allow() {
		if !g.suspended {
			g.suspended = true
			g.logger.Warn().Str("backend", g.inner.Name()).Msg("classifier suspended, treating frames as non-speech")
		}
		return Verdict{Err: ErrSuspended}, nil
	}

	v, err := g.classify(frame)
	if g.breaker != nil {
		g.breaker.RecordResult(err == nil)
	}
	if err == nil {
		if g.suspended {
			g.suspended = false
			g.logger.Info().Str("backend", g.inner.Name()).Msg("classifier recovered")
		}
		return v, nil
	}

	if g.metrics != nil {
		g.metrics.RecordBackendError()
	}
	g.logger.Warn().
		Err(err).
		Str("backend", g.inner.Name()).
		Dur("offset", frame.Offset).
		Msg("classifier failed, treating frame as non-speech")
	return Verdict{Err: err}, nil
}

func (g *Guard) classify(frame audio.Frame) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{}
			err = &BackendError{Backend: g.inner.Name(), Err: fmt.Errorf("%v", r), Panic: true}
		}
	}()

	v, err = g.inner.Classify(frame)
	if err != nil {
		var be *BackendError
		if !errors.As(err, &be) {
			err = &BackendError{Backend: g.inner.Name(), Err: err}
		}
		return Verdict{}, err
	}
	return v, nil
}

// Reset resets the wrapped backend and closes the breaker
func (g *Guard) Reset() error {
	if g.breaker != nil {
		g.breaker.Reset()
	}
	g.suspended = false
	return g.safely(g.inner.Reset)
}

// Close closes the wrapped backend
func (g *Guard) Close() error {
	return g.safely(g.inner.Close)
}

func (g *Guard) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &BackendError{Backend: g.inner.Name(), Err: fmt.Errorf("%v", r), Panic: true}
		}
	}()
	return fn()
}

// Unwrap returns the guarded backend
func (g *Guard) Unwrap() Backend {
	return g.inner
}

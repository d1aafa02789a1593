// Package recorder runs a voice-activity recording session: it reads frames
// from a source, classifies them, feeds the segmentation state machine and
// hands finished segments to a callback.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/config"
	"github.com/lexiqai/speech-segmenter/internal/observability"
	"github.com/lexiqai/speech-segmenter/internal/resilience"
	"github.com/lexiqai/speech-segmenter/internal/segmenter"
	"github.com/lexiqai/speech-segmenter/internal/source"
	"github.com/lexiqai/speech-segmenter/internal/vad"
)

// Callback receives each finished segment on the session worker. It must not
// block for long; hand heavy work to another goroutine. Temporary files named
// by Segment.Path stay until Cleanup. A callback that calls Cleanup gets an
// asynchronous cleanup that completes once the worker exits. A panicking
// callback ends the session with OutcomeCallbackFailed.
type Callback func(seg *segmenter.Segment)

// Option customizes a Session
type Option func(*Session)

// WithSessionID sets the session ID instead of generating one
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithRetryConfig sets the retry policy used to open the source
func WithRetryConfig(cfg *resilience.RetryConfig) Option {
	return func(s *Session) { s.retry = cfg }
}

// Session records from one source until a segment completes (or, in
// continuous mode, until stopped or the stream ends).
//
// Start blocks while a single worker goroutine runs the frame loop. Stop may
// be called from any goroutine. Cleanup releases everything and may be
// called at any time, any number of times.
type Session struct {
	cfg       *config.Config
	src       source.Source
	backend   *vad.Guard
	machine   *segmenter.Machine
	onSegment Callback
	store     *segmentStore
	retry     *resilience.RetryConfig

	id      string
	logger  zerolog.Logger
	metrics *observability.SessionMetrics

	mu       sync.Mutex
	started  bool
	cleaned  bool
	cancel   context.CancelFunc
	stopping atomic.Bool
	done     chan struct{}

	// set while the worker runs the callback
	inCallback atomic.Bool

	releaseOnce sync.Once
	releaseErr  error
	cleanupOnce sync.Once
	cleanupErr  error
	cleanedUp   chan struct{}
}

// NewSession validates cfg and assembles a session. Nothing is acquired
// until Start. The backend is owned by the caller and may be shared across
// sessions that do not run concurrently; it is reset at the start of each
// session. Configuration errors match config.ErrInvalid.
func NewSession(cfg *config.Config, src source.Source, backend vad.Backend, onSegment Callback, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil frame source", config.ErrInvalid)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: nil classifier backend", config.ErrInvalid)
	}

	s := &Session{
		cfg:       cfg,
		src:       src,
		onSegment: onSegment,
		machine:   segmenter.NewMachine(segmenter.PolicyFromConfig(cfg)),
		retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.DeviceOpenAttempts,
			InitialBackoff:    cfg.DeviceOpenBackoff,
			MaxBackoff:        10 * cfg.DeviceOpenBackoff,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		done:      make(chan struct{}),
		cleanedUp: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = observability.NewSessionID()
	}

	s.logger = observability.WithSession(s.id, backend.Name()).With().Str("source", src.Name()).Logger()
	s.metrics = observability.NewSessionMetrics(s.id, backend.Name())
	s.backend = vad.NewGuard(backend,
		vad.WithBreaker(vad.NewBreaker("vad-"+backend.Name(), cfg.BackendMaxFailures, cfg.BackendResetTimeout)),
		vad.WithLogger(s.logger),
		vad.WithMetrics(s.metrics),
	)
	if cfg.SaveSegments {
		s.store = newSegmentStore(cfg.SegmentDirectory())
	}
	return s, nil
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// Start runs the session and blocks until it ends. Only a source failure is
// reported as an error (a *SourceError); timeouts, stops and the end of the
// stream are outcomes.
func (s *Session) Start(ctx context.Context) (Result, error) {
	s.mu.Lock()
	switch {
	case s.cleaned:
		s.mu.Unlock()
		return Result{SessionID: s.id}, ErrCleanedUp
	case s.started:
		s.mu.Unlock()
		return Result{SessionID: s.id}, ErrAlreadyStarted
	}
	s.started = true

	ctx, span := observability.StartSpan(ctx, "recorder.session",
		attribute.String("session.id", s.id),
		attribute.String("vad.backend", s.backend.Name()),
		attribute.String("source", s.src.Name()),
	)
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	s.mu.Unlock()

	if s.stopping.Load() {
		cancel()
	}

	s.metrics.RecordSessionStart()
	s.logger.Info().
		Int("sample_rate", s.cfg.SampleRate).
		Int("frame_size", s.cfg.FrameSize).
		Str("stop_policy", s.cfg.StopPolicy).
		Bool("continuous", s.cfg.Continuous).
		Msg("session started")

	type outcome struct {
		res Result
		err error
	}
	results := make(chan outcome, 1)
	go func() {
		defer close(s.done)
		res, err := s.run(ctx)
		results <- outcome{res, err}
	}()
	out := <-results

	out.res.SessionID = s.id
	s.metrics.RecordSessionEnd(out.res.Outcome.String())
	span.SetAttributes(
		attribute.String("outcome", out.res.Outcome.String()),
		attribute.Int("segments", out.res.Segments),
		attribute.Int("frames", out.res.Frames),
	)

	event := s.logger.Info()
	if out.err != nil {
		observability.RecordError(ctx, out.err)
		event = s.logger.Error().Err(out.err)
	}
	event.
		Str("outcome", out.res.Outcome.String()).
		Int("segments", out.res.Segments).
		Int("frames", out.res.Frames).
		Dur("stream_time", out.res.StreamTime).
		Msg("session ended")

	return out.res, out.err
}

// Stop asks the worker to exit at the next frame boundary. A blocked read is
// interrupted. Only the first call has an effect.
func (s *Session) Stop() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	s.logger.Debug().Msg("stop requested")

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cleanup stops the session, waits for the worker, closes the source and
// removes temporary segment files. Only the first call does anything; later
// calls wait for it and return its error. Called from the callback, it
// returns nil at once and finishes after the worker exits.
func (s *Session) Cleanup() error {
	s.cleanupOnce.Do(func() {
		s.mu.Lock()
		s.cleaned = true
		started := s.started
		s.mu.Unlock()

		s.Stop()
		if started && s.inCallback.Load() {
			// the worker is blocked in this call
			go func() {
				<-s.done
				s.finishCleanup()
			}()
			return
		}
		if started {
			<-s.done
		}
		s.finishCleanup()
	})
	if s.inCallback.Load() {
		return nil
	}
	<-s.cleanedUp
	return s.cleanupErr
}

func (s *Session) finishCleanup() {
	errs := []error{s.release()}
	if s.store != nil {
		errs = append(errs, s.store.removeAll())
	}
	s.cleanupErr = errors.Join(errs...)
	s.logger.Debug().Msg("session cleaned up")
	close(s.cleanedUp)
}

// release closes the source exactly once
func (s *Session) release() error {
	s.releaseOnce.Do(func() {
		s.machine.Discard()
		if err := s.src.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close source")
			s.releaseErr = fmt.Errorf("close %s source: %w", s.src.Name(), err)
		}
	})
	return s.releaseErr
}

// loop state owned by the worker
type worker struct {
	*Session
	ctx   context.Context
	res   Result
	clock time.Duration
	// source operation in progress, for panics
	op string
}

func (s *Session) run(ctx context.Context) (res Result, err error) {
	w := &worker{Session: s, ctx: ctx, op: "open"}
	defer func() {
		if rerr := s.release(); rerr != nil && err == nil {
			s.logger.Warn().Err(rerr).Msg("source release failed")
		}
	}()
	// runs before release
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("op", w.op).Msg("frame source panicked")
			res, err = w.sourceFailed(w.op, fmt.Errorf("panic: %v", r))
		}
	}()

	if rerr := s.backend.Reset(); rerr != nil {
		s.logger.Warn().Err(rerr).Msg("failed to reset classifier")
	}
	s.machine.Reset()

	if s.stopping.Load() {
		return w.stopped(), nil
	}

	err = resilience.Retry(ctx, "open "+s.src.Name()+" source", s.src.Open, s.retry, resilience.IsTransientDeviceError)
	if err != nil {
		if ctx.Err() != nil {
			return w.stopped(), nil
		}
		return w.sourceFailed("open", err)
	}

	w.op = "read"
	readTimeout := s.cfg.EffectiveReadTimeout()
	for {
		if s.stopping.Load() {
			return w.stopped(), nil
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		frame, rerr := s.src.ReadFrame(readCtx)
		cancel()

		switch {
		case rerr == nil:
			if ferr := w.checkFrame(frame); ferr != nil {
				return w.sourceFailed("read", ferr)
			}
			if done := w.process(frame); done {
				return w.res, nil
			}

		case errors.Is(rerr, io.EOF):
			return w.endOfStream(), nil

		case ctx.Err() != nil:
			return w.stopped(), nil

		case errors.Is(rerr, context.DeadlineExceeded):
			w.clock += readTimeout
			w.res.StreamTime = w.clock
			s.logger.Debug().Dur("clock", w.clock).Msg("frame read timed out")
			ev, seg := s.machine.Tick(w.clock)
			if done := w.handle(ev, seg); done {
				return w.res, nil
			}

		default:
			return w.sourceFailed("read", rerr)
		}
	}
}

// checkFrame rejects frames that do not match the configured format
func (w *worker) checkFrame(frame audio.Frame) error {
	if frame.SampleRate != w.cfg.SampleRate || len(frame.Samples) != w.cfg.FrameSize {
		return fmt.Errorf("%w: got %d samples at %d Hz, want %d at %d Hz", ErrFrameMismatch,
			len(frame.Samples), frame.SampleRate, w.cfg.FrameSize, w.cfg.SampleRate)
	}
	return nil
}

// process classifies one frame and feeds the state machine. The frame is
// restamped on the session's stream clock.
func (w *worker) process(frame audio.Frame) bool {
	frame.Offset = w.clock
	w.clock = frame.End()
	w.res.StreamTime = w.clock
	w.res.Frames++

	// Guard never fails
	verdict, _ := w.backend.Classify(frame)
	w.metrics.RecordFrame(verdict.Label())
	if verdict.Err != nil {
		observability.AddEvent(w.ctx, "backend_error",
			attribute.String("error", verdict.Err.Error()),
			attribute.Int64("offset_ms", frame.Offset.Milliseconds()),
		)
	}

	ev, seg := w.machine.Feed(frame, verdict.Speech)
	return w.handle(ev, seg)
}

// handle reacts to a state machine event and reports whether the session
// is over.
func (w *worker) handle(ev segmenter.Event, seg *segmenter.Segment) bool {
	switch ev {
	case segmenter.EventSpeechStart:
		at, _ := w.machine.SpeechStartedAt()
		w.logger.Debug().Dur("at", at).Msg("speech started")
		observability.AddEvent(w.ctx, "speech_start", attribute.Int64("offset_ms", at.Milliseconds()))

	case segmenter.EventSegmentEnd:
		if !w.emit(seg) {
			w.res.Outcome = OutcomeCallbackFailed
			return true
		}
		if !w.cfg.Continuous {
			w.res.Outcome = OutcomeSegment
			return true
		}

	case segmenter.EventTimeout:
		w.logger.Info().Dur("timeout", w.cfg.NoSpeechTimeout).Msg("no speech detected")
		w.res.Outcome = OutcomeTimeout
		return true
	}
	return false
}

// emit stores and delivers a segment. It reports false if the callback
// panicked.
func (w *worker) emit(seg *segmenter.Segment) bool {
	seg.SessionID = w.id
	if w.store != nil {
		path, err := w.store.save(seg)
		if err != nil {
			w.logger.Warn().Err(err).Msg("failed to save segment")
		}
		seg.Path = path
	}

	w.res.Segments++
	w.metrics.RecordSegment(seg.Duration())
	observability.AddEvent(w.ctx, "segment_end",
		attribute.Int("seq", seg.Seq),
		attribute.Int64("start_ms", seg.Start.Milliseconds()),
		attribute.Int64("end_ms", seg.End.Milliseconds()),
	)
	w.logger.Info().
		Int("seq", seg.Seq).
		Dur("start", seg.Start).
		Dur("end", seg.End).
		Int("samples", seg.NumSamples()).
		Str("path", seg.Path).
		Msg("segment completed")

	if w.onSegment == nil {
		return true
	}
	if err := w.deliver(seg); err != nil {
		w.logger.Error().Err(err).Int("seq", seg.Seq).Msg("segment callback failed")
		observability.AddEvent(w.ctx, "callback_panic", attribute.String("error", err.Error()))
		return false
	}
	return true
}

func (w *worker) deliver(seg *segmenter.Segment) (err error) {
	w.inCallback.Store(true)
	defer w.inCallback.Store(false)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCallbackPanic, r)
		}
	}()
	w.onSegment(seg)
	return nil
}

// stopped applies the stop policy to a segment in progress
func (w *worker) stopped() Result {
	if w.machine.State() == segmenter.Speaking {
		if w.cfg.StopPolicy == config.StopHard {
			w.logger.Info().Int("frames", w.machine.Buffered()).Msg("discarding partial segment")
			w.machine.Discard()
		} else if seg := w.machine.Flush(); seg != nil && !w.emit(seg) {
			w.res.Outcome = OutcomeCallbackFailed
			return w.res
		}
	}
	w.res.Outcome = OutcomeStopped
	return w.res
}

// endOfStream finalizes a segment in progress when the source runs dry
func (w *worker) endOfStream() Result {
	if seg := w.machine.Flush(); seg != nil {
		w.res.Outcome = OutcomeSegment
		if !w.emit(seg) {
			w.res.Outcome = OutcomeCallbackFailed
		}
		return w.res
	}
	w.res.Outcome = OutcomeEndOfStream
	return w.res
}

func (w *worker) sourceFailed(op string, err error) (Result, error) {
	observability.RecordSourceError(w.src.Name())
	w.machine.Discard()
	w.res.Outcome = OutcomeSourceFailed
	return w.res, &SourceError{Source: w.src.Name(), Op: op, Err: err}
}

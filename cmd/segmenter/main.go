package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/speech-segmenter/internal/config"
	"github.com/lexiqai/speech-segmenter/internal/observability"
	"github.com/lexiqai/speech-segmenter/internal/recorder"
	"github.com/lexiqai/speech-segmenter/internal/segmenter"
	"github.com/lexiqai/speech-segmenter/internal/source"
	"github.com/lexiqai/speech-segmenter/internal/vad"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	sourceName := flag.String("source", "", "frame source: mic, file or twilio (overrides config)")
	input := flag.String("input", "", "audio file for the file source (overrides config)")
	continuous := flag.Bool("continuous", false, "keep segmenting after the first segment")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *sourceName, *input, *continuous)
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := observability.InitTracing(ctx, observability.TraceConfig{
		ServiceName:    "speech-segmenter",
		ServiceVersion: version,
		Exporter:       cfg.TraceExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	}); err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.ShutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	if cfg.Model == "silero" {
		if err := vad.InitRuntime(cfg.ONNXRuntimeLib); err != nil {
			logger.Error().Err(err).Msg("failed to initialize ONNX runtime")
			os.Exit(1)
		}
		defer vad.DestroyRuntime()
	}

	logger.Info().
		Str("source", cfg.Source).
		Str("backend", cfg.Backend).
		Str("model", cfg.Model).
		Int("sample_rate", cfg.SampleRate).
		Int("frame_size", cfg.FrameSize).
		Msg("speech segmenter starting")

	if cfg.Source == config.SourceTwilio {
		err = serve(ctx, cfg, logger)
	} else {
		err = record(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error().Err(err).Msg("segmenter failed")
		os.Exit(1)
	}
}

func loadConfig(path, sourceName, input string, continuous bool) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if sourceName != "" {
		cfg.Source = sourceName
	}
	if input != "" {
		cfg.InputFile = input
		if sourceName == "" {
			cfg.Source = config.SourceFile
		}
	}
	if continuous {
		cfg.Continuous = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// record runs one session against the microphone or a file and prints each
// segment as a JSON line on stdout.
func record(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	backend, err := vad.NewBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	var src source.Source
	if cfg.Source == config.SourceFile {
		src = source.NewFileSource(cfg.InputFile, cfg.SampleRate, cfg.FrameSize)
	} else {
		src = source.NewMicSource(cfg.SampleRate, cfg.FrameSize)
	}

	out := json.NewEncoder(os.Stdout)
	session, err := recorder.NewSession(cfg, src, backend, func(seg *segmenter.Segment) {
		if err := out.Encode(segmentLine(seg)); err != nil {
			logger.Warn().Err(err).Msg("failed to print segment")
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	res, err := session.Start(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Str("outcome", res.Outcome.String()).
		Int("segments", res.Segments).
		Dur("stream_time", res.StreamTime).
		Msg("done")
	return nil
}

type segmentJSON struct {
	Seq        int     `json:"seq"`
	Session    string  `json:"session_id"`
	StartSec   float64 `json:"start"`
	EndSec     float64 `json:"end"`
	Samples    int     `json:"samples"`
	SampleRate int     `json:"sample_rate"`
	Path       string  `json:"path,omitempty"`
}

func segmentLine(seg *segmenter.Segment) segmentJSON {
	return segmentJSON{
		Seq:        seg.Seq,
		Session:    seg.SessionID,
		StartSec:   seg.Start.Seconds(),
		EndSec:     seg.End.Seconds(),
		Samples:    seg.NumSamples(),
		SampleRate: seg.SampleRate,
		Path:       seg.Path,
	}
}

// serve accepts Twilio Media Streams and runs one session per call
func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// fail fast on a model that cannot be loaded
	check, err := vad.NewBackend(cfg)
	if err != nil {
		return err
	}
	_ = check.Close()

	var (
		sessions sync.WaitGroup
		draining atomic.Bool
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/streams/twilio", source.HandleTwilioWS(cfg.SampleRate, cfg.FrameSize,
		func(r *http.Request, src *source.TwilioSource) {
			sessions.Add(1)
			defer sessions.Done()
			runCall(r.Context(), cfg, src, logger)
		}))

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"server": func(ctx context.Context) (bool, error) {
			if draining.Load() {
				return false, errors.New("shutting down")
			}
			return true, nil
		},
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: mux,
		// hijacked websocket connections are not tracked by Shutdown; their
		// request contexts end with ctx instead
		BaseContext:  func(net.Listener) context.Context { return ctx },
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/twilio", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		draining.Store(true)
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		sessions.Wait()
		logger.Info().Msg("Server exited gracefully")
		return nil
	})
	return g.Wait()
}

func runCall(ctx context.Context, cfg *config.Config, src *source.TwilioSource, logger zerolog.Logger) {
	backend, err := vad.NewBackend(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create classifier")
		return
	}
	defer backend.Close()

	session, err := recorder.NewSession(cfg, src, backend, func(seg *segmenter.Segment) {
		logger.Info().
			Str("session_id", seg.SessionID).
			Str("call_sid", src.CallSid()).
			Int("seq", seg.Seq).
			Dur("start", seg.Start).
			Dur("end", seg.End).
			Str("path", seg.Path).
			Msg("call segment")
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create session")
		return
	}
	defer session.Cleanup()

	if _, err := session.Start(ctx); err != nil {
		logger.Warn().Err(err).Str("call_sid", src.CallSid()).Msg("call session failed")
	}
}

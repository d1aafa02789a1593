package observability

import (
	"context"
	"errors"
	"testing"
)

func TestInitTracing(t *testing.T) {
	ctx := context.Background()

	t.Run("none exporter installs nothing", func(t *testing.T) {
		if err := InitTracing(ctx, TraceConfig{Exporter: "none"}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if err := ShutdownTracing(ctx); err != nil {
			t.Errorf("Expected no error on shutdown, got %v", err)
		}
	})

	t.Run("unsupported exporter", func(t *testing.T) {
		if err := InitTracing(ctx, TraceConfig{Exporter: "zipkin"}); err == nil {
			t.Error("Expected error for unsupported exporter")
		}
	})

	t.Run("stdout exporter records spans", func(t *testing.T) {
		err := InitTracing(ctx, TraceConfig{
			ServiceName:    "speech-segmenter",
			ServiceVersion: "test",
			Exporter:       "stdout",
		})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		defer func() {
			if err := ShutdownTracing(ctx); err != nil {
				t.Errorf("Expected no error on shutdown, got %v", err)
			}
		}()

		if err := InitTracing(ctx, TraceConfig{Exporter: "stdout"}); err == nil {
			t.Error("Expected error when tracing is initialized twice")
		}

		spanCtx, span := StartSpan(ctx, "recorder.session")
		if !span.IsRecording() {
			t.Error("Expected span to be recording")
		}
		AddEvent(spanCtx, "speech_start")
		RecordError(spanCtx, errors.New("device lost"))
		RecordError(spanCtx, nil)
		span.End()
	})
}

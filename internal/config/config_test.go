package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate 16000, got %d", cfg.SampleRate)
	}
	if cfg.FrameSize != 512 {
		t.Errorf("Expected default FrameSize 512, got %d", cfg.FrameSize)
	}
	if cfg.Threshold != 0.5 {
		t.Errorf("Expected default Threshold 0.5, got %f", cfg.Threshold)
	}
	if cfg.NoSpeechTimeout != 8*time.Second {
		t.Errorf("Expected default NoSpeechTimeout 8s, got %v", cfg.NoSpeechTimeout)
	}
	if cfg.MinSilenceDuration != 500*time.Millisecond {
		t.Errorf("Expected default MinSilenceDuration 500ms, got %v", cfg.MinSilenceDuration)
	}
	if cfg.MinSpeechDuration != 250*time.Millisecond {
		t.Errorf("Expected default MinSpeechDuration 250ms, got %v", cfg.MinSpeechDuration)
	}
	if cfg.StopPolicy != StopGraceful {
		t.Errorf("Expected default StopPolicy graceful, got %s", cfg.StopPolicy)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VAD_THRESHOLD", "0.7")
	t.Setenv("MIN_SILENCE_DURATION", "0s")
	t.Setenv("VAD_BACKEND", "webrtc")
	t.Setenv("STOP_POLICY", "hard")
	t.Setenv("CONTINUOUS", "true")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Threshold != 0.7 {
		t.Errorf("Expected Threshold 0.7, got %f", cfg.Threshold)
	}
	if cfg.MinSilenceDuration != 0 {
		t.Errorf("Expected MinSilenceDuration 0, got %v", cfg.MinSilenceDuration)
	}
	if cfg.Backend != "webrtc" {
		t.Errorf("Expected Backend webrtc, got %s", cfg.Backend)
	}
	if cfg.StopPolicy != StopHard {
		t.Errorf("Expected StopPolicy hard, got %s", cfg.StopPolicy)
	}
	if !cfg.Continuous {
		t.Error("Expected Continuous to be true")
	}
	// untouched keys keep their defaults
	if cfg.SmoothingWindow != 5 {
		t.Errorf("Expected SmoothingWindow 5, got %d", cfg.SmoothingWindow)
	}
}

func TestLoad_MalformedEnv(t *testing.T) {
	t.Setenv("FRAME_SIZE", "lots")

	_, err := LoadFromEnv()
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid for malformed FRAME_SIZE, got %v", err)
	}
}

func TestLoadFromReader_UnknownAndMissingKeys(t *testing.T) {
	yamlDoc := `
threshold: 0.6
min_silence_duration: 300ms
wake_word: jarvis
`
	cfg, err := LoadFromReader(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("LoadFromReader() failed: %v", err)
	}

	if cfg.Threshold != 0.6 {
		t.Errorf("Expected Threshold 0.6, got %f", cfg.Threshold)
	}
	if cfg.MinSilenceDuration != 300*time.Millisecond {
		t.Errorf("Expected MinSilenceDuration 300ms, got %v", cfg.MinSilenceDuration)
	}
	if cfg.FrameSize != 512 {
		t.Errorf("Expected missing FrameSize to default to 512, got %d", cfg.FrameSize)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader() failed on empty input: %v", err)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate, got %d", cfg.SampleRate)
	}
}

func TestLoadFromReader_MalformedValue(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("threshold: high\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
}

func TestLoadFile_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segmenter.yaml")
	if err := os.WriteFile(path, []byte("threshold: 0.6\nframe_size: 256\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VAD_THRESHOLD", "0.8")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Threshold != 0.8 {
		t.Errorf("Expected env Threshold 0.8, got %f", cfg.Threshold)
	}
	if cfg.FrameSize != 256 {
		t.Errorf("Expected file FrameSize 256, got %d", cfg.FrameSize)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := Default()
	cfg.FrameSize = 0
	cfg.Threshold = 1.5
	cfg.Backend = "magic"
	cfg.StopPolicy = "sometimes"

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected ErrInvalid, got %v", err)
	}
	for _, field := range []string{"frame_size", "threshold", "backend", "stop_policy"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Expected error to mention %s: %v", field, err)
		}
	}

	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Error("Expected a FieldError in the joined error")
	}
}

func TestValidate_DependentFields(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"silero needs model path", func(c *Config) { c.Model = "silero" }, "model_path"},
		{"file source needs input", func(c *Config) { c.Source = SourceFile }, "input_file"},
		{"cap below window", func(c *Config) { c.BufferCap = 100 }, "buffer_cap"},
		{"negative timeout", func(c *Config) { c.NoSpeechTimeout = -time.Second }, "no_speech_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestCanonicalBackend(t *testing.T) {
	tests := map[string]string{
		"silero":                   BackendProbabilityThreshold,
		"webrtc":                   BackendBinaryFlagSmoothed,
		"tenvad":                   BackendBufferedProbability,
		BackendBufferedProbability: BackendBufferedProbability,
	}
	for name, want := range tests {
		got, ok := CanonicalBackend(name)
		if !ok || got != want {
			t.Errorf("CanonicalBackend(%q) = %q, %v; want %q", name, got, ok, want)
		}
	}
	if _, ok := CanonicalBackend("porcupine"); ok {
		t.Error("Expected unknown backend to be rejected")
	}
}

func TestDerivedDurations(t *testing.T) {
	cfg := Default()

	if cfg.FrameDuration() != 32*time.Millisecond {
		t.Errorf("Expected 32ms frames, got %v", cfg.FrameDuration())
	}
	if cfg.EffectiveReadTimeout() != 128*time.Millisecond {
		t.Errorf("Expected 128ms read timeout, got %v", cfg.EffectiveReadTimeout())
	}

	cfg.ReadTimeout = time.Second
	if cfg.EffectiveReadTimeout() != time.Second {
		t.Errorf("Expected explicit read timeout, got %v", cfg.EffectiveReadTimeout())
	}
}

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Classifier backend names. The reference-implementation names are accepted
// as aliases: silero is a probability-threshold backend, webrtc a smoothed
// binary flag and tenvad a buffered probability backend.
const (
	BackendProbabilityThreshold = "probability-threshold"
	BackendBinaryFlagSmoothed   = "binary-flag-smoothed"
	BackendBufferedProbability  = "buffered-probability"
)

// Stop policies applied when a session is stopped while speech is in progress
const (
	StopGraceful = "graceful" // finalize and emit the partial segment
	StopHard     = "hard"     // discard the partial segment
)

// Frame sources
const (
	SourceMic    = "mic"
	SourceFile   = "file"
	SourceTwilio = "twilio"
)

var (
	backendAliases = map[string]string{
		BackendProbabilityThreshold: BackendProbabilityThreshold,
		BackendBinaryFlagSmoothed:   BackendBinaryFlagSmoothed,
		BackendBufferedProbability:  BackendBufferedProbability,
		"silero":                    BackendProbabilityThreshold,
		"webrtc":                    BackendBinaryFlagSmoothed,
		"tenvad":                    BackendBufferedProbability,
	}
	validModels    = []string{"energy", "silero"}
	validPolicies  = []string{StopGraceful, StopHard}
	validSources   = []string{SourceMic, SourceFile, SourceTwilio}
	validLogLevels = []string{"trace", "debug", "info", "warn", "error"}
	validExporters = []string{"none", "stdout", "otlp"}
)

// Config holds all configuration for the segmentation engine. It is built
// once and treated as immutable for the lifetime of a session.
type Config struct {
	// Audio format of the frames handed to the classifier
	SampleRate int `envconfig:"SAMPLE_RATE" yaml:"sample_rate"`
	FrameSize  int `envconfig:"FRAME_SIZE" yaml:"frame_size"` // samples per frame

	// Classifier configuration
	Backend         string  `envconfig:"VAD_BACKEND" yaml:"backend"`
	Model           string  `envconfig:"VAD_MODEL" yaml:"model"` // energy or silero
	ModelPath       string  `envconfig:"VAD_MODEL_PATH" yaml:"model_path"`
	ONNXRuntimeLib  string  `envconfig:"ONNXRUNTIME_LIB" yaml:"onnxruntime_lib"`
	Threshold       float64 `envconfig:"VAD_THRESHOLD" yaml:"threshold"`               // speech probability threshold, exclusive
	EnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" yaml:"energy_threshold"` // RMS level treated as speech by the energy model
	SmoothingWindow int     `envconfig:"SMOOTHING_WINDOW" yaml:"smoothing_window"`     // raw verdicts in the majority vote
	BufferWindow    int     `envconfig:"BUFFER_WINDOW" yaml:"buffer_window"`           // samples per buffered inference
	BufferCap       int     `envconfig:"BUFFER_CAP" yaml:"buffer_cap"`                 // max samples held by a buffered backend

	BackendMaxFailures  int           `envconfig:"BACKEND_MAX_FAILURES" yaml:"backend_max_failures"` // 0 disables the breaker
	BackendResetTimeout time.Duration `envconfig:"BACKEND_RESET_TIMEOUT" yaml:"backend_reset_timeout"`

	// Segmentation policy
	MinSpeechDuration  time.Duration `envconfig:"MIN_SPEECH_DURATION" yaml:"min_speech_duration"`
	MinSilenceDuration time.Duration `envconfig:"MIN_SILENCE_DURATION" yaml:"min_silence_duration"`
	NoSpeechTimeout    time.Duration `envconfig:"NO_SPEECH_TIMEOUT" yaml:"no_speech_timeout"` // 0 disables the watchdog
	StopPolicy         string        `envconfig:"STOP_POLICY" yaml:"stop_policy"`
	Continuous         bool          `envconfig:"CONTINUOUS" yaml:"continuous"`
	PreRollFrames      int           `envconfig:"PRE_ROLL_FRAMES" yaml:"pre_roll_frames"`

	// Segment storage
	SaveSegments bool   `envconfig:"SAVE_SEGMENTS" yaml:"save_segments"`
	SegmentDir   string `envconfig:"SEGMENT_DIR" yaml:"segment_dir"` // empty means os.TempDir()

	// Frame source
	Source             string        `envconfig:"SOURCE" yaml:"source"`
	InputFile          string        `envconfig:"INPUT_FILE" yaml:"input_file"`
	ReadTimeout        time.Duration `envconfig:"READ_TIMEOUT" yaml:"read_timeout"` // 0 means four frame periods
	DeviceOpenAttempts int           `envconfig:"DEVICE_OPEN_ATTEMPTS" yaml:"device_open_attempts"`
	DeviceOpenBackoff  time.Duration `envconfig:"DEVICE_OPEN_BACKOFF" yaml:"device_open_backoff"`

	// Server configuration (twilio source)
	Port string `envconfig:"PORT" yaml:"port"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" yaml:"log_level"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" yaml:"log_pretty"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" yaml:"metrics_enabled"`
	TraceExporter  string `envconfig:"TRACE_EXPORTER" yaml:"trace_exporter"`
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint"`
}

// Default returns the configuration used when nothing overrides a key
func Default() *Config {
	return &Config{
		SampleRate: 16000,
		FrameSize:  512,

		Backend:         BackendProbabilityThreshold,
		Model:           "energy",
		Threshold:       0.5,
		EnergyThreshold: 500.0,
		SmoothingWindow: 5,
		BufferWindow:    256,
		BufferCap:       4096,

		BackendMaxFailures:  20,
		BackendResetTimeout: time.Second,

		MinSpeechDuration:  250 * time.Millisecond,
		MinSilenceDuration: 500 * time.Millisecond,
		NoSpeechTimeout:    8 * time.Second,
		StopPolicy:         StopGraceful,

		Source:             SourceMic,
		DeviceOpenAttempts: 3,
		DeviceOpenBackoff:  100 * time.Millisecond,

		Port: "8080",

		LogLevel:       "info",
		MetricsEnabled: true,
		TraceExporter:  "none",
		OTLPEndpoint:   "localhost:4317",
	}
}

// Load reads configuration from environment variables on top of the
// defaults. It first attempts to load a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile layers a YAML file and then environment variables over the
// defaults. Unknown YAML keys are ignored.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	if err := decodeYAML(f, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. Environment variables are not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode yaml: %v", ErrInvalid, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("%w: failed to load config: %v", ErrInvalid, err)
	}
	return nil
}

// CanonicalBackend resolves a backend name or alias. ok is false for
// unknown names.
func CanonicalBackend(name string) (canonical string, ok bool) {
	canonical, ok = backendAliases[name]
	return canonical, ok
}

// FrameDuration returns the audio duration of one frame
func (c *Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// EffectiveReadTimeout returns the per-read deadline handed to the source
func (c *Config) EffectiveReadTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return 4 * c.FrameDuration()
}

// SegmentDirectory returns where temporary segment files are written
func (c *Config) SegmentDirectory() string {
	if c.SegmentDir != "" {
		return c.SegmentDir
	}
	return os.TempDir()
}

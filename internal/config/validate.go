package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalid is matched by every configuration error
var ErrInvalid = errors.New("invalid configuration")

// FieldError describes one invalid configuration key
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %v is invalid; %s", e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalid
}

// Validate checks that the configuration is coherent.
// It returns a joined error listing all validation failures found.
func (c *Config) Validate() error {
	var errs []error
	add := func(field string, value any, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)})
	}

	if c.SampleRate <= 0 {
		add("sample_rate", c.SampleRate, "must be positive")
	}
	if c.FrameSize <= 0 {
		add("frame_size", c.FrameSize, "must be positive")
	}

	if _, ok := CanonicalBackend(c.Backend); !ok {
		add("backend", quote(c.Backend), "valid values: %s", strings.Join(backendNames(), ", "))
	}
	if !slices.Contains(validModels, c.Model) {
		add("model", quote(c.Model), "valid values: %s", strings.Join(validModels, ", "))
	}
	if c.Model == "silero" && c.ModelPath == "" {
		add("model_path", quote(c.ModelPath), "required when model is silero")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		add("threshold", c.Threshold, "must be within [0, 1]")
	}
	if c.EnergyThreshold <= 0 {
		add("energy_threshold", c.EnergyThreshold, "must be positive")
	}
	if c.SmoothingWindow < 1 {
		add("smoothing_window", c.SmoothingWindow, "must be at least 1")
	}
	if c.BufferWindow < 1 {
		add("buffer_window", c.BufferWindow, "must be at least 1")
	}
	if c.BufferCap < c.BufferWindow {
		add("buffer_cap", c.BufferCap, "must be at least buffer_window (%d)", c.BufferWindow)
	}
	if c.BackendMaxFailures < 0 {
		add("backend_max_failures", c.BackendMaxFailures, "must not be negative")
	}
	if c.BackendResetTimeout < 0 {
		add("backend_reset_timeout", c.BackendResetTimeout, "must not be negative")
	}

	if c.MinSpeechDuration < 0 {
		add("min_speech_duration", c.MinSpeechDuration, "must not be negative")
	}
	if c.MinSilenceDuration < 0 {
		add("min_silence_duration", c.MinSilenceDuration, "must not be negative")
	}
	if c.NoSpeechTimeout < 0 {
		add("no_speech_timeout", c.NoSpeechTimeout, "must not be negative")
	}
	if !slices.Contains(validPolicies, c.StopPolicy) {
		add("stop_policy", quote(c.StopPolicy), "valid values: %s", strings.Join(validPolicies, ", "))
	}
	if c.PreRollFrames < 0 {
		add("pre_roll_frames", c.PreRollFrames, "must not be negative")
	}

	if !slices.Contains(validSources, c.Source) {
		add("source", quote(c.Source), "valid values: %s", strings.Join(validSources, ", "))
	}
	if c.Source == SourceFile && c.InputFile == "" {
		add("input_file", quote(c.InputFile), "required when source is file")
	}
	if c.ReadTimeout < 0 {
		add("read_timeout", c.ReadTimeout, "must not be negative")
	}
	if c.DeviceOpenAttempts < 1 {
		add("device_open_attempts", c.DeviceOpenAttempts, "must be at least 1")
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		add("log_level", quote(c.LogLevel), "valid values: %s", strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validExporters, c.TraceExporter) {
		add("trace_exporter", quote(c.TraceExporter), "valid values: %s", strings.Join(validExporters, ", "))
	}

	return errors.Join(errs...)
}

func backendNames() []string {
	names := make([]string, 0, len(backendAliases))
	for name := range backendAliases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Vendor selection and credentials
	switch cfg.Vendor.Name {
	case VendorSoniox:
		if cfg.Vendor.Soniox.APIKey == "" {
			errs = append(errs, errors.New("vendor.soniox.api_key is required"))
		}
		if cfg.Vendor.Soniox.KeepaliveIntervalMS < 0 {
			errs = append(errs, fmt.Errorf("vendor.soniox.keepalive_interval_ms %d must not be negative", cfg.Vendor.Soniox.KeepaliveIntervalMS))
		}
	case VendorTencent:
		t := cfg.Vendor.Tencent
		if t.AppID == "" {
			errs = append(errs, errors.New("vendor.tencent.app_id is required"))
		}
		if t.SecretID == "" {
			errs = append(errs, errors.New("vendor.tencent.secret_id is required"))
		}
		if t.SecretKey == "" {
			errs = append(errs, errors.New("vendor.tencent.secret_key is required"))
		}
		if t.VADSilenceTimeMS != 0 && (t.VADSilenceTimeMS < 240 || t.VADSilenceTimeMS > 2000) {
			errs = append(errs, fmt.Errorf("vendor.tencent.vad_silence_time_ms %d is out of range [240, 2000]", t.VADSilenceTimeMS))
		}
	case "":
		errs = append(errs, errors.New("vendor.name is required; valid values: soniox, tencent"))
	default:
		errs = append(errs, fmt.Errorf("vendor.name %q is invalid; valid values: soniox, tencent", cfg.Vendor.Name))
	}

	// Audio format
	switch cfg.Audio.SampleRate {
	case 8000, 16000, 24000, 32000, 44100, 48000:
	default:
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is not a supported rate", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameMS < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d must not be negative", cfg.Audio.FrameMS))
	}

	// Buffer
	if cfg.Buffer.ThresholdBytes < 0 {
		errs = append(errs, fmt.Errorf("buffer.threshold_bytes %d must not be negative", cfg.Buffer.ThresholdBytes))
	}
	if cfg.Buffer.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("buffer.max_bytes %d must not be negative", cfg.Buffer.MaxBytes))
	}
	if cfg.Buffer.MaxBytes > 0 && cfg.Buffer.ThresholdBytes > cfg.Buffer.MaxBytes {
		errs = append(errs, fmt.Errorf("buffer.threshold_bytes %d exceeds buffer.max_bytes %d", cfg.Buffer.ThresholdBytes, cfg.Buffer.MaxBytes))
	}

	// Reconnect
	if cfg.Reconnect.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_attempts %d must not be negative", cfg.Reconnect.MaxAttempts))
	}
	if cfg.Reconnect.BaseDelayMS < 0 || cfg.Reconnect.MaxDelayMS < 0 {
		errs = append(errs, errors.New("reconnect delays must not be negative"))
	}
	if cfg.Reconnect.BaseDelayMS > 0 && cfg.Reconnect.MaxDelayMS > 0 && cfg.Reconnect.BaseDelayMS > cfg.Reconnect.MaxDelayMS {
		errs = append(errs, fmt.Errorf("reconnect.base_delay_ms %d exceeds reconnect.max_delay_ms %d", cfg.Reconnect.BaseDelayMS, cfg.Reconnect.MaxDelayMS))
	}

	// Dump
	if cfg.Dump.Enabled && cfg.Dump.Path == "" {
		errs = append(errs, errors.New("dump.path is required when dump.enabled is true"))
	}

	// Soft warnings
	if cfg.Vendor.Name == VendorTencent && cfg.Audio.SampleRate != 16000 && cfg.Audio.SampleRate != 8000 {
		slog.Warn("tencent engines are trained on 8k/16k audio; other rates may degrade accuracy",
			"sample_rate", cfg.Audio.SampleRate,
		)
	}

	return errors.Join(errs...)
}

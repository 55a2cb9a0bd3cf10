// Package config provides the configuration schema, loader, and file watcher
// for the streamasr server.
package config

import "log/slog"

// LogLevel controls log verbosity for the streamasr server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog equivalent. Unrecognised values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Vendor selects the recognition backend.
type Vendor string

const (
	VendorSoniox  Vendor = "soniox"
	VendorTencent Vendor = "tencent"
)

// IsValid reports whether v is a recognised vendor.
func (v Vendor) IsValid() bool {
	return v == VendorSoniox || v == VendorTencent
}

// Config is the root configuration structure for streamasr.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Vendor    VendorConfig    `yaml:"vendor"`
	Audio     AudioConfig     `yaml:"audio"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Dump      DumpConfig      `yaml:"dump"`
}

// ServerConfig holds network and logging settings for the metrics/health
// endpoint.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// VendorConfig selects and configures the recognition backend.
type VendorConfig struct {
	// Name selects the backend: "soniox" or "tencent".
	Name Vendor `yaml:"name"`

	Soniox  SonioxConfig  `yaml:"soniox"`
	Tencent TencentConfig `yaml:"tencent"`
}

// SonioxConfig holds Soniox credentials and tuning.
type SonioxConfig struct {
	// APIKey authenticates against the Soniox real-time API.
	APIKey string `yaml:"api_key"`

	// URL overrides the default WebSocket endpoint. Leave empty for the
	// production endpoint.
	URL string `yaml:"url"`

	// Model selects the recognition model (e.g., "stt-rt-preview").
	Model string `yaml:"model"`

	// LanguageHints biases recognition toward the given language codes.
	LanguageHints []string `yaml:"language_hints"`

	// KeepaliveIntervalMS sends a keepalive when the stream has been idle
	// this long. Zero disables keepalives.
	KeepaliveIntervalMS int `yaml:"keepalive_interval_ms"`
}

// TencentConfig holds Tencent Cloud credentials and tuning.
type TencentConfig struct {
	AppID     string `yaml:"app_id"`
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`

	// Endpoint overrides the default API endpoint (host and path, no scheme).
	Endpoint string `yaml:"endpoint"`

	// EngineModelType selects the engine model (e.g., "16k_zh", "16k_en").
	EngineModelType string `yaml:"engine_model_type"`

	// VADSilenceTimeMS is the server-side VAD silence threshold. Tencent
	// accepts 240 to 2000. Zero uses the server default.
	VADSilenceTimeMS int `yaml:"vad_silence_time_ms"`

	// HotwordID selects a prebuilt hot word table.
	HotwordID string `yaml:"hotword_id"`
}

// AudioConfig fixes the PCM format of the input stream.
type AudioConfig struct {
	// SampleRate in Hz (e.g., 16000).
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count: 1 or 2.
	Channels int `yaml:"channels"`

	// Language is the primary BCP-47 language code of the stream.
	Language string `yaml:"language"`

	// FrameMS is the frame duration used when pacing audio from a file.
	FrameMS int `yaml:"frame_ms"`
}

// BufferConfig tunes the audio queue between the producer and the wire.
type BufferConfig struct {
	// ThresholdBytes caps the chunk size handed to the transport per write.
	ThresholdBytes int `yaml:"threshold_bytes"`

	// MaxBytes bounds the queue; the oldest audio is dropped beyond it.
	// Zero means unbounded.
	MaxBytes int `yaml:"max_bytes"`

	// HighWaterBytes logs a warning when the unbounded queue grows past it.
	HighWaterBytes int `yaml:"high_water_bytes"`
}

// ReconnectConfig tunes the reconnection policy.
type ReconnectConfig struct {
	// MaxAttempts caps consecutive failed attempts.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelayMS is the backoff before the first retry; it doubles each
	// attempt.
	BaseDelayMS int `yaml:"base_delay_ms"`

	// MaxDelayMS caps the backoff growth.
	MaxDelayMS int `yaml:"max_delay_ms"`
}

// DumpConfig enables writing the outbound PCM stream to disk for debugging.
type DumpConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the file the raw PCM is appended to. Parent directories are
	// created as needed; an existing file is truncated on start.
	Path string `yaml:"path"`
}

// applyDefaults fills zero-valued fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.FrameMS == 0 {
		cfg.Audio.FrameMS = 20
	}
}

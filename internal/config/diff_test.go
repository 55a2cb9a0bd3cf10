package config

import (
	"slices"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080", LogLevel: LogInfo},
		Vendor: VendorConfig{
			Name:   VendorSoniox,
			Soniox: SonioxConfig{APIKey: "k", LanguageHints: []string{"en"}},
		},
		Audio: AudioConfig{SampleRate: 16000, Channels: 1, FrameMS: 20},
	}
}

func TestComputeEmpty(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	if d := Compute(a, b); !d.Empty() {
		t.Errorf("diff of identical configs = %+v", d)
	}
}

func TestComputeLogLevel(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	b.Server.LogLevel = LogDebug

	d := Compute(a, b)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change should not require a restart: %v", d.RestartRequired)
	}
}

func TestComputeRestartRequired(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	b.Vendor.Soniox.APIKey = "other"
	b.Audio.SampleRate = 8000
	b.Reconnect.MaxAttempts = 9

	d := Compute(a, b)
	for _, section := range []string{"vendor", "audio", "reconnect"} {
		if !slices.Contains(d.RestartRequired, section) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, section)
		}
	}
}

func TestComputeLanguageHints(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	b.Vendor.Soniox.LanguageHints = []string{"en", "fr"}

	d := Compute(a, b)
	if !slices.Contains(d.RestartRequired, "vendor") {
		t.Errorf("hint change not flagged: %+v", d)
	}
}

func TestComputeDump(t *testing.T) {
	a, b := baseConfig(), baseConfig()
	b.Dump = DumpConfig{Enabled: true, Path: "/tmp/dump"}

	d := Compute(a, b)
	if !d.DumpChanged {
		t.Errorf("dump change not detected: %+v", d)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watcherYAML = `
server:
  log_level: info
vendor:
  name: soniox
  soniox:
    api_key: sk-one
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamasr.yaml")
	writeConfigFile(t, path, watcherYAML)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Vendor.Soniox.APIKey != "sk-one" {
		t.Errorf("initial config = %+v", w.Current().Vendor)
	}
}

func TestWatcherInitialLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamasr.yaml")
	writeConfigFile(t, path, `vendor: {name: nope}`)

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher accepted an invalid initial config")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamasr.yaml")
	writeConfigFile(t, path, watcherYAML)

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		changed <- new
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Ensure the mtime moves even on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, `
server:
  log_level: debug
vendor:
  name: soniox
  soniox:
    api_key: sk-two
`)
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	select {
	case cfg := <-changed:
		if cfg.Vendor.Soniox.APIKey != "sk-two" || cfg.Server.LogLevel != LogDebug {
			t.Errorf("reloaded config = %+v", cfg)
		}
		if w.Current().Vendor.Soniox.APIKey != "sk-two" {
			t.Error("Current() was not updated")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change was never detected")
	}
}

func TestWatcherKeepsOldConfigOnInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamasr.yaml")
	writeConfigFile(t, path, watcherYAML)

	w, err := NewWatcher(path, func(old, new *Config) {
		t.Error("onChange fired for an invalid config")
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, `vendor: {name: nope}`)
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	// Give the poller a few cycles to (not) react.
	time.Sleep(100 * time.Millisecond)
	if w.Current().Vendor.Soniox.APIKey != "sk-one" {
		t.Error("invalid reload replaced the config")
	}
}

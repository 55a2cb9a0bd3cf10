package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and invokes a callback when its content
// changes. Polling keeps the dependency surface small; transcription runs
// are long-lived, so a reload landing a few seconds late costs nothing.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	done     chan struct{}
	stopOnce sync.Once

	// change detection state
	lastMod time.Time
	lastSum [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it in the
// background. The initial load must succeed; later load failures keep the
// last good config in place.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, sum, mod, err := w.snapshot()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastSum = sum
	w.lastMod = mod

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

// reload swaps in a fresh config if the file on disk changed and still
// parses. A file that stopped parsing is logged and ignored.
func (w *Watcher) reload() {
	// A stat beats hashing when nothing moved.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mod := w.lastMod
	w.mu.Unlock()

	if info.ModTime().Equal(mod) {
		return
	}

	cfg, sum, newMod, err := w.snapshot()
	if err != nil {
		slog.Warn("config watcher: reload failed, keeping the previous config",
			"path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if sum == w.lastSum {
		// Touched, not changed.
		w.lastMod = newMod
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.lastSum = sum
	w.lastMod = newMod
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// The callback runs unlocked so it may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// snapshot reads and validates the config file in one pass, returning the
// parsed config with the content checksum and modification time that
// identify this version of the file.
func (w *Watcher) snapshot() (*Config, [sha256.Size]byte, time.Time, error) {
	var none [sha256.Size]byte

	f, err := os.Open(w.path)
	if err != nil {
		return nil, none, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, none, time.Time{}, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, none, time.Time{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, none, time.Time{}, err
	}

	return cfg, sha256.Sum256(data), info.ModTime(), nil
}

// Package audiobuf provides the bounded producer/consumer byte queue that sits
// between the caller pushing audio frames and the session goroutine writing
// chunks to the vendor socket.
//
// The contract is one producer, one consumer. [Manager.Push] never blocks:
// by default the buffer grows without bound and logs a warning past the
// high-water mark; with MaxBuffered set, the oldest bytes are dropped to make
// room (drop-oldest policy: the newest audio is always what reaches the
// vendor). [Manager.Pull] blocks until data is available, the buffer is
// closed, or the context is cancelled.
package audiobuf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// ErrClosed is returned by [Manager.Push] after [Manager.Close].
var ErrClosed = errors.New("audiobuf: buffer is closed")

// DefaultThreshold is the chunk size released per Pull when none is
// configured: 40 ms of 16 kHz 16-bit mono PCM.
const DefaultThreshold = 1280

// defaultHighWater triggers a soft warning once the unbounded buffer holds
// this many bytes (10 MiB, matching the keep-mode byte limit used upstream).
const defaultHighWater = 10 * 1024 * 1024

// Config tunes a [Manager]. The zero value is usable.
type Config struct {
	// Threshold is the maximum chunk size returned by Pull, in bytes.
	// Defaults to [DefaultThreshold].
	Threshold int

	// MaxBuffered caps the bytes held between producer and consumer. Zero
	// means unbounded. When the cap is exceeded the oldest bytes are dropped.
	MaxBuffered int

	// HighWater is the buffered-byte level that triggers a warning log in
	// unbounded mode. Defaults to 10 MiB. Ignored when MaxBuffered is set.
	HighWater int
}

// Manager is the audio byte queue. Exactly one producer and one consumer per
// instance; internal state is mutex-guarded.
type Manager struct {
	threshold   int
	maxBuffered int
	highWater   int

	mu       sync.Mutex
	buf      []byte
	closed   bool
	dropped  int64
	warnedHW bool
	wait     chan struct{} // closed and replaced on every Push/Close
}

// New creates a Manager with the given configuration.
func New(cfg Config) *Manager {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = defaultHighWater
	}
	return &Manager{
		threshold:   cfg.Threshold,
		maxBuffered: cfg.MaxBuffered,
		highWater:   cfg.HighWater,
		wait:        make(chan struct{}),
	}
}

// Push enqueues a copy of p. It returns [ErrClosed] after Close and never
// blocks the producer. Dropped bytes (bounded mode only) are counted and
// reported via [Manager.Dropped].
func (m *Manager) Push(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.buf = append(m.buf, p...)

	if m.maxBuffered > 0 && len(m.buf) > m.maxBuffered {
		over := len(m.buf) - m.maxBuffered
		m.buf = m.buf[over:]
		m.dropped += int64(over)
		if m.dropped == int64(over) || m.dropped%int64(m.maxBuffered) < int64(over) {
			slog.Warn("audio buffer full, dropping oldest bytes",
				"dropped_now", over,
				"dropped_total", m.dropped,
				"max_buffered", m.maxBuffered,
			)
		}
	} else if m.maxBuffered == 0 && !m.warnedHW && len(m.buf) > m.highWater {
		m.warnedHW = true
		slog.Warn("audio buffer past high-water mark; consumer is falling behind",
			"buffered", len(m.buf),
			"high_water", m.highWater,
		)
	}

	m.signalLocked()
	return nil
}

// Pull blocks until at least one byte is buffered, the buffer is closed, or
// ctx is cancelled. It returns a chunk of at most Threshold bytes. After Close
// and a full drain it returns (nil, [io.EOF]) exactly once to signal
// end-of-stream; subsequent calls also return io.EOF.
func (m *Manager) Pull(ctx context.Context) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.buf) > 0 {
			n := min(m.threshold, len(m.buf))
			chunk := make([]byte, n)
			copy(chunk, m.buf[:n])
			m.buf = m.buf[n:]
			if len(m.buf) == 0 {
				// Release the backing array so a drained buffer does not pin
				// the largest backlog it ever held.
				m.buf = nil
				m.warnedHW = false
			}
			m.mu.Unlock()
			return chunk, nil
		}
		if m.closed {
			m.mu.Unlock()
			return nil, io.EOF
		}
		wait := m.wait
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Close marks the buffer as accepting no further pushes. Already-buffered
// bytes remain drainable via Pull. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.signalLocked()
}

// Buffered returns the number of bytes currently held.
func (m *Manager) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

// Dropped returns the total bytes discarded by the drop-oldest policy.
func (m *Manager) Dropped() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// signalLocked wakes a blocked Pull. Must be called with m.mu held.
func (m *Manager) signalLocked() {
	close(m.wait)
	m.wait = make(chan struct{})
}

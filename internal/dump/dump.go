// Package dump writes raw PCM audio to disk for offline debugging of
// recognition sessions.
//
// Writes go through a buffered background writer so the audio hot path never
// blocks on disk I/O. If the writer falls behind, chunks are dropped and
// counted rather than stalling the caller.
package dump

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Write after Close has been called.
var ErrClosed = errors.New("dump: sink closed")

// queueDepth is the number of pending chunks the background writer may hold.
const queueDepth = 256

// Sink appends raw PCM chunks to a single file. Safe for concurrent use.
type Sink struct {
	path string

	mu     sync.Mutex
	closed bool
	ch     chan []byte

	dropped atomic.Int64

	done chan struct{}
	f    *os.File
	w    *bufio.Writer
}

// Open creates (or truncates) the dump file at path, creating parent
// directories as needed, and starts the background writer.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("dump: create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dump: create file: %w", err)
	}

	s := &Sink{
		path: path,
		ch:   make(chan []byte, queueDepth),
		done: make(chan struct{}),
		f:    f,
		w:    bufio.NewWriter(f),
	}
	go s.writeLoop()
	return s, nil
}

// Write queues chunk for appending to the dump file. The chunk is copied, so
// the caller may reuse its buffer. If the writer queue is full the chunk is
// dropped and Write returns nil; dumping must never stall the audio path.
func (s *Sink) Write(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)

	select {
	case s.ch <- c:
	default:
		s.dropped.Add(int64(len(chunk)))
	}
	s.mu.Unlock()
	return nil
}

// Dropped returns the number of bytes discarded because the writer queue was
// full.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Path returns the dump file path.
func (s *Sink) Path() string {
	return s.path
}

// Close drains pending chunks, flushes the buffer, and closes the file.
// Subsequent Write calls return [ErrClosed]. Close is idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	<-s.done

	var errs []error
	if err := s.w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, err)
	}
	if dropped := s.dropped.Load(); dropped > 0 {
		slog.Warn("dump sink dropped audio",
			slog.String("path", s.path),
			slog.Int64("dropped_bytes", dropped))
	}
	return errors.Join(errs...)
}

func (s *Sink) writeLoop() {
	defer close(s.done)
	for chunk := range s.ch {
		if _, err := s.w.Write(chunk); err != nil {
			slog.Error("dump write failed",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
			return
		}
	}
}

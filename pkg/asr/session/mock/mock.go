// Package mock provides test doubles for the session package interfaces.
//
// Use Protocol to script a sequence of dial outcomes and Conn to drive the
// inbound message stream while recording what the session wrote.
//
// Example:
//
//	conn := mock.NewConn()
//	proto := &mock.Protocol{Steps: []mock.DialStep{{Conn: conn}}}
//	conn.Inbound <- session.Results{Batch: []asr.Result{...}}
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/verbatim-ai/streamasr/pkg/asr/session"
)

// ErrScriptExhausted is returned by Protocol.Dial when every scripted step has
// been consumed and no DefaultErr is configured.
var ErrScriptExhausted = errors.New("mock: no more scripted connections")

// ErrConnClosed is returned by Conn methods after Close.
var ErrConnClosed = errors.New("mock: connection closed")

// DialStep is the scripted outcome of one Protocol.Dial call.
type DialStep struct {
	// Conn is handed to the session when Err is nil.
	Conn *Conn
	// Err, if non-nil, is returned instead of a connection.
	Err error
}

// Protocol is a mock implementation of session.Protocol. Each Dial consumes
// the next step; once the script is exhausted, every further Dial returns
// DefaultErr (or ErrScriptExhausted if unset).
type Protocol struct {
	mu sync.Mutex

	// Steps is consumed front to back, one per Dial.
	Steps []DialStep

	// DefaultErr is returned by Dial once Steps is exhausted.
	DefaultErr error

	// DialCalls is the number of times Dial was called.
	DialCalls int
}

// Dial pops the next scripted step.
func (p *Protocol) Dial(ctx context.Context) (session.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DialCalls++
	if len(p.Steps) == 0 {
		if p.DefaultErr != nil {
			return nil, p.DefaultErr
		}
		return nil, ErrScriptExhausted
	}
	step := p.Steps[0]
	p.Steps = p.Steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Conn, nil
}

// Calls returns the number of Dial invocations so far. Thread-safe.
func (p *Protocol) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DialCalls
}

// Ensure Protocol implements session.Protocol at compile time.
var _ session.Protocol = (*Protocol)(nil)

// FinalizeCall records a single invocation of Conn.WriteFinalize.
type FinalizeCall struct {
	// TrailingSilence is the hint passed to WriteFinalize.
	TrailingSilence time.Duration
}

// Conn is a mock implementation of session.Conn. Feed inbound messages on
// Inbound; close it (or call Close) to make Read fail and end the session's
// receive loop.
type Conn struct {
	mu sync.Mutex

	// Inbound carries the messages Read hands to the session. Callers own
	// this channel.
	Inbound chan session.Message

	// --- Configurable behavior ---

	// WriteAudioErr, if non-nil, is returned by every WriteAudio call.
	WriteAudioErr error

	// FinalizeSilence is the injected-silence duration WriteFinalize reports.
	FinalizeSilence time.Duration

	// FinalizeErr, if non-nil, is returned by every WriteFinalize call.
	FinalizeErr error

	// EndOfStreamErr, if non-nil, is returned by every WriteEndOfStream call.
	EndOfStreamErr error

	// ReadErr is returned by Read once Inbound is closed. Defaults to
	// ErrConnClosed.
	ReadErr error

	// --- Call records ---

	// AudioWrites records a copy of every chunk passed to WriteAudio.
	AudioWrites [][]byte

	// FinalizeCalls records every call to WriteFinalize in order.
	FinalizeCalls []FinalizeCall

	// EndOfStreamCount is the number of times WriteEndOfStream was called.
	EndOfStreamCount int

	// CloseCount is the number of times Close was called.
	CloseCount int

	closed   bool
	closedCh chan struct{}
}

// NewConn returns a Conn with a buffered Inbound channel.
func NewConn() *Conn {
	return &Conn{
		Inbound:  make(chan session.Message, 16),
		closedCh: make(chan struct{}),
	}
}

// WriteAudio records a copy of the chunk and returns WriteAudioErr.
func (c *Conn) WriteAudio(ctx context.Context, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	c.AudioWrites = append(c.AudioWrites, cp)
	return c.WriteAudioErr
}

// WriteFinalize records the call and returns FinalizeSilence, FinalizeErr.
func (c *Conn) WriteFinalize(ctx context.Context, trailingSilence time.Duration) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrConnClosed
	}
	c.FinalizeCalls = append(c.FinalizeCalls, FinalizeCall{TrailingSilence: trailingSilence})
	return c.FinalizeSilence, c.FinalizeErr
}

// WriteEndOfStream records the call and returns EndOfStreamErr.
func (c *Conn) WriteEndOfStream(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.EndOfStreamCount++
	return c.EndOfStreamErr
}

// Read blocks for the next Inbound message. It fails with ReadErr (default
// ErrConnClosed) once Inbound is closed, the Conn is closed, or ctx ends.
func (c *Conn) Read(ctx context.Context) (session.Message, error) {
	select {
	case msg, ok := <-c.Inbound:
		if !ok {
			return nil, c.readErr()
		}
		return msg, nil
	case <-c.closedCh:
		return nil, c.readErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) readErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return c.ReadErr
	}
	return ErrConnClosed
}

// Close records the call and unblocks any pending Read. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCount++
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

// Writes returns a copy of the recorded audio writes. Thread-safe.
func (c *Conn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.AudioWrites))
	copy(out, c.AudioWrites)
	return out
}

// EndOfStreamSent reports whether WriteEndOfStream was called. Thread-safe.
func (c *Conn) EndOfStreamSent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.EndOfStreamCount > 0
}

// Ensure Conn implements session.Conn at compile time.
var _ session.Conn = (*Conn)(nil)

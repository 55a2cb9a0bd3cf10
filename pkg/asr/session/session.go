// Package session implements the streaming ASR session engine: audio
// buffering and pacing, the connection state machine with automatic
// reconnection, timeline realignment across connection resets, and delivery
// of normalized results to the caller's handler.
//
// A [Session] owns one logical recognition stream. The audio buffer and
// timeline live for the whole session; transport connections (and their send
// and receive goroutines) are created per connection attempt and may be
// recreated many times behind a single Session as the network link drops and
// recovers. Vendor specifics are hidden behind the [Protocol] and [Conn]
// interfaces.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/verbatim-ai/streamasr/pkg/asr"
	"github.com/verbatim-ai/streamasr/pkg/asr/audiobuf"
	"github.com/verbatim-ai/streamasr/pkg/asr/timeline"
)

// defaultConnectTimeout bounds a single dial plus handshake.
const defaultConnectTimeout = 10 * time.Second

// ErrNotConnected is returned by [Session.Finalize] when no transport is open.
var ErrNotConnected = errors.New("session: not connected")

// ErrAlreadyStarted is returned by [Session.Start] on reuse. Sessions are
// single-use; create a new one after stopping.
var ErrAlreadyStarted = errors.New("session: already started")

// Config tunes a [Session]. The zero value uses package defaults everywhere.
type Config struct {
	// Stream fixes the audio format for the session.
	Stream asr.StreamConfig

	// ConnectTimeout bounds each dial plus handshake attempt. Defaults to 10s.
	ConnectTimeout time.Duration

	// Buffer configures the producer/consumer audio queue shared across
	// reconnects.
	Buffer audiobuf.Config

	// Reconnect configures the retry budget and backoff.
	Reconnect ReconnectConfig
}

// Session is a streaming recognition session. Create with [New], feed it with
// [Session.PushAudio], and tear it down with [Session.Stop]. All methods are
// safe for concurrent use.
type Session struct {
	proto          Protocol
	handler        asr.Handler
	stream         asr.StreamConfig
	connectTimeout time.Duration

	buf *audiobuf.Manager
	tl  *timeline.Timeline
	rm  *ReconnectManager

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	state      asr.ConnectionState
	conn       Conn
	connDone   chan struct{} // closed when the current epoch's loops have exited
	offsetMS   int64         // user audio sent before the last timeline reset
	finalizeAt time.Time
	started    bool
	stopping   bool // caller-initiated stop in progress
	finished   bool // vendor acknowledged end-of-stream; remote close is expected
	failed     bool // fatal error delivered; no reconnection
}

// New creates a Session speaking proto and reporting to handler.
func New(proto Protocol, handler asr.Handler, cfg Config) *Session {
	if handler == nil {
		handler = asr.NopHandler{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Session{
		proto:          proto,
		handler:        handler,
		stream:         cfg.Stream,
		connectTimeout: cfg.ConnectTimeout,
		buf:            audiobuf.New(cfg.Buffer),
		tl:             timeline.New(),
		rm:             NewReconnectManager(cfg.Reconnect),
		state:          asr.StateDisconnected,
	}
}

// Start opens the first connection. Fatal configuration errors are returned
// (and reported through the handler); connect-level failures are reported
// through the handler and handed to the reconnection policy, so Start returns
// nil for them. The session unwinds when ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.baseCtx, s.baseCancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.connect(s.baseCtx); err != nil {
		var aerr *asr.Error
		if errors.As(err, &aerr) && aerr.Fatal {
			s.buf.Close()
			s.setState(asr.StateFailed)
			s.handler.OnError(aerr)
			return err
		}
		s.handler.OnError(asr.NewConnectError("initial connection failed", err))
		go s.reconnect()
	}
	return nil
}

// PushAudio enqueues one frame of raw PCM for transmission. It never blocks;
// after Stop (or a fatal error) it returns [audiobuf.ErrClosed]. When a
// bounded buffer sheds old bytes to make room, the overflow is reported
// through the handler as a non-fatal error and the push still succeeds.
func (s *Session) PushAudio(frame []byte) error {
	before := s.buf.Dropped()
	if err := s.buf.Push(frame); err != nil {
		return err
	}
	if delta := s.buf.Dropped() - before; delta > 0 {
		s.handler.OnError(&asr.Error{
			Kind:    asr.KindBufferOverflow,
			Message: fmt.Sprintf("buffer full, dropped %d oldest audio bytes", delta),
		})
	}
	return nil
}

// DroppedBytes returns the total audio bytes shed by the bounded buffer.
func (s *Session) DroppedBytes() int64 {
	return s.buf.Dropped()
}

// Finalize asks the vendor to flush a final result for the current utterance
// without waiting for natural silence. trailingSilence hints how much silence
// follows the utterance; zero lets the vendor decide. The acknowledgement
// latency is reported via [asr.Handler.OnFinalizeEnd].
func (s *Session) Finalize(ctx context.Context, trailingSilence time.Duration) error {
	s.mu.Lock()
	conn := s.conn
	open := s.state == asr.StateOpen
	if open && conn != nil {
		s.finalizeAt = time.Now()
	}
	s.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	injected, err := conn.WriteFinalize(ctx, trailingSilence)
	if injected > 0 {
		s.tl.AddSilence(injected.Milliseconds())
	}
	if err != nil {
		// No acknowledgement is coming for a finalize that never reached the
		// vendor; a later natural sentence end must not report its latency.
		s.mu.Lock()
		s.finalizeAt = time.Time{}
		s.mu.Unlock()
		return fmt.Errorf("session: finalize: %w", err)
	}
	return nil
}

// Stop tears the session down: the buffer stops accepting audio, already
// buffered bytes are drained to the wire followed by the vendor's
// end-of-stream control message, and the loops unwind. A clean stop produces
// state-change notifications but no error callback. Idempotent; ctx bounds
// how long Stop waits for the drain before forcing the transport closed.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	conn := s.conn
	done := s.connDone
	hasLoops := conn != nil && done != nil
	s.mu.Unlock()

	if hasLoops {
		s.setState(asr.StateClosing)
	}

	s.buf.Close()

	if hasLoops {
		select {
		case <-done:
		case <-ctx.Done():
			// Drain took too long; force the transport down. The loops exit
			// on the resulting read/write errors.
			_ = conn.Close()
		}
	}

	if s.baseCancel != nil {
		s.baseCancel()
	}
	s.setState(asr.StateClosed)
	return nil
}

// State returns the current connection state.
func (s *Session) State() asr.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AttemptsInfo exposes the reconnect manager's diagnostic snapshot.
func (s *Session) AttemptsInfo() AttemptsInfo {
	return s.rm.AttemptsInfo()
}

// connect performs one dial plus handshake and, on success, installs the new
// connection and spawns its send and receive loops. The timeline epoch is
// folded into the persistent offset so post-reconnect timestamps continue
// from where the session left off.
func (s *Session) connect(ctx context.Context) error {
	s.setState(asr.StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	conn, err := s.proto.Dial(dialCtx)
	cancel()
	if err != nil {
		var aerr *asr.Error
		if errors.As(err, &aerr) {
			return err
		}
		return asr.NewConnectError("dial failed", err)
	}

	connCtx, connCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	sendDone := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.connDone = done
	s.offsetMS += s.tl.TotalUserAudio()
	s.tl.Reset()
	s.finished = false
	s.mu.Unlock()

	s.rm.MarkConnectionSuccessful()
	s.setState(asr.StateOpen)

	go func() {
		s.sendLoop(connCtx, conn)
		close(sendDone)
	}()
	go s.recvLoop(connCtx, conn, connCancel, sendDone, done)

	return nil
}

// sendLoop drains the audio buffer into the wire, recording each chunk's
// duration on the timeline. It exits on end-of-stream (after sending the
// vendor's end-of-stream control), on context cancellation, or on a write
// error. A chunk in flight to a dead socket is lost; the receive loop owns
// recovery.
func (s *Session) sendLoop(ctx context.Context, conn Conn) {
	for {
		chunk, err := s.buf.Pull(ctx)
		if errors.Is(err, io.EOF) {
			if werr := conn.WriteEndOfStream(ctx); werr != nil {
				slog.Debug("end-of-stream write failed", "error", werr)
			}
			return
		}
		if err != nil {
			return
		}
		if err := conn.WriteAudio(ctx, chunk); err != nil {
			slog.Debug("audio write failed", "error", err)
			return
		}
		s.tl.AddUserAudio(s.stream.DurationMS(len(chunk)))
	}
}

// recvLoop decodes inbound messages until the connection dies, then tears the
// epoch down and decides between clean close, reconnection, and terminal
// failure.
func (s *Session) recvLoop(ctx context.Context, conn Conn, cancel context.CancelFunc, sendDone, done chan struct{}) {
	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if !s.dispatch(msg) {
			break
		}
	}

	cancel()
	_ = conn.Close()
	<-sendDone
	close(done)

	s.afterDisconnect()
}

// dispatch handles one decoded message. It returns false when the session
// must stop reading (fatal vendor error).
func (s *Session) dispatch(msg Message) bool {
	switch m := msg.(type) {
	case Results:
		for _, r := range m.Batch {
			s.handler.OnResult(s.correct(r))
		}
		if m.FinalizeEnd {
			s.finalizeEnd()
		}

	case VendorError:
		aerr := &asr.Error{
			Kind:          asr.KindVendor,
			Message:       fmt.Sprintf("vendor error %s: %s", m.Code, m.Message),
			VendorCode:    m.Code,
			VendorMessage: m.Message,
			Fatal:         m.Fatal,
		}
		if m.Fatal {
			s.mu.Lock()
			s.failed = true
			s.mu.Unlock()
			s.handler.OnError(aerr)
			return false
		}
		s.handler.OnError(aerr)

	case Malformed:
		s.handler.OnError(&asr.Error{
			Kind:    asr.KindProtocol,
			Message: "dropped undecodable vendor message",
			Err:     m.Err,
		})

	case Finished:
		s.mu.Lock()
		s.finished = true
		s.mu.Unlock()
	}
	return true
}

// afterDisconnect runs once per connection epoch, in the (former) receive
// goroutine, after both loops have exited. At most one reconnect is in flight
// at a time by construction.
func (s *Session) afterDisconnect() {
	s.mu.Lock()
	stopping := s.stopping
	finished := s.finished
	failed := s.failed
	ctxDone := s.baseCtx.Err() != nil
	s.conn = nil
	s.mu.Unlock()

	switch {
	case failed:
		s.buf.Close()
		s.setState(asr.StateFailed)
	case stopping, finished, ctxDone:
		s.setState(asr.StateClosed)
	default:
		slog.Warn("connection closed unexpectedly, reconnecting")
		s.setState(asr.StateClosed)
		s.reconnect()
	}
}

// reconnect drives the reconnection policy until a dial succeeds, the retry
// budget is exhausted, or the session context ends.
func (s *Session) reconnect() {
	for {
		if s.baseCtx.Err() != nil {
			return
		}
		if !s.rm.CanRetry() {
			info := s.rm.AttemptsInfo()
			s.mu.Lock()
			s.failed = true
			s.mu.Unlock()
			s.buf.Close()
			s.setState(asr.StateFailed)
			s.handler.OnError(&asr.Error{
				Kind:    asr.KindRetriesExhausted,
				Message: fmt.Sprintf("gave up after %d reconnect attempts", info.Attempts),
				Fatal:   true,
			})
			return
		}
		if s.rm.HandleReconnect(s.baseCtx, s.connect, s.handler.OnError) {
			return
		}
	}
}

// correct translates a result's vendor-clock timestamps into
// caller-audio-relative time: the amount of user audio sent before the vendor
// timestamp within this epoch, plus the user audio sent in all prior epochs.
func (s *Session) correct(r asr.Result) asr.Result {
	s.mu.Lock()
	offset := s.offsetMS
	s.mu.Unlock()

	r.StartMS = s.tl.AudioDurationBefore(r.StartMS) + offset
	for i := range r.Words {
		r.Words[i].StartMS = s.tl.AudioDurationBefore(r.Words[i].StartMS) + offset
	}
	return r
}

// finalizeEnd reports finalize latency if (and only if) a finalize is pending.
func (s *Session) finalizeEnd() {
	s.mu.Lock()
	at := s.finalizeAt
	s.finalizeAt = time.Time{}
	s.mu.Unlock()

	if at.IsZero() {
		return
	}
	s.handler.OnFinalizeEnd(time.Since(at))
}

// setState updates the connection state and notifies the handler. The
// notification runs outside the session mutex so handlers may call back into
// the session.
func (s *Session) setState(st asr.ConnectionState) {
	s.mu.Lock()
	if s.state == st || (s.state == asr.StateFailed && st != asr.StateFailed) {
		// Failed is terminal and never overwritten.
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()

	s.handler.OnConnectionStateChanged(st)
}

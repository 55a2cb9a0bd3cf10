package session

import (
	"context"
	"time"

	"github.com/verbatim-ai/streamasr/pkg/asr"
)

// Protocol abstracts a vendor's wire protocol. An implementation knows how to
// build its handshake (signed URL, start request) and open one connection.
// Protocol values are reused across reconnects; each Dial produces a fresh
// [Conn].
type Protocol interface {
	// Dial opens the transport and performs the vendor handshake. The context
	// bounds the whole attempt; implementations must respect its deadline.
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one live vendor connection. The session calls WriteAudio from its
// send goroutine and Read from its receive goroutine concurrently;
// implementations must tolerate that, plus a Close from a third goroutine.
type Conn interface {
	// WriteAudio sends one chunk of raw PCM, framed however the vendor
	// requires.
	WriteAudio(ctx context.Context, chunk []byte) error

	// WriteFinalize asks the vendor to flush a final result early.
	// trailingSilence is a hint of how much silence follows the utterance;
	// vendors without a finalize control message may instead inject mute
	// audio and report the injected duration so the caller can record it as
	// silence rather than user audio.
	WriteFinalize(ctx context.Context, trailingSilence time.Duration) (injectedSilence time.Duration, err error)

	// WriteEndOfStream tells the vendor no more audio will arrive.
	WriteEndOfStream(ctx context.Context) error

	// Read blocks for the next inbound message, decoded into one of the
	// [Message] variants. A transport-level failure or remote close is
	// returned as an error, ending the receive loop.
	Read(ctx context.Context) (Message, error)

	// Close tears the connection down. Idempotent.
	Close() error
}

// Message is the decoded form of one inbound vendor message. Exactly one of
// the concrete types below is returned per Read.
type Message interface {
	isMessage()
}

// Results carries zero or more normalized recognition results. Timestamps are
// still on the vendor's connection-local clock; the session translates them
// to caller-audio-relative time before delivery.
type Results struct {
	// Batch holds the results in vendor emission order.
	Batch []asr.Result

	// FinalizeEnd reports that this message carries the vendor's
	// end-of-segment acknowledgement, completing any pending finalize.
	FinalizeEnd bool
}

// VendorError is an explicit error report from the vendor.
type VendorError struct {
	Code    string
	Message string

	// Fatal reports vendor error codes that cannot be recovered by
	// continuing the session (e.g. authentication rejection).
	Fatal bool
}

// Malformed reports an inbound message that could not be decoded. The session
// surfaces it as a non-fatal protocol error and keeps reading.
type Malformed struct {
	Err error
}

// Finished reports the vendor's acknowledgement of end-of-stream; the remote
// side will close the connection shortly after.
type Finished struct{}

func (Results) isMessage()     {}
func (VendorError) isMessage() {}
func (Malformed) isMessage()   {}
func (Finished) isMessage()    {}

package asr

import "time"

// Result is a normalized recognition result. Instances are immutable value
// objects: vendor adapters create them, the session corrects their timestamps,
// and the caller consumes them.
//
// StartMS is expressed in caller-audio-relative time (milliseconds of user
// audio pushed into the session before the recognized span began), not in the
// vendor's connection-local clock. The session engine performs this correction,
// including across reconnects, so results from different connection epochs
// remain time-ordered.
type Result struct {
	// ID uniquely identifies this result delivery.
	ID string

	// Text is the transcribed content.
	Text string

	// Final reports whether the vendor has committed to this span. A final
	// result for a given span is delivered at most once; non-final results for
	// overlapping spans may be delivered repeatedly, each superseding the last.
	Final bool

	// StartMS is the span start in caller-audio-relative milliseconds.
	StartMS int64

	// DurationMS is the span length in milliseconds.
	DurationMS int64

	// Language is the lowercase language code of the span (e.g. "en", "zh").
	// A single result never mixes languages.
	Language string

	// Words holds per-word detail when the vendor reports it. May be nil.
	Words []Word
}

// Word is one recognized word within a [Result].
type Word struct {
	// Text is the word content.
	Text string

	// StartMS is the word start in caller-audio-relative milliseconds.
	StartMS int64

	// DurationMS is the word length in milliseconds.
	DurationMS int64

	// Stable reports whether the vendor may still revise this word.
	Stable bool
}

// ConnectionState describes the lifecycle of the session's current transport
// connection.
type ConnectionState int

const (
	// StateDisconnected is the initial state before Start.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a dial and handshake are in flight.
	StateConnecting

	// StateOpen means the handshake completed; audio and results are flowing.
	StateOpen

	// StateClosing means a caller-initiated stop is draining buffered audio.
	StateClosing

	// StateClosed means the transport is gone, either after a clean stop or a
	// remote close (the latter triggers reconnection while retries remain).
	StateClosed

	// StateFailed is terminal: a fatal error occurred or retries are exhausted.
	StateFailed
)

// String returns the lowercase name of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StreamConfig fixes the audio format for the lifetime of a session:
// signed 16-bit little-endian PCM, mono unless Channels says otherwise.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Commonly 16000.
	SampleRate int

	// Channels is the channel count. Vendors covered here require mono.
	Channels int

	// Language is the recognition language hint passed to the vendor.
	// Empty lets the vendor auto-detect where supported.
	Language string
}

// bytesPerSample is fixed by the wire contract: 16-bit signed PCM.
const bytesPerSample = 2

// Duration returns the playback duration of n bytes of PCM audio in this
// format.
func (c StreamConfig) Duration(n int) time.Duration {
	bytesPerSecond := c.SampleRate * c.channels() * bytesPerSample
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}

// DurationMS returns the playback duration of n bytes in whole milliseconds.
func (c StreamConfig) DurationMS(n int) int64 {
	return c.Duration(n).Milliseconds()
}

// Bytes returns the number of PCM bytes covering d of audio in this format.
func (c StreamConfig) Bytes(d time.Duration) int {
	bytesPerSecond := c.SampleRate * c.channels() * bytesPerSample
	return int(d * time.Duration(bytesPerSecond) / time.Second)
}

func (c StreamConfig) channels() int {
	if c.Channels <= 0 {
		return 1
	}
	return c.Channels
}

package asr

import "fmt"

// ErrorKind classifies session errors. Fatal kinds halt the session; non-fatal
// kinds are reported through the handler and the session continues.
type ErrorKind int

const (
	// KindConfig means credentials or parameters are missing or invalid.
	// Fatal; no connection is attempted.
	KindConfig ErrorKind = iota

	// KindConnect means the dial or handshake failed or timed out. Connect
	// errors feed the reconnection policy rather than killing the session
	// outright.
	KindConnect

	// KindProtocol means a single inbound message could not be decoded.
	// Non-fatal; the message is dropped.
	KindProtocol

	// KindVendor means the vendor reported an explicit error code. Non-fatal
	// unless the vendor marks it fatal.
	KindVendor

	// KindBufferOverflow means the audio producer outpaced the configured
	// buffer bound and bytes were discarded. Non-fatal.
	KindBufferOverflow

	// KindRetriesExhausted means the reconnection budget is spent. Fatal and
	// terminal: no further results will arrive until a new session is started.
	KindRetriesExhausted
)

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnect:
		return "connect"
	case KindProtocol:
		return "protocol"
	case KindVendor:
		return "vendor"
	case KindBufferOverflow:
		return "buffer_overflow"
	case KindRetriesExhausted:
		return "retries_exhausted"
	default:
		return "unknown"
	}
}

// Error is a classified session error delivered through [Handler.OnError].
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// VendorCode and VendorMessage carry the vendor's own error report when
	// Kind is KindVendor. Empty otherwise.
	VendorCode    string
	VendorMessage string

	// Fatal reports whether the session halts after this error. Derived from
	// Kind for every kind except KindVendor, where the vendor decides.
	Fatal bool

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.VendorCode != "" {
		return fmt.Sprintf("asr %s error (vendor code %s): %s", e.Kind, e.VendorCode, e.Message)
	}
	return fmt.Sprintf("asr %s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewConfigError builds a fatal configuration error.
func NewConfigError(msg string) *Error {
	return &Error{Kind: KindConfig, Message: msg, Fatal: true}
}

// NewConnectError wraps a dial or handshake failure.
func NewConnectError(msg string, cause error) *Error {
	return &Error{Kind: KindConnect, Message: msg, Err: cause}
}

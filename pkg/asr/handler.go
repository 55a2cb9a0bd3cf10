package asr

import "time"

// Handler receives everything a session produces. Implementations are supplied
// by the caller; the session invokes them from its receive goroutine, so
// implementations should return quickly or dispatch to their own executor.
//
// The session guarantees: results for non-overlapping spans arrive in
// non-decreasing StartMS order; a fatal error is delivered at most once and is
// followed only by state-change notifications; a caller-initiated stop
// produces state changes but no error.
type Handler interface {
	// OnResult delivers a normalized recognition result.
	OnResult(Result)

	// OnError delivers a classified error. When err.Fatal is true the session
	// has stopped and no further results will arrive.
	OnError(err *Error)

	// OnFinalizeEnd reports that the vendor acknowledged an explicit finalize
	// request, with the observed request-to-acknowledgement latency.
	OnFinalizeEnd(latency time.Duration)

	// OnConnectionStateChanged reports connection lifecycle transitions.
	OnConnectionStateChanged(state ConnectionState)
}

// NopHandler is a [Handler] that ignores every callback. Embed it to implement
// only the callbacks a caller cares about.
type NopHandler struct{}

// OnResult implements [Handler].
func (NopHandler) OnResult(Result) {}

// OnError implements [Handler].
func (NopHandler) OnError(*Error) {}

// OnFinalizeEnd implements [Handler].
func (NopHandler) OnFinalizeEnd(time.Duration) {}

// OnConnectionStateChanged implements [Handler].
func (NopHandler) OnConnectionStateChanged(ConnectionState) {}

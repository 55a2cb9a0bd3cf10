// Package timeline tracks how much caller audio has been sent over the wire
// so that vendor-reported timestamps, which are relative to the connection's
// own clock, can be translated back into caller-audio-relative time.
//
// A vendor's clock restarts at zero on every new connection. The owning
// session folds [Timeline.TotalUserAudio] into a persistent offset before each
// [Timeline.Reset], keeping externally reported timestamps monotonic across
// reconnects.
package timeline

import "sync"

// segKind distinguishes caller audio from injected silence (mute packets sent
// during finalization). Silence advances the vendor clock but must not count
// as caller audio when mapping timestamps.
type segKind int

const (
	segUser segKind = iota
	segSilence
)

type segment struct {
	kind segKind
	ms   int64
}

// Timeline accumulates the audio actually written to one connection epoch.
// All methods are safe for concurrent use, though in practice only the
// session's send goroutine mutates it.
type Timeline struct {
	mu       sync.Mutex
	segments []segment
	totalMS  int64 // user + silence
	userMS   int64 // user only
}

// New returns an empty Timeline.
func New() *Timeline {
	return &Timeline{}
}

// AddUserAudio records ms milliseconds of caller audio sent over the wire.
// Call exactly once per chunk actually written.
func (t *Timeline) AddUserAudio(ms int64) {
	t.add(segUser, ms)
}

// AddSilence records ms milliseconds of injected silence (e.g. a finalize
// mute package). Silence advances the vendor clock but is excluded from
// [Timeline.AudioDurationBefore] and [Timeline.TotalUserAudio].
func (t *Timeline) AddSilence(ms int64) {
	t.add(segSilence, ms)
}

func (t *Timeline) add(kind segKind, ms int64) {
	if ms <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalMS += ms
	if kind == segUser {
		t.userMS += ms
	}

	// Merge runs of the same kind so the segment list stays small no matter
	// how many chunks a long session sends.
	if n := len(t.segments); n > 0 && t.segments[n-1].kind == kind {
		t.segments[n-1].ms += ms
		return
	}
	t.segments = append(t.segments, segment{kind: kind, ms: ms})
}

// TotalUserAudio returns the milliseconds of caller audio recorded since the
// last Reset.
func (t *Timeline) TotalUserAudio() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userMS
}

// AudioDurationBefore maps a vendor-clock timestamp to the amount of caller
// audio sent within the first vendorMS milliseconds of this connection epoch.
// The result is monotonic non-decreasing in vendorMS and never exceeds
// [Timeline.TotalUserAudio].
func (t *Timeline) AudioDurationBefore(vendorMS int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if vendorMS >= t.totalMS {
		return t.userMS
	}

	var user, elapsed int64
	for _, seg := range t.segments {
		remaining := vendorMS - elapsed
		if remaining <= 0 {
			break
		}
		take := seg.ms
		if take > remaining {
			take = remaining
		}
		if seg.kind == segUser {
			user += take
		}
		elapsed += seg.ms
	}
	return user
}

// Reset zeroes the epoch. The caller is responsible for first folding
// [Timeline.TotalUserAudio] into its persistent pre-reset offset so reported
// timestamps continue increasing.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segments = nil
	t.totalMS = 0
	t.userMS = 0
}

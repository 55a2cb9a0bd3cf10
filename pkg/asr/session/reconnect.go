package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/verbatim-ai/streamasr/pkg/asr"
)

// Default reconnection parameters.
const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 300 * time.Millisecond
	defaultMaxDelay    = 10 * time.Second
)

// ReconnectConfig tunes a [ReconnectManager]. Zero-value fields use the
// package defaults.
type ReconnectConfig struct {
	// MaxAttempts caps consecutive failed attempts before the manager reports
	// a terminal condition. Defaults to 5.
	MaxAttempts int

	// BaseDelay is the backoff before the first retry. Doubles each attempt.
	// Defaults to 300ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth. Defaults to 10s.
	MaxDelay time.Duration
}

// AttemptsInfo is a read-only snapshot of reconnection state for diagnostics.
type AttemptsInfo struct {
	Attempts    int
	MaxAttempts int
	LastAttempt time.Time
}

// ReconnectManager tracks consecutive connection failures and paces retry
// attempts with capped exponential backoff plus jitter.
//
// The owning session serializes reconnect handling (at most one
// [ReconnectManager.HandleReconnect] is in flight at a time) but the counter
// is still mutex-guarded so that [ReconnectManager.MarkConnectionSuccessful]
// may be called from the receive goroutine.
type ReconnectManager struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	mu          sync.Mutex
	attempts    int
	lastAttempt time.Time
}

// NewReconnectManager creates a manager with the given configuration.
func NewReconnectManager(cfg ReconnectConfig) *ReconnectManager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &ReconnectManager{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
	}
}

// CanRetry reports whether the attempt budget allows another reconnect.
func (r *ReconnectManager) CanRetry() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts < r.maxAttempts
}

// HandleReconnect performs one reconnect attempt: it increments the attempt
// counter, waits out the backoff delay, then invokes connect. On failure it
// passes a structured error to onError and returns false. It does NOT reset
// the counter on success; call [ReconnectManager.MarkConnectionSuccessful]
// once the vendor handshake truly completes, not merely on socket connect.
//
// Returns false without attempting when the budget is exhausted or ctx ends
// during the backoff wait.
func (r *ReconnectManager) HandleReconnect(ctx context.Context, connect func(context.Context) error, onError func(*asr.Error)) bool {
	r.mu.Lock()
	if r.attempts >= r.maxAttempts {
		r.mu.Unlock()
		return false
	}
	r.attempts++
	attempt := r.attempts
	r.lastAttempt = time.Now()
	r.mu.Unlock()

	delay := r.backoff(attempt)
	slog.Info("attempting reconnection",
		"attempt", attempt,
		"max_attempts", r.maxAttempts,
		"backoff", delay,
	)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
	}

	if err := connect(ctx); err != nil {
		slog.Warn("reconnection attempt failed", "attempt", attempt, "error", err)
		if onError != nil {
			onError(asr.NewConnectError(
				fmt.Sprintf("reconnect attempt %d/%d failed", attempt, r.maxAttempts), err))
		}
		return false
	}
	return true
}

// MarkConnectionSuccessful resets the consecutive-failure counter. Call it
// once the handshake round-trip completes.
func (r *ReconnectManager) MarkConnectionSuccessful() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 0
}

// AttemptsInfo returns a snapshot of the current attempt state.
func (r *ReconnectManager) AttemptsInfo() AttemptsInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return AttemptsInfo{
		Attempts:    r.attempts,
		MaxAttempts: r.maxAttempts,
		LastAttempt: r.lastAttempt,
	}
}

// backoff computes the delay before the given 1-based attempt: capped
// exponential growth with up to 10% jitter so stampedes against a recovering
// endpoint spread out.
func (r *ReconnectManager) backoff(attempt int) time.Duration {
	delay := r.baseDelay << (attempt - 1)
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	jitter := time.Duration(rand.Int64N(int64(delay)/10 + 1))
	return delay + jitter
}

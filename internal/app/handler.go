package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/verbatim-ai/streamasr/internal/observe"
	"github.com/verbatim-ai/streamasr/pkg/asr"
)

// telemetryHandler records metrics and logs for every session callback, then
// forwards it to the downstream handler. It also latches the first fatal
// error so the runner can stop pumping audio.
type telemetryHandler struct {
	metrics *observe.Metrics
	vendor  string
	next    asr.Handler

	mu           sync.Mutex
	fatalErr     *asr.Error
	failed       chan struct{}
	connectingAt time.Time
}

var _ asr.Handler = (*telemetryHandler)(nil)

func newTelemetryHandler(m *observe.Metrics, vendor string, next asr.Handler) *telemetryHandler {
	return &telemetryHandler{
		metrics: m,
		vendor:  vendor,
		next:    next,
		failed:  make(chan struct{}),
	}
}

// Failed is closed once a fatal error has been reported.
func (h *telemetryHandler) Failed() <-chan struct{} {
	return h.failed
}

// FatalErr returns the first fatal error reported, or nil.
func (h *telemetryHandler) FatalErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fatalErr == nil {
		return nil
	}
	return h.fatalErr
}

func (h *telemetryHandler) OnResult(r asr.Result) {
	h.metrics.RecordResult(context.Background(), h.vendor, r.Final)

	level := slog.LevelDebug
	if r.Final {
		level = slog.LevelInfo
	}
	slog.LogAttrs(context.Background(), level, "recognition result",
		slog.String("id", r.ID),
		slog.Bool("final", r.Final),
		slog.String("language", r.Language),
		slog.Int64("start_ms", r.StartMS),
		slog.Int64("duration_ms", r.DurationMS),
		slog.String("text", r.Text),
	)

	h.next.OnResult(r)
}

func (h *telemetryHandler) OnError(e *asr.Error) {
	if e.Kind == asr.KindVendor {
		h.metrics.RecordVendorError(context.Background(), h.vendor, e.VendorCode)
	}
	if e.Kind == asr.KindConnect {
		h.metrics.RecordReconnect(context.Background(), h.vendor, "failure")
	}

	if e.Fatal {
		slog.Error("session error", "vendor", h.vendor, "kind", e.Kind, "err", e)
		h.mu.Lock()
		if h.fatalErr == nil {
			h.fatalErr = e
			close(h.failed)
		}
		h.mu.Unlock()
	} else {
		slog.Warn("session error", "vendor", h.vendor, "kind", e.Kind, "err", e)
	}

	h.next.OnError(e)
}

func (h *telemetryHandler) OnFinalizeEnd(latency time.Duration) {
	h.metrics.RecordFinalizeLatency(context.Background(), h.vendor, latency)
	slog.Debug("finalize acknowledged", "vendor", h.vendor, "latency", latency)
	h.next.OnFinalizeEnd(latency)
}

func (h *telemetryHandler) OnConnectionStateChanged(st asr.ConnectionState) {
	slog.Info("connection state changed", "vendor", h.vendor, "state", st.String())

	switch st {
	case asr.StateConnecting:
		h.mu.Lock()
		h.connectingAt = time.Now()
		h.mu.Unlock()
	case asr.StateOpen:
		h.mu.Lock()
		at := h.connectingAt
		h.connectingAt = time.Time{}
		h.mu.Unlock()
		if !at.IsZero() {
			h.metrics.RecordConnectDuration(context.Background(), h.vendor, time.Since(at))
		}
		h.metrics.RecordReconnect(context.Background(), h.vendor, "success")
	}

	h.next.OnConnectionStateChanged(st)
}

// Package app wires configuration, vendor protocol, and a recognition
// session into a running application.
//
// The Runner owns the full lifecycle: New builds the vendor protocol and
// session from config, Run paces PCM audio through the session until the
// input is exhausted or the session fails, and Close releases collaborators.
//
// For testing, inject a mock protocol or metrics via functional options.
// When an option is not provided, New creates real implementations from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verbatim-ai/streamasr/internal/config"
	"github.com/verbatim-ai/streamasr/internal/dump"
	"github.com/verbatim-ai/streamasr/internal/observe"
	"github.com/verbatim-ai/streamasr/pkg/asr"
	"github.com/verbatim-ai/streamasr/pkg/asr/audiobuf"
	"github.com/verbatim-ai/streamasr/pkg/asr/session"
	"github.com/verbatim-ai/streamasr/pkg/asr/soniox"
	"github.com/verbatim-ai/streamasr/pkg/asr/tencent"
)

// stopTimeout bounds the drain of buffered audio during shutdown.
const stopTimeout = 10 * time.Second

// Runner streams PCM audio from a reader through a vendor recognition
// session, reporting results through a handler and metrics through observe.
type Runner struct {
	cfg     *config.Config
	stream  asr.StreamConfig
	vendor  string
	metrics *observe.Metrics

	proto   session.Protocol
	sess    *session.Session
	sink    *dump.Sink
	downstr asr.Handler

	telemetry *telemetryHandler
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Runner)

// WithProtocol injects a vendor protocol instead of building one from config.
func WithProtocol(p session.Protocol) Option {
	return func(r *Runner) { r.proto = p }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithHandler registers a downstream handler that receives every session
// callback after telemetry has been recorded.
func WithHandler(h asr.Handler) Option {
	return func(r *Runner) { r.downstr = h }
}

// New creates a Runner from config. The vendor protocol is built from
// cfg.Vendor unless injected; credential problems surface here as fatal
// configuration errors before any connection is attempted.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:    cfg,
		vendor: string(cfg.Vendor.Name),
		stream: asr.StreamConfig{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			Language:   cfg.Audio.Language,
		},
	}
	for _, o := range opts {
		o(r)
	}

	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.downstr == nil {
		r.downstr = asr.NopHandler{}
	}

	if r.proto == nil {
		proto, err := buildProtocol(cfg, r.stream)
		if err != nil {
			return nil, err
		}
		r.proto = proto
	}

	if cfg.Dump.Enabled {
		sink, err := dump.Open(cfg.Dump.Path)
		if err != nil {
			return nil, fmt.Errorf("app: open dump sink: %w", err)
		}
		r.sink = sink
		slog.Info("audio dump enabled", "path", cfg.Dump.Path)
	}

	r.telemetry = newTelemetryHandler(r.metrics, r.vendor, r.downstr)
	r.sess = session.New(r.proto, r.telemetry, session.Config{
		Stream: r.stream,
		Buffer: audiobuf.Config{
			Threshold:   cfg.Buffer.ThresholdBytes,
			MaxBuffered: cfg.Buffer.MaxBytes,
			HighWater:   cfg.Buffer.HighWaterBytes,
		},
		Reconnect: session.ReconnectConfig{
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Reconnect.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Reconnect.MaxDelayMS) * time.Millisecond,
		},
	})

	return r, nil
}

// buildProtocol constructs the vendor protocol named in config.
func buildProtocol(cfg *config.Config, stream asr.StreamConfig) (session.Protocol, error) {
	switch cfg.Vendor.Name {
	case config.VendorSoniox:
		sc := cfg.Vendor.Soniox
		var opts []soniox.Option
		if sc.URL != "" {
			opts = append(opts, soniox.WithEndpoint(sc.URL))
		}
		if sc.Model != "" {
			opts = append(opts, soniox.WithModel(sc.Model))
		}
		if len(sc.LanguageHints) > 0 {
			opts = append(opts, soniox.WithLanguageHints(sc.LanguageHints...))
		}
		if sc.KeepaliveIntervalMS > 0 {
			opts = append(opts, soniox.WithKeepalive(time.Duration(sc.KeepaliveIntervalMS)*time.Millisecond))
		}
		return soniox.New(sc.APIKey, stream, opts...)

	case config.VendorTencent:
		tc := cfg.Vendor.Tencent
		var opts []tencent.Option
		if tc.Endpoint != "" {
			opts = append(opts, tencent.WithEndpoint(tc.Endpoint))
		}
		if tc.EngineModelType != "" {
			opts = append(opts, tencent.WithEngineModelType(tc.EngineModelType))
		}
		if tc.VADSilenceTimeMS > 0 {
			opts = append(opts, tencent.WithVADSilenceTime(time.Duration(tc.VADSilenceTimeMS)*time.Millisecond))
		}
		if tc.HotwordID != "" {
			opts = append(opts, tencent.WithHotwordID(tc.HotwordID))
		}
		return tencent.New(tc.AppID, tc.SecretID, tc.SecretKey, stream, opts...)

	default:
		return nil, asr.NewConfigError(fmt.Sprintf("unknown vendor %q", cfg.Vendor.Name))
	}
}

// Run streams input through the session in real time: one frame of
// cfg.Audio.FrameMS worth of PCM per tick. It blocks until the input is
// exhausted and the session has drained, the session fails fatally, or ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context, input io.Reader) error {
	if err := r.sess.Start(ctx); err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}

	r.metrics.ActiveSessions.Add(ctx, 1)
	defer r.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pump(gctx, input)
	})

	pumpErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := r.sess.Stop(stopCtx); err != nil && pumpErr == nil {
		pumpErr = fmt.Errorf("app: stop session: %w", err)
	}

	r.recordDrops(context.WithoutCancel(ctx))

	if err := r.telemetry.FatalErr(); err != nil && pumpErr == nil {
		pumpErr = err
	}
	return pumpErr
}

// recordDrops flushes the dropped-byte counts of the session buffer and the
// dump sink into the metrics.
func (r *Runner) recordDrops(ctx context.Context) {
	if n := r.sess.DroppedBytes(); n > 0 {
		r.metrics.AddDroppedBytes(ctx, r.vendor, "buffer", n)
	}
	if r.sink != nil {
		if n := r.sink.Dropped(); n > 0 {
			r.metrics.AddDroppedBytes(ctx, r.vendor, "dump", n)
		}
	}
}

// pump reads frames from input and pushes them into the session at the
// configured real-time rate. Returns nil when input is exhausted.
func (r *Runner) pump(ctx context.Context, input io.Reader) error {
	frameDur := time.Duration(r.cfg.Audio.FrameMS) * time.Millisecond
	frame := make([]byte, r.stream.Bytes(frameDur))

	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.telemetry.Failed():
			return r.telemetry.FatalErr()
		case <-ticker.C:
		}

		n, err := io.ReadFull(input, frame)
		if n > 0 {
			if perr := r.sess.PushAudio(frame[:n]); perr != nil {
				if errors.Is(perr, audiobuf.ErrClosed) {
					return r.telemetry.FatalErr()
				}
				return fmt.Errorf("app: push audio: %w", perr)
			}
			r.metrics.AddAudioBytes(ctx, r.vendor, n)
			if r.sink != nil {
				_ = r.sink.Write(frame[:n])
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("app: read audio: %w", err)
		}
	}
}

// Finalize asks the vendor to finalize all buffered audio early.
func (r *Runner) Finalize(ctx context.Context) error {
	return r.sess.Finalize(ctx, 0)
}

// State reports the session's connection state, for readiness checks.
func (r *Runner) State() asr.ConnectionState {
	return r.sess.State()
}

// Close releases the dump sink. Call after Run has returned.
func (r *Runner) Close() error {
	if r.sink == nil {
		return nil
	}
	return r.sink.Close()
}

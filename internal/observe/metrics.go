// Package observe provides application-wide observability primitives for
// streamasr: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware for the metrics/health endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up via [InitProvider] so that metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all streamasr metrics.
const meterName = "github.com/verbatim-ai/streamasr"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// FinalizeLatency tracks the time between a finalize request and the
	// vendor's acknowledgement.
	FinalizeLatency metric.Float64Histogram

	// ConnectDuration tracks dial-plus-handshake latency.
	ConnectDuration metric.Float64Histogram

	// --- Counters ---

	// AudioBytes counts PCM bytes sent to the vendor. Use with attribute:
	//   attribute.String("vendor", ...)
	AudioBytes metric.Int64Counter

	// DroppedBytes counts PCM bytes discarded by the bounded buffer.
	DroppedBytes metric.Int64Counter

	// Results counts delivered recognition results. Use with attributes:
	//   attribute.String("vendor", ...), attribute.Bool("final", ...)
	Results metric.Int64Counter

	// Reconnects counts reconnection attempts by vendor and outcome.
	Reconnects metric.Int64Counter

	// VendorErrors counts vendor-reported errors by vendor and code.
	VendorErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recognition sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// streaming-recognition latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FinalizeLatency, err = m.Float64Histogram("streamasr.finalize.latency",
		metric.WithDescription("Time between a finalize request and the vendor acknowledgement."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("streamasr.connect.duration",
		metric.WithDescription("Dial and handshake latency per connection attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AudioBytes, err = m.Int64Counter("streamasr.audio.sent_bytes",
		metric.WithDescription("PCM bytes sent to the vendor."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.DroppedBytes, err = m.Int64Counter("streamasr.audio.dropped_bytes",
		metric.WithDescription("PCM bytes discarded by the bounded buffer."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Results, err = m.Int64Counter("streamasr.results",
		metric.WithDescription("Delivered recognition results by vendor and finality."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("streamasr.reconnects",
		metric.WithDescription("Reconnection attempts by vendor and outcome."),
	); err != nil {
		return nil, err
	}
	if met.VendorErrors, err = m.Int64Counter("streamasr.vendor.errors",
		metric.WithDescription("Vendor-reported errors by vendor and code."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("streamasr.active_sessions",
		metric.WithDescription("Number of live recognition sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("streamasr.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordResult records one delivered recognition result.
func (m *Metrics) RecordResult(ctx context.Context, vendor string, final bool) {
	m.Results.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("vendor", vendor),
			attribute.Bool("final", final),
		),
	)
}

// RecordVendorError records one vendor-reported error.
func (m *Metrics) RecordVendorError(ctx context.Context, vendor, code string) {
	m.VendorErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("vendor", vendor),
			attribute.String("code", code),
		),
	)
}

// RecordReconnect records one reconnection attempt and its outcome.
func (m *Metrics) RecordReconnect(ctx context.Context, vendor, outcome string) {
	m.Reconnects.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("vendor", vendor),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordConnectDuration records one dial-plus-handshake duration.
func (m *Metrics) RecordConnectDuration(ctx context.Context, vendor string, d time.Duration) {
	m.ConnectDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("vendor", vendor)),
	)
}

// AddDroppedBytes records PCM bytes discarded by a full queue. source names
// which queue shed them ("buffer" or "dump").
func (m *Metrics) AddDroppedBytes(ctx context.Context, vendor, source string, n int64) {
	m.DroppedBytes.Add(ctx, n,
		metric.WithAttributes(
			attribute.String("vendor", vendor),
			attribute.String("source", source),
		),
	)
}

// RecordFinalizeLatency records the latency of one acknowledged finalize.
func (m *Metrics) RecordFinalizeLatency(ctx context.Context, vendor string, latency time.Duration) {
	m.FinalizeLatency.Record(ctx, latency.Seconds(),
		metric.WithAttributes(attribute.String("vendor", vendor)),
	)
}

// AddAudioBytes records PCM bytes put on the wire.
func (m *Metrics) AddAudioBytes(ctx context.Context, vendor string, n int) {
	m.AudioBytes.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("vendor", vendor)),
	)
}

// Package observe provides application-wide observability primitives for
// Vigil: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vigil metrics.
const meterName = "github.com/MrWong99/vigil"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio pipeline counters ---

	// FramesCaptured counts audio frames delivered by the capture pump.
	FramesCaptured metric.Int64Counter

	// RingOverflows counts frames overwritten in the capture ring before
	// the pump could drain them.
	RingOverflows metric.Int64Counter

	// BusDrops counts events dropped from saturated bus subscriptions.
	// Use with attribute: attribute.String("subscriber", ...)
	BusDrops metric.Int64Counter

	// --- Detection counters ---

	// WakeConfirmations counts completed two-utterance confirmations.
	WakeConfirmations metric.Int64Counter

	// SilenceDetections counts endpointing decisions.
	SilenceDetections metric.Int64Counter

	// --- Session counters and gauges ---

	// StateTransitions counts session state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// RecordingActive is 1 while an utterance is being recorded.
	RecordingActive metric.Int64UpDownCounter

	// --- Backend instruments ---

	// BackendAttempts counts chat stream attempts. Use with attributes:
	//   attribute.String("transport", ...), attribute.String("status", ...)
	BackendAttempts metric.Int64Counter

	// BackendRetries counts attempts beyond the first per call.
	BackendRetries metric.Int64Counter

	// BackendLatency tracks per-attempt chat stream latency.
	BackendLatency metric.Float64Histogram

	// RecordingDuration tracks utterance lengths.
	RecordingDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversational round-trip latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// recordingBuckets covers utterance lengths up to the recording cap.
var recordingBuckets = []float64{
	0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesCaptured, err = m.Int64Counter("vigil.audio.frames",
		metric.WithDescription("Total audio frames delivered by the capture pump."),
	); err != nil {
		return nil, err
	}
	if met.RingOverflows, err = m.Int64Counter("vigil.audio.ring_overflows",
		metric.WithDescription("Frames overwritten in the capture ring before draining."),
	); err != nil {
		return nil, err
	}
	if met.BusDrops, err = m.Int64Counter("vigil.bus.drops",
		metric.WithDescription("Events dropped from saturated bus subscriptions."),
	); err != nil {
		return nil, err
	}
	if met.WakeConfirmations, err = m.Int64Counter("vigil.wake.confirmations",
		metric.WithDescription("Completed two-utterance wake confirmations."),
	); err != nil {
		return nil, err
	}
	if met.SilenceDetections, err = m.Int64Counter("vigil.vad.silence_detections",
		metric.WithDescription("Endpointing decisions after a full silence run."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("vigil.session.transitions",
		metric.WithDescription("Session state changes by source and target state."),
	); err != nil {
		return nil, err
	}
	if met.BackendAttempts, err = m.Int64Counter("vigil.backend.attempts",
		metric.WithDescription("Chat stream attempts by transport and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendRetries, err = m.Int64Counter("vigil.backend.retries",
		metric.WithDescription("Chat stream attempts beyond the first per call."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.RecordingActive, err = m.Int64UpDownCounter("vigil.session.recording_active",
		metric.WithDescription("1 while an utterance is being recorded."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.BackendLatency, err = m.Float64Histogram("vigil.backend.duration",
		metric.WithDescription("Per-attempt chat stream latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("vigil.session.recording_duration",
		metric.WithDescription("Recorded utterance length."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vigil.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackendAttempt records one chat stream attempt with the standard
// attribute set.
func (m *Metrics) RecordBackendAttempt(ctx context.Context, transport, status string) {
	m.BackendAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("transport", transport),
			attribute.String("status", status),
		),
	)
}

// RecordBackendRetry records one retry attempt.
func (m *Metrics) RecordBackendRetry(ctx context.Context, transport string) {
	m.BackendRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("transport", transport)),
	)
}

// ObserveBackendLatency records one attempt's wall-clock duration.
func (m *Metrics) ObserveBackendLatency(ctx context.Context, transport string, d time.Duration) {
	m.BackendLatency.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("transport", transport)),
	)
}

// RecordStateTransition records one session state change.
func (m *Metrics) RecordStateTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordBusDrop records one dropped event on a named subscription.
func (m *Metrics) RecordBusDrop(ctx context.Context, subscriber string) {
	m.BusDrops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("subscriber", subscriber)),
	)
}

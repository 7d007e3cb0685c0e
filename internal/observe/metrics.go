// Package observe provides observability primitives for netmic:
// OpenTelemetry metric instruments and a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter is wired up by [InitProvider] so metrics can be scraped from the
// debug server's /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all netmic metrics.
const meterName = "github.com/kzeller/netmic"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Relay (receiver side) ---

	// RelayedBytes counts bytes written into the virtual microphone pipe.
	RelayedBytes metric.Int64Counter

	// ActiveSessions tracks live relay sessions (0 or 1 by design).
	ActiveSessions metric.Int64UpDownCounter

	// SessionsRefused counts connections rejected because a session held
	// the microphone.
	SessionsRefused metric.Int64Counter

	// SessionDuration tracks how long relay sessions last.
	SessionDuration metric.Float64Histogram

	// --- Transmit side ---

	// SentBytes counts bytes written to the receiver socket.
	SentBytes metric.Int64Counter

	// Reconnects counts reconnection attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Reconnects metric.Int64Counter

	// DroppedChunks counts capture chunks dropped by the hand-off queue
	// under backlog pressure.
	DroppedChunks metric.Int64Counter

	// --- Control plane ---

	// ControlPlaneCalls counts audio control-plane invocations. Use with
	// attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	ControlPlaneCalls metric.Int64Counter
}

// sessionDurationBuckets defines histogram boundaries (in seconds) sized for
// relay sessions, which tend to live minutes rather than milliseconds.
var sessionDurationBuckets = []float64{
	1, 5, 15, 60, 300, 900, 3600, 14400,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RelayedBytes, err = m.Int64Counter("netmic.relay.bytes",
		metric.WithDescription("Bytes relayed into the virtual microphone pipe."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("netmic.relay.active_sessions",
		metric.WithDescription("Number of live relay sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionsRefused, err = m.Int64Counter("netmic.relay.sessions_refused",
		metric.WithDescription("Connections refused while the microphone was busy."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("netmic.relay.session.duration",
		metric.WithDescription("Relay session lifetime."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionDurationBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SentBytes, err = m.Int64Counter("netmic.transmit.bytes",
		metric.WithDescription("Bytes sent to the receiver."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("netmic.transmit.reconnects",
		metric.WithDescription("Reconnection attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.DroppedChunks, err = m.Int64Counter("netmic.transmit.dropped_chunks",
		metric.WithDescription("Capture chunks dropped under queue backlog."),
	); err != nil {
		return nil, err
	}

	if met.ControlPlaneCalls, err = m.Int64Counter("netmic.controlplane.calls",
		metric.WithDescription("Audio control-plane invocations by operation and status."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordReconnect records one reconnection attempt with its outcome.
func (m *Metrics) RecordReconnect(ctx context.Context, status string) {
	m.Reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordControlPlaneCall records one control-plane invocation.
func (m *Metrics) RecordControlPlaneCall(ctx context.Context, op, status string) {
	m.ControlPlaneCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

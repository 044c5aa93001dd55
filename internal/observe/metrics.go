// Package observe provides the observability primitives for moomindm:
// OpenTelemetry metrics and tracing, a Prometheus exporter bridge, trace-aware
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the /metrics endpoint set up by [InitProvider]. [DefaultMetrics] returns a
// package-level instance; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all moomindm metrics.
const meterName = "github.com/MrWong99/moomindm"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Dialogue ---

	// StateTransitions counts entered dialogue states. Use with attribute:
	//   attribute.String("state", ...)
	StateTransitions metric.Int64Counter

	// Turns counts interpreted utterances. Use with attributes:
	//   attribute.String("slot", ...), attribute.String("outcome", ...)
	Turns metric.Int64Counter

	// Retries counts re-prompts. Use with attributes:
	//   attribute.String("slot", ...), attribute.String("reason", ...)
	Retries metric.Int64Counter

	// StaleEvents counts events dropped because they did not apply to the
	// current state. Use with attribute:
	//   attribute.String("event", ...)
	StaleEvents metric.Int64Counter

	// TurnDuration tracks the time from a listen command to the recognised
	// utterance or the no-input timeout.
	TurnDuration metric.Float64Histogram

	// --- Sessions ---

	// SessionsStarted counts conversations started with a click.
	SessionsStarted metric.Int64Counter

	// SessionsCompleted counts conversations that reached the closing remark.
	SessionsCompleted metric.Int64Counter

	// ActiveSessions tracks conversations between start and completion.
	ActiveSessions metric.Int64UpDownCounter

	// --- Speech service ---

	// SpeechCommandErrors counts failed speech commands. Use with attribute:
	//   attribute.String("command", ...)
	SpeechCommandErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// turnBuckets defines histogram bucket boundaries (in seconds) for a
// listening turn, which is bounded by the no-input timeout.
var turnBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 4, 5, 7.5, 10, 15,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Dialogue.
	if met.StateTransitions, err = m.Int64Counter("moomindm.dialogue.state_transitions",
		metric.WithDescription("Total dialogue state entries by state."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("moomindm.dialogue.turns",
		metric.WithDescription("Total interpreted utterances by slot and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("moomindm.dialogue.retries",
		metric.WithDescription("Total re-prompts by slot and reason."),
	); err != nil {
		return nil, err
	}
	if met.StaleEvents, err = m.Int64Counter("moomindm.dialogue.stale_events",
		metric.WithDescription("Total events ignored by the dialogue by event kind."),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("moomindm.dialogue.turn.duration",
		metric.WithDescription("Time from listening to recognition or no-input."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}

	// Sessions.
	if met.SessionsStarted, err = m.Int64Counter("moomindm.sessions.started",
		metric.WithDescription("Total conversations started."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("moomindm.sessions.completed",
		metric.WithDescription("Total conversations completed."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("moomindm.active_sessions",
		metric.WithDescription("Number of conversations in progress."),
	); err != nil {
		return nil, err
	}

	// Speech service.
	if met.SpeechCommandErrors, err = m.Int64Counter("moomindm.speech.command_errors",
		metric.WithDescription("Total failed speech commands by command kind."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("moomindm.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordTransition records entry into a dialogue state.
func (m *Metrics) RecordTransition(ctx context.Context, state string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordTurn records an interpreted utterance.
func (m *Metrics) RecordTurn(ctx context.Context, slot, outcome string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("slot", slot),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRetry records a re-prompt of slot for the given reason.
func (m *Metrics) RecordRetry(ctx context.Context, slot, reason string) {
	m.Retries.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("slot", slot),
			attribute.String("reason", reason),
		),
	)
}

// RecordStaleEvent records an event the dialogue ignored.
func (m *Metrics) RecordStaleEvent(ctx context.Context, event string) {
	m.StaleEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordSpeechError records a failed speech command.
func (m *Metrics) RecordSpeechError(ctx context.Context, command string) {
	m.SpeechCommandErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// Package observe provides application-wide observability primitives for
// cogniscribe: OpenTelemetry metrics, tracing helpers, trace-aware logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/cogniscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks the time from prompt to the last token.
	GenerationDuration metric.Float64Histogram

	// FirstTokenLatency tracks the time from prompt to the first token.
	FirstTokenLatency metric.Float64Histogram

	// DownloadDuration tracks model download time.
	DownloadDuration metric.Float64Histogram

	// LoadDuration tracks model load time.
	LoadDuration metric.Float64Histogram

	// --- Counters ---

	// RuntimeRequests counts runtime calls. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	RuntimeRequests metric.Int64Counter

	// RuntimeErrors counts failed runtime calls by op.
	RuntimeErrors metric.Int64Counter

	// SpeechUtterances counts synthesizer utterances by outcome
	// (done, error).
	SpeechUtterances metric.Int64Counter

	// SpeechRecognitions counts recognizer sessions by outcome
	// (final or the error code).
	SpeechRecognitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live chat sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries in seconds. Generation on
// small local models and model downloads both run long, hence the tail.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.GenerationDuration, "cogniscribe.generation.duration", "Time from prompt to the last generated token."},
		{&met.FirstTokenLatency, "cogniscribe.generation.first_token", "Time from prompt to the first generated token."},
		{&met.DownloadDuration, "cogniscribe.download.duration", "Duration of model downloads."},
		{&met.LoadDuration, "cogniscribe.load.duration", "Duration of model loads."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.RuntimeRequests, err = m.Int64Counter("cogniscribe.runtime.requests",
		metric.WithDescription("Total runtime requests by op and status."),
	); err != nil {
		return nil, err
	}
	if met.RuntimeErrors, err = m.Int64Counter("cogniscribe.runtime.errors",
		metric.WithDescription("Total runtime errors by op."),
	); err != nil {
		return nil, err
	}
	if met.SpeechUtterances, err = m.Int64Counter("cogniscribe.speech.utterances",
		metric.WithDescription("Total synthesized utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SpeechRecognitions, err = m.Int64Counter("cogniscribe.speech.recognitions",
		metric.WithDescription("Total recognition sessions by outcome."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("cogniscribe.active_sessions",
		metric.WithDescription("Number of live chat sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("cogniscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRuntimeRequest records one runtime call. A status other than "ok"
// also increments RuntimeErrors.
func (m *Metrics) RecordRuntimeRequest(ctx context.Context, op, status string) {
	m.RuntimeRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
	if status != "ok" {
		m.RuntimeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

// RecordUtterance records one finished synthesizer utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.SpeechUtterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRecognition records one finished recognition session.
func (m *Metrics) RecordRecognition(ctx context.Context, outcome string) {
	m.SpeechRecognitions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

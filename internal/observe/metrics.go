// Package observe holds the relay's OpenTelemetry metric instruments, the
// Prometheus bridge that exposes them, and the HTTP middleware that records
// request latency.
//
// All helper methods are safe on a nil *Metrics so that components can be
// constructed without instrumentation in tests and tools.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every relay metric.
const meterName = "github.com/zhouzirui/line-relay/backend"

// Metrics holds all metric instruments. The OTel types handle their own
// synchronisation.
type Metrics struct {
	// HTTPRequestDuration tracks request processing time by method, route and status.
	HTTPRequestDuration metric.Float64Histogram

	// StageDuration tracks per-stage latency (fetch, transcode, recognize,
	// translate, reply) with a status attribute.
	StageDuration metric.Float64Histogram

	// Events counts dispatched webhook events by kind.
	Events metric.Int64Counter

	// Replies counts outbound replies by outcome (ok, fallback, failed).
	Replies metric.Int64Counter

	// Errors counts handler failures by error kind.
	Errors metric.Int64Counter

	// SignatureFailures counts rejected webhook deliveries.
	SignatureFailures metric.Int64Counter
}

// latencyBuckets covers fast text replies up to slow speech recognition.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.HTTPRequestDuration, err = m.Float64Histogram("relay.http.request.duration",
		metric.WithDescription("Latency of inbound HTTP requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("relay.stage.duration",
		metric.WithDescription("Latency of individual relay pipeline stages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Events, err = m.Int64Counter("relay.events",
		metric.WithDescription("Webhook events dispatched, by kind."),
	); err != nil {
		return nil, err
	}
	if met.Replies, err = m.Int64Counter("relay.replies",
		metric.WithDescription("Outbound replies, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("relay.errors",
		metric.WithDescription("Handler failures, by error kind."),
	); err != nil {
		return nil, err
	}
	if met.SignatureFailures, err = m.Int64Counter("relay.signature.failures",
		metric.WithDescription("Webhook deliveries rejected by signature verification."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordStage records how long a pipeline stage took.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// CountEvent increments the event counter for kind.
func (m *Metrics) CountEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// CountReply increments the reply counter for outcome.
func (m *Metrics) CountReply(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Replies.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// CountError increments the error counter for kind.
func (m *Metrics) CountError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// CountSignatureFailure increments the rejected-delivery counter.
func (m *Metrics) CountSignatureFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.SignatureFailures.Add(ctx, 1)
}

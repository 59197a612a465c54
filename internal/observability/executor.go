/*
Package observability wraps the transaction engine with metrics and tracing
without either concern entering internal/ledger, per that package's stated
scope ("this package never imports ... a logging library, or a metrics
client"). InstrumentedExecutor decorates anything satisfying the executor
interface — in practice *ledger.Executor — so the core stays a plain Go
library and every external collaborator (HTTP handlers, CLIs, tests) decides
for itself whether to pay for instrumentation.

Grounded on replay-api's prometheus/client_golang wiring (a counter +
histogram pair registered once at startup) and midaz's otel span-per-operation
convention, both retrieved alongside this spec as reference service
scaffolding on the same stack.
*/
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/wallet-ledger/internal/ledger"
)

// coreExecutor is the subset of *ledger.Executor this package depends on,
// kept narrow so tests can substitute a fake without importing the real one.
type coreExecutor interface {
	Execute(ctx context.Context, req ledger.Request) (ledger.Result, error)
}

// Metrics is the Prometheus collector set for the engine. NewMetrics
// registers it against the registerer its caller passes (cmd/server passes
// the default one), so a test can pass its own registry instead of touching
// the default registry.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics builds a Metrics and registers it against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_requests_total",
			Help: "Count of executor requests by transaction type and outcome.",
		}, []string{"type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_ledger_request_duration_seconds",
			Help:    "Executor request latency by transaction type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// InstrumentedExecutor decorates an executor with metrics and tracing.
type InstrumentedExecutor struct {
	next    coreExecutor
	metrics *Metrics
	tracer  trace.Tracer
}

// NewInstrumentedExecutor wraps next. Its tracer is
// otel.Tracer("wallet-ledger/executor"), a no-op until a TracerProvider is
// registered — otel's API defaults to a no-op implementation.
func NewInstrumentedExecutor(next coreExecutor, metrics *Metrics) *InstrumentedExecutor {
	return &InstrumentedExecutor{
		next:    next,
		metrics: metrics,
		tracer:  otel.Tracer("wallet-ledger/executor"),
	}
}

// Execute runs the wrapped executor inside a span, recording latency and
// outcome, and records a Prometheus counter/histogram observation.
func (e *InstrumentedExecutor) Execute(ctx context.Context, req ledger.Request) (ledger.Result, error) {
	ctx, span := e.tracer.Start(ctx, "ledger.Execute", trace.WithAttributes(
		attribute.String("ledger.transaction_type", string(req.Type)),
	))
	defer span.End()

	start := time.Now()
	result, err := e.next.Execute(ctx, req)
	elapsed := time.Since(start)

	outcome := "completed"
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.Status == ledger.StatusFailed:
		outcome = "failed"
		span.SetStatus(codes.Error, result.Error)
	default:
		span.SetStatus(codes.Ok, "")
	}

	e.metrics.requests.WithLabelValues(string(req.Type), outcome).Inc()
	e.metrics.duration.WithLabelValues(string(req.Type)).Observe(elapsed.Seconds())

	return result, err
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/flowstep/engine"
)

// MetricsHandler translates engine events into OpenTelemetry metrics. It
// records counters and histograms for step executions, failures, and run
// durations.
type MetricsHandler struct {
	stepExecutions metric.Int64Counter
	stepFailures   metric.Int64Counter
	stepDuration   metric.Float64Histogram
	runDuration    metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording engine metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	stepExec, err := meter.Int64Counter("flowstep.step.executions",
		metric.WithDescription("Number of executed steps"),
	)
	if err != nil {
		return nil, err
	}

	stepFail, err := meter.Int64Counter("flowstep.step.failures",
		metric.WithDescription("Number of failed steps"),
	)
	if err != nil {
		return nil, err
	}

	stepDur, err := meter.Float64Histogram("flowstep.step.duration",
		metric.WithDescription("Duration of step execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("flowstep.run.duration",
		metric.WithDescription("Duration of graph runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		stepExecutions: stepExec,
		stepFailures:   stepFail,
		stepDuration:   stepDur,
		runDuration:    runDur,
	}, nil
}

// Handle processes an engine event and records the appropriate metrics.
// It implements engine.EventHandler semantics.
func (h *MetricsHandler) Handle(e engine.Event) {
	switch e.Kind {
	case engine.EventStepFinished:
		h.handleStepFinished(e)
	case engine.EventStepFailed:
		h.handleStepFailed(e)
	case engine.EventRunFinished:
		h.handleRunFinished(e)
	}
}

func (h *MetricsHandler) handleStepFinished(e engine.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("node", e.Node),
		attribute.String("tool", e.Tool),
	)
	h.stepExecutions.Add(ctx, 1, attrs)
	h.stepDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}

func (h *MetricsHandler) handleStepFailed(e engine.Event) {
	h.stepFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("node", e.Node),
		attribute.String("tool", e.Tool),
	))
}

func (h *MetricsHandler) handleRunFinished(e engine.Event) {
	status, _ := e.Payload["status"].(string)
	h.runDuration.Record(context.Background(), e.Elapsed.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}

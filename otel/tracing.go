// Package otel provides OpenTelemetry integration for flowstep engine events.
package otel

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/flowstep/engine"
)

// TracingHandler translates engine events into OpenTelemetry spans: a root
// span per run with one child span per executed step. It maintains maps of
// active spans, creating and ending them based on event kind.
type TracingHandler struct {
	tracer trace.Tracer

	mu        sync.RWMutex
	runSpans  map[string]trace.Span      // runID -> span
	runCtxs   map[string]context.Context // runID -> context (for child spans)
	stepSpans map[string]trace.Span      // runID:node -> span
}

// NewTracingHandler creates a TracingHandler that uses the given tracer to
// create spans from engine events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:    tracer,
		runSpans:  make(map[string]trace.Span),
		runCtxs:   make(map[string]context.Context),
		stepSpans: make(map[string]trace.Span),
	}
}

// Handle processes an engine event and creates or ends spans accordingly.
// It implements engine.EventHandler semantics.
func (h *TracingHandler) Handle(e engine.Event) {
	switch e.Kind {
	case engine.EventRunStarted:
		h.handleRunStarted(e)
	case engine.EventStepStarted:
		h.handleStepStarted(e)
	case engine.EventStepFinished:
		h.handleStepFinished(e)
	case engine.EventStepFailed:
		h.handleStepFailed(e)
	case engine.EventRunFinished:
		h.handleRunFinished(e)
	}
}

// ActiveRunSpanContext returns the span context for a run's root span, or an
// invalid context if the run has no active span.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if span, ok := h.runSpans[runID]; ok {
		return span.SpanContext()
	}
	return trace.SpanContext{}
}

func (h *TracingHandler) handleRunStarted(e engine.Event) {
	ctx, span := h.tracer.Start(context.Background(), "run:"+e.GraphID,
		trace.WithAttributes(
			attribute.String("flowstep.run_id", e.RunID),
			attribute.String("flowstep.graph_id", e.GraphID),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

func (h *TracingHandler) handleStepStarted(e engine.Event) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()

	if !ok {
		parentCtx = context.Background()
	}

	_, span := h.tracer.Start(parentCtx, "step:"+e.Node,
		trace.WithAttributes(
			attribute.String("flowstep.run_id", e.RunID),
			attribute.String("flowstep.node", e.Node),
			attribute.String("flowstep.tool", e.Tool),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.stepSpans[e.RunID+":"+e.Node] = span
	h.mu.Unlock()
}

func (h *TracingHandler) handleStepFinished(e engine.Event) {
	span, ok := h.takeStepSpan(e.RunID, e.Node)
	if !ok {
		return
	}
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleStepFailed(e engine.Event) {
	span, ok := h.takeStepSpan(e.RunID, e.Node)
	if !ok {
		return
	}
	msg := e.Err
	if msg == "" {
		msg = "unknown error"
	}
	span.SetStatus(codes.Error, msg)
	span.RecordError(errors.New(msg), trace.WithTimestamp(e.Time))
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleRunFinished(e engine.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	status, _ := e.Payload["status"].(string)
	if status != "" {
		span.SetAttributes(attribute.String("flowstep.status", status))
	}
	if e.Err != "" {
		span.SetStatus(codes.Error, e.Err)
		span.RecordError(errors.New(e.Err), trace.WithTimestamp(e.Time))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) takeStepSpan(runID, node string) (trace.Span, bool) {
	key := runID + ":" + node
	h.mu.Lock()
	defer h.mu.Unlock()
	span, ok := h.stepSpans[key]
	if ok {
		delete(h.stepSpans, key)
	}
	return span, ok
}

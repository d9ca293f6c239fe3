package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/supershop/internal/domain/outbox"
	"github.com/Zhima-Mochi/supershop/internal/observability"
	"github.com/Zhima-Mochi/supershop/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext injects a request-scoped logger for background/worker executions.
// Dynamic fields only: trace_id/span_id (if valid), event_id (generated if empty),
// plus caller-provided low-cardinality attributes (e.g. "event", "handler").
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, 3+len(attrs))

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// Subscriber decorates a domain subscriber so every handler runs with an
// event-scoped logger in its context.
type Subscriber struct {
	next domoutbox.Subscriber
	log  observability.Logger
}

var _ domoutbox.Subscriber = (*Subscriber)(nil)

func NewSubscriber(next domoutbox.Subscriber, logger observability.Logger, tel observability.Observability) *Subscriber {
	if logger == nil {
		_, logger, _ = observability.Resolve(tel)
	}
	return &Subscriber{next: next, log: logger.With(observability.F("component", "worker"))}
}

func (s *Subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.next.Subscribe(eventName, func(ctx context.Context, e domoutbox.Event) error {
		attrs := map[string]string{"event": e.EventName()}
		if id, ok := e.(domoutbox.Identified); ok {
			attrs["event_id"] = id.EventID()
		}
		sc := trace.SpanContextFromContext(ctx)
		ctx = WithEventContext(ctx, s.log, sc.TraceID(), sc.SpanID(), attrs)
		return h(ctx, e)
	})
}

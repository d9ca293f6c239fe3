package workerpresentation

import (
	"context"
	"testing"

	domoutbox "github.com/Zhima-Mochi/supershop/internal/domain/outbox"
	"github.com/Zhima-Mochi/supershop/internal/observability"
	"github.com/Zhima-Mochi/supershop/internal/observability/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type fieldLogger struct {
	observability.Logger
	fields map[string]any
}

func newFieldLogger() *fieldLogger {
	return &fieldLogger{Logger: observability.NopLogger(), fields: map[string]any{}}
}

func (l *fieldLogger) With(fields ...observability.Field) observability.Logger {
	next := &fieldLogger{Logger: l.Logger, fields: make(map[string]any, len(l.fields)+len(fields))}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	for _, f := range fields {
		next.fields[f.Key] = f.Value
	}
	return next
}

type directSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (d *directSubscriber) Subscribe(name string, h domoutbox.Handler) { d.handlers[name] = h }

type placed struct{}

func (placed) EventName() string { return "order.placed" }
func (placed) EventID() string   { return "order-9" }

type anonymous struct{}

func (anonymous) EventName() string { return "ping" }

func TestSubscriberInjectsEventLogger(t *testing.T) {
	inner := &directSubscriber{handlers: map[string]domoutbox.Handler{}}
	sub := NewSubscriber(inner, newFieldLogger(), nil)

	var got map[string]any
	sub.Subscribe("order.placed", func(ctx context.Context, _ domoutbox.Event) error {
		got = logctx.From(ctx).(*fieldLogger).fields
		return nil
	})

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: trace.TraceID{9}, SpanID: trace.SpanID{8}})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)
	require.NoError(t, inner.handlers["order.placed"](ctx, placed{}))

	assert.Equal(t, "order-9", got["event_id"])
	assert.Equal(t, "order.placed", got["event"])
	assert.Equal(t, "worker", got["component"])
	assert.Equal(t, sc.TraceID().String(), got["trace_id"])
}

func TestWithEventContextGeneratesID(t *testing.T) {
	ctx := WithEventContext(context.Background(), newFieldLogger(), trace.TraceID{}, trace.SpanID{}, map[string]string{"event": anonymous{}.EventName()})

	fields := logctx.From(ctx).(*fieldLogger).fields
	assert.NotEmpty(t, fields["event_id"])
	assert.Equal(t, "ping", fields["event"])
	assert.NotContains(t, fields, "trace_id")
}

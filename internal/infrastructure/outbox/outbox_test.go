package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/supershop/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewBus(nil, nil, Options{})
	var got atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		bus.Subscribe("order.placed", func(context.Context, domoutbox.Event) error {
			got.Add(1)
			wg.Done()
			return nil
		})
	}
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.placed"}))
	wg.Wait()
	assert.Equal(t, int32(2), got.Load())
}

func TestBusSurvivesHandlerFailures(t *testing.T) {
	bus := NewBus(nil, nil, Options{})
	delivered := make(chan string, 3)
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error { panic("boom") })
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error { return errors.New("nope") })
	bus.Subscribe("e", func(_ context.Context, e domoutbox.Event) error {
		delivered <- e.EventName()
		return nil
	})
	bus.Start(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "e"}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "e"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bus.Stop(ctx)
	assert.Len(t, delivered, 2)
}

func TestBusStopDrainsQueue(t *testing.T) {
	bus := NewBus(nil, nil, Options{})
	var handled atomic.Int32
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	})
	bus.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), testEvent{name: "e"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus.Stop(ctx)
	assert.Equal(t, int32(5), handled.Load())

	assert.ErrorIs(t, bus.Publish(context.Background(), testEvent{name: "e"}), ErrClosed)
}

func TestBusPublishRespectsContextWhenFull(t *testing.T) {
	bus := NewBus(nil, nil, Options{QueueSize: 1})
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "e"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, testEvent{name: "e"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	bus.Stop(context.Background())
}

func TestBusPropagatesPublisherSpan(t *testing.T) {
	bus := NewBus(nil, nil, Options{})
	seen := make(chan trace.SpanContext, 1)
	bus.Subscribe("e", func(ctx context.Context, _ domoutbox.Event) error {
		seen <- trace.SpanContextFromContext(ctx)
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	require.NoError(t, bus.Publish(ctx, testEvent{name: "e"}))

	select {
	case got := <-seen:
		assert.Equal(t, sc.TraceID(), got.TraceID())
		assert.True(t, got.IsRemote())
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

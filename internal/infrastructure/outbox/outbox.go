package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	domoutbox "github.com/Zhima-Mochi/supershop/internal/domain/outbox"
	"github.com/Zhima-Mochi/supershop/internal/observability"
	"github.com/Zhima-Mochi/supershop/internal/observability/logctx"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("outbox: bus closed")

const componentOutbox = "outbox"

type Options struct {
	QueueSize      int
	Concurrency    int           // per-event handler fanout cap
	HandlerTimeout time.Duration // bound for a single handler call
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
	return o
}

// envelope carries the publisher's span so handlers join the order's trace.
type envelope struct {
	event domoutbox.Event
	span  trace.SpanContext
}

// Bus is an in-memory event bus that fans committed-order events out to
// subscribers after the publishing request has returned. It is not durable:
// events still queued when the process dies are lost.
type Bus struct {
	mu        sync.RWMutex // guards subs
	subs      map[string][]domoutbox.Handler
	closeMu   sync.RWMutex // guards closed and sends on queue
	queue     chan envelope
	closed    bool
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	opts      Options
	log       observability.Logger
}

func NewBus(logger observability.Logger, tel observability.Observability, opts Options) *Bus {
	if logger == nil {
		_, logger, _ = observability.Resolve(tel)
	}
	opts = opts.withDefaults()
	return &Bus{
		subs:  make(map[string][]domoutbox.Handler),
		queue: make(chan envelope, opts.QueueSize),
		done:  make(chan struct{}),
		opts:  opts,
		log:   logger.With(observability.F("component", componentOutbox)),
	}
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.started.Store(true)
		go b.dispatchLoop(context.WithoutCancel(ctx))
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop refuses new events and waits for queued ones to be handled, or for ctx
// to expire, whichever comes first.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.closeMu.Lock()
		b.closed = true
		close(b.queue)
		b.closeMu.Unlock()

		logger := logctx.FromOr(ctx, b.log)
		if !b.started.Load() {
			logger.Info("event_bus_stopped")
			return
		}
		select {
		case <-b.done:
			logger.Info("event_bus_stopped")
		case <-ctx.Done():
			logger.Warn("event_bus_stop_timeout",
				observability.F("pending", len(b.queue)),
				observability.F("error", ctx.Err()),
			)
		}
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
	select {
	case b.queue <- envelope{event: e, span: trace.SpanContextFromContext(ctx)}:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted",
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for env := range b.queue {
		b.fanout(ctx, env)
	}
}

func (b *Bus) fanout(ctx context.Context, env envelope) {
	name := env.event.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	if env.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, env.span)
	}
	ctx = logctx.With(ctx, logger)

	var g errgroup.Group
	g.SetLimit(b.opts.Concurrency)
	for _, h := range handlers {
		g.Go(func() error {
			b.invoke(ctx, logger, h, env.event)
			return nil
		})
	}
	_ = g.Wait()

	logger.Debug("event_fanned_out",
		observability.F("handlers", len(handlers)),
	)
}

// invoke runs one handler; errors and panics are logged and never reach the publisher.
func (b *Bus) invoke(ctx context.Context, logger observability.Logger, h domoutbox.Handler, e domoutbox.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event_handler_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.opts.HandlerTimeout)
	defer cancel()
	if err := h(ctx, e); err != nil {
		logger.Warn("event_handler_error",
			observability.F("error", err),
		)
	}
}

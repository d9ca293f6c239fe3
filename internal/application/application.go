package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	"github.com/Zhima-Mochi/supershop/internal/observability"
	"github.com/Zhima-Mochi/supershop/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("request already in progress")
	ErrStorage    = errors.New("storage failure")
)

const spanPrefix = "UC."

func NewValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// WrapStorage passes domain outcomes through untouched and marks everything
// else as a storage failure.
func WrapStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrStorage):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
}

// Instruments bundles the RED metrics, tracer and base logger a use case reports to.
type Instruments struct {
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstruments(tel observability.Observability, service string) *Instruments {
	tracer, logger, metrics := observability.Resolve(tel)
	return &Instruments{
		tracer:       tracer,
		log:          logger.With(observability.F("service", service)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

func (i *Instruments) Logger() observability.Logger { return i.log }

// Run tracks one use case execution from Begin to End.
type Run struct {
	inst    *Instruments
	useCase string
	ctx     context.Context
	span    trace.Span
	start   time.Time
	log     observability.Logger
	outcome string
	status  string
	fields  []observability.Field
}

// Begin starts the span for useCase and stores a use-case scoped logger on the returned context.
func (i *Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := i.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	logger := logctx.FromOr(ctx, i.log).With(observability.F("use_case", useCase))
	ctx = logctx.With(ctx, logger)
	return ctx, &Run{
		inst:    i,
		useCase: useCase,
		ctx:     ctx,
		span:    span,
		start:   time.Now(),
		log:     logger,
		outcome: "success",
		status:  "OK",
	}
}

func (r *Run) Span() trace.Span             { return r.span }
func (r *Run) Logger() observability.Logger { return r.log }

// Fail marks the run as failed with a machine-readable status.
func (r *Run) Fail(status string) {
	r.outcome, r.status = "error", status
}

// Status overrides the status text without changing the outcome.
func (r *Run) Status(status string) { r.status = status }

// With attaches fields to the closing use_case_done entry.
func (r *Run) With(fields ...observability.Field) { r.fields = append(r.fields, fields...) }

// End closes the span, records RED metrics and emits use_case_done.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome != "error" {
		r.Fail("UNEXPECTED_ERROR")
	}

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.status)
	} else {
		r.span.SetStatus(codes.Ok, r.status)
	}
	r.span.End()

	r.inst.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.inst.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.log.Info("use_case_done", fields...)
}

// External records a call to a peer outside the process.
func (i *Instruments) External(peer, endpoint, outcome string, d time.Duration) {
	i.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	i.extHistogram.Observe(d.Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}

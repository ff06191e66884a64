package observability

import (
	"context"
	"loginguard/internal/counter"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStore wraps a counter.Store with OpenTelemetry tracing and
// metrics. Keys are not recorded as attributes since they carry emails and
// client addresses.
type InstrumentedStore struct {
	inner    counter.Store
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ counter.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore creates a store wrapper that records a span, a latency
// sample and, on failure, an error count for every call.
func NewInstrumentedStore(inner counter.Store) (*InstrumentedStore, error) {
	tracer := otel.Tracer("loginguard/counter")
	meter := otel.Meter("loginguard/counter")

	duration, err := meter.Float64Histogram(
		"counter.operation.duration",
		metric.WithDescription("Duration of counter store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"counter.operation.errors",
		metric.WithDescription("Number of counter store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "counter."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("counter.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *InstrumentedStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, span := s.startSpan(ctx, "IncrementAndGet", attribute.Int64("counter.window_ms", window.Milliseconds()))
	start := time.Now()
	count, err := s.inner.IncrementAndGet(ctx, key, window)
	span.SetAttributes(attribute.Int64("counter.count", count))
	s.record(ctx, span, "IncrementAndGet", start, err)
	return count, err
}

func (s *InstrumentedStore) Count(ctx context.Context, key string) (int64, error) {
	ctx, span := s.startSpan(ctx, "Count")
	start := time.Now()
	count, err := s.inner.Count(ctx, key)
	s.record(ctx, span, "Count", start, err)
	return count, err
}

func (s *InstrumentedStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, span := s.startSpan(ctx, "TTL")
	start := time.Now()
	ttl, err := s.inner.TTL(ctx, key)
	s.record(ctx, span, "TTL", start, err)
	return ttl, err
}

func (s *InstrumentedStore) SetLock(ctx context.Context, key string, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "SetLock", attribute.Int64("counter.ttl_ms", ttl.Milliseconds()))
	start := time.Now()
	err := s.inner.SetLock(ctx, key, ttl)
	s.record(ctx, span, "SetLock", start, err)
	return err
}

func (s *InstrumentedStore) GetLock(ctx context.Context, key string) (counter.Lock, bool, error) {
	ctx, span := s.startSpan(ctx, "GetLock")
	start := time.Now()
	lock, ok, err := s.inner.GetLock(ctx, key)
	span.SetAttributes(attribute.Bool("counter.locked", ok))
	s.record(ctx, span, "GetLock", start, err)
	return lock, ok, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, keys ...string) error {
	ctx, span := s.startSpan(ctx, "Delete", attribute.Int("counter.keys", len(keys)))
	start := time.Now()
	err := s.inner.Delete(ctx, keys...)
	s.record(ctx, span, "Delete", start, err)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

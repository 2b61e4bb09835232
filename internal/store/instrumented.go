package store

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce     sync.Once
	storeOperations metric.Int64Counter
	storeDuration   metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/plandesk/plandesk/internal/store")

		var err error
		storeOperations, err = meter.Int64Counter(
			"store.operations",
			metric.WithDescription("Total store operations"),
		)
		if err != nil {
			otel.Handle(err)
		}

		storeDuration, err = meter.Float64Histogram(
			"store.operation.duration",
			metric.WithDescription("Store operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented wraps a Store with metrics instrumentation.
type Instrumented struct {
	wrapped   Store
	storeType string
}

// NewInstrumented creates an instrumented store wrapper.
func NewInstrumented(store Store, storeType string) *Instrumented {
	initMetrics()
	return &Instrumented{
		wrapped:   store,
		storeType: storeType,
	}
}

// Get retrieves a value from the wrapped store.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()

	value, found, err := i.wrapped.Get(ctx, key)

	status := "miss"
	if err != nil {
		status = "error"
	} else if found {
		status = "hit"
	}
	i.record(ctx, "get", status, time.Since(start))

	return value, found, err
}

// Set stores a value in the wrapped store.
func (i *Instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()

	err := i.wrapped.Set(ctx, key, value)

	i.record(ctx, "set", outcome(err), time.Since(start))

	return err
}

// Delete removes a value from the wrapped store.
func (i *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := i.wrapped.Delete(ctx, key)

	i.record(ctx, "delete", outcome(err), time.Since(start))

	return err
}

// Keys delegates to the wrapped store when it can list keys.
func (i *Instrumented) Keys(ctx context.Context) ([]string, error) {
	lister, ok := i.wrapped.(Lister)
	if !ok {
		return nil, nil
	}
	return lister.Keys(ctx)
}

// Close releases any resources held by the wrapped store.
func (i *Instrumented) Close() error {
	return i.wrapped.Close()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (i *Instrumented) record(ctx context.Context, operation, status string, duration time.Duration) {
	if storeOperations != nil {
		storeOperations.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("store.type", i.storeType),
				attribute.String("store.operation", operation),
				attribute.String("store.status", status),
			),
		)
	}

	if storeDuration != nil {
		storeDuration.Record(ctx, duration.Seconds(),
			metric.WithAttributes(
				attribute.String("store.type", i.storeType),
				attribute.String("store.operation", operation),
			),
		)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("store.type", i.storeType),
		attribute.String("store."+operation+".status", status),
		attribute.Float64("store."+operation+".duration", duration.Seconds()),
	)
}

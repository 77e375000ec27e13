package orders

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/joao-fontenele/shopflow/internal/orders"

var tracer = otel.Tracer(instrumentationName)

type engineMetrics struct {
	placed  metric.Int64Counter
	failed  metric.Int64Counter
	retries metric.Int64Counter
	latency metric.Float64Histogram
}

func newEngineMetrics(meter metric.Meter) (*engineMetrics, error) {
	placed, err1 := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders committed"),
		metric.WithUnit("{order}"),
	)
	failed, err2 := meter.Int64Counter("orders.failed",
		metric.WithDescription("Order placements that did not commit, by reason"),
		metric.WithUnit("{order}"),
	)
	retries, err3 := meter.Int64Counter("orders.tx.retries",
		metric.WithDescription("Order transactions retried after a serialization conflict"),
		metric.WithUnit("{retry}"),
	)
	latency, err4 := meter.Float64Histogram("orders.place.duration",
		metric.WithDescription("Time spent placing an order, retries included"),
		metric.WithUnit("s"),
	)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}

	return &engineMetrics{placed: placed, failed: failed, retries: retries, latency: latency}, nil
}

func mustEngineMetrics() *engineMetrics {
	m, err := newEngineMetrics(otel.Meter(instrumentationName))
	if err != nil {
		m, _ = newEngineMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return m
}

func (m *engineMetrics) recordFailure(ctx context.Context, err error) {
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
}

func failureReason(err error) string {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		stockErr      *InsufficientStockError
	)
	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	default:
		return "storage"
	}
}

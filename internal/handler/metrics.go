package handler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/souq-labs/souq-api/internal/handler"

// metrics instruments the checkout path. Instruments come from the global
// otel providers, so with no SDK configured everything is a no-op.
type metrics struct {
	tracer trace.Tracer

	ordersPlaced    metric.Int64Counter
	ordersCancelled metric.Int64Counter
	checkoutSeconds metric.Float64Histogram
}

func newMetrics() *metrics {
	meter := otel.Meter(scopeName)

	ordersPlaced, err := meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders placed successfully"))
	if err != nil {
		otel.Handle(err)
	}
	ordersCancelled, err := meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled"))
	if err != nil {
		otel.Handle(err)
	}
	checkoutSeconds, err := meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Checkout duration"),
		metric.WithUnit("s"))
	if err != nil {
		otel.Handle(err)
	}

	return &metrics{
		tracer:          otel.Tracer(scopeName),
		ordersPlaced:    ordersPlaced,
		ordersCancelled: ordersCancelled,
		checkoutSeconds: checkoutSeconds,
	}
}

// startCheckout opens a checkout span. The returned func records duration
// and outcome and must be called exactly once.
func (m *metrics) startCheckout(ctx context.Context, source string) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "checkout",
		trace.WithAttributes(attribute.String("checkout.source", source)))

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.SetStatus(codes.Error, err.Error())
		} else {
			m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("checkout.source", source)))
		}
		m.checkoutSeconds.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(
				attribute.String("checkout.source", source),
				attribute.String("checkout.outcome", outcome),
			))
		span.End()
	}
}

func (m *metrics) recordCancel(ctx context.Context) {
	m.ordersCancelled.Add(ctx, 1)
}

package kafka_middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"robopay/pkg/kafka"
)

const meterName = "robopay/pkg/kafka"

// MetricsProducerMiddleware records publish counts and latency on the given
// meter provider, or the global one when mp is nil.
func MetricsProducerMiddleware(mp metric.MeterProvider) (kafka.ProducerMiddleware, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	published, err := meter.Int64Counter("robopay.kafka.published",
		metric.WithDescription("Messages handed to Kafka, by topic, event type and status"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("robopay.kafka.publish.duration",
		metric.WithDescription("Publish latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()

		err := next(ctx, msg)

		status := "success"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("topic", msg.Topic),
			attribute.String("event_type", msg.GetEventType()),
			attribute.String("status", status),
		)
		published.Add(ctx, 1, attrs)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)

		return err
	}, nil
}

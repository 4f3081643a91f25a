package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/rvoc/job"
)

// meterName is the instrumentation scope name for job metrics.
const meterName = "github.com/xraph/rvoc"

// Metrics records per-run metrics with the global MeterProvider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter records:
//   - rvoc.job.duration (Float64Histogram, seconds)
//   - rvoc.job.executions (Int64Counter)
//
// both with attributes job_kind and status ("ok" or "error").
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API hands back noop instruments on error.
	duration, _ := meter.Float64Histogram(
		"rvoc.job.duration",
		metric.WithDescription("Duration of job runs in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"rvoc.job.executions",
		metric.WithDescription("Total number of job runs"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.InProgressJob, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("job_kind", j.Kind.String()),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)
		return err
	}
}

package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/rvoc/job"
)

// tracerName is the instrumentation scope name for job tracing.
const tracerName = "github.com/xraph/rvoc"

// Tracing wraps each run in a span from the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer wraps each run in a span named "rvoc.job.execute".
// Attributes: rvoc.job.kind, rvoc.job.run_id, rvoc.job.delay_ms and
// rvoc.job.reclaimed.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.InProgressJob, next Handler) error {
		ctx, span := tracer.Start(ctx, "rvoc.job.execute",
			trace.WithAttributes(
				attribute.String("rvoc.job.kind", j.Kind.String()),
				attribute.String("rvoc.job.run_id", j.RunID.String()),
				attribute.Int64("rvoc.job.delay_ms", j.Delay().Milliseconds()),
				attribute.Bool("rvoc.job.reclaimed", j.Reclaimed),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}

package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/rvoc/ext"
	"github.com/xraph/rvoc/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.JobReserved    = (*MetricsExtension)(nil)
	_ ext.JobCompleted   = (*MetricsExtension)(nil)
	_ ext.JobFailed      = (*MetricsExtension)(nil)
	_ ext.JobRemoved     = (*MetricsExtension)(nil)
	_ ext.SessionCreated = (*MetricsExtension)(nil)
	_ ext.SessionRotated = (*MetricsExtension)(nil)
	_ ext.SessionDeleted = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/rvoc/observability"

// MetricsExtension counts scheduler and session events. Register it with an
// ext.Registry.
type MetricsExtension struct {
	JobReserved    metric.Int64Counter
	JobReclaimed   metric.Int64Counter
	JobCompleted   metric.Int64Counter
	JobFailed      metric.Int64Counter
	JobRemoved     metric.Int64Counter
	JobDelay       metric.Float64Histogram
	SessionCreated metric.Int64Counter
	SessionRotated metric.Int64Counter
	SessionDeleted metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to the noop instruments the
// OTel API returns alongside them.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	delay, _ := meter.Float64Histogram("rvoc.job.delay",
		metric.WithDescription("How late reserved jobs started"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		JobReserved:    counter("rvoc.job.reserved", "Jobs reserved by the poller"),
		JobReclaimed:   counter("rvoc.job.reclaimed", "Stale reservations taken over"),
		JobCompleted:   counter("rvoc.job.completed", "Job runs that succeeded"),
		JobFailed:      counter("rvoc.job.failed", "Job runs whose task returned an error"),
		JobRemoved:     counter("rvoc.job.removed", "Queue rows removed for unknown names"),
		JobDelay:       delay,
		SessionCreated: counter("rvoc.session.created", "Sessions created"),
		SessionRotated: counter("rvoc.session.rotated", "Session ids rotated"),
		SessionDeleted: counter("rvoc.session.deleted", "Sessions removed on logout"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobReserved implements ext.JobReserved.
func (m *MetricsExtension) OnJobReserved(ctx context.Context, j *job.InProgressJob) error {
	kind := metric.WithAttributes(attribute.String("job_kind", j.Kind.String()))
	m.JobReserved.Add(ctx, 1, kind)
	if j.Reclaimed {
		m.JobReclaimed.Add(ctx, 1, kind)
	}
	m.JobDelay.Record(ctx, j.Delay().Seconds(), kind)
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.CompletedJob) error {
	m.JobCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("job_kind", j.Kind.String())))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.CompletedJob, _ error) error {
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("job_kind", j.Kind.String())))
	return nil
}

// OnJobRemoved implements ext.JobRemoved.
func (m *MetricsExtension) OnJobRemoved(ctx context.Context, _ string) error {
	m.JobRemoved.Add(ctx, 1)
	return nil
}

// ── Session lifecycle hooks ─────────────────────────

// OnSessionCreated implements ext.SessionCreated.
func (m *MetricsExtension) OnSessionCreated(ctx context.Context, username string) error {
	m.SessionCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("authenticated", username != "")))
	return nil
}

// OnSessionRotated implements ext.SessionRotated.
func (m *MetricsExtension) OnSessionRotated(ctx context.Context, username string) error {
	m.SessionRotated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("authenticated", username != "")))
	return nil
}

// OnSessionDeleted implements ext.SessionDeleted.
func (m *MetricsExtension) OnSessionDeleted(ctx context.Context) error {
	m.SessionDeleted.Add(ctx, 1)
	return nil
}

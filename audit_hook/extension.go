package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/rvoc/ext"
	"github.com/xraph/rvoc/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Extension)(nil)
	_ ext.JobReserved    = (*Extension)(nil)
	_ ext.JobCompleted   = (*Extension)(nil)
	_ ext.JobFailed      = (*Extension)(nil)
	_ ext.JobRemoved     = (*Extension)(nil)
	_ ext.SessionCreated = (*Extension)(nil)
	_ ext.SessionRotated = (*Extension)(nil)
	_ ext.SessionDeleted = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder writes every event as one log line at a level derived from
// its severity.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("category", evt.Category),
			slog.String("outcome", evt.Outcome),
		}
		if evt.ResourceID != "" {
			attrs = append(attrs, slog.String("resource_id", evt.ResourceID))
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges RVoc lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobReserved implements ext.JobReserved. Taking over an abandoned
// reservation is recorded as a warning.
func (e *Extension) OnJobReserved(ctx context.Context, j *job.InProgressJob) error {
	severity := SeverityInfo
	if j.Reclaimed {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionJobReserved, severity, OutcomeSuccess,
		ResourceJob, j.RunID.String(), CategoryJob, nil,
		"job_kind", j.Kind.String(),
		"delay_ms", j.Delay().Milliseconds(),
		"reclaimed", j.Reclaimed,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.CompletedJob) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.RunID.String(), CategoryJob, nil,
		"job_kind", j.Kind.String(),
		"elapsed_ms", j.Duration().Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.CompletedJob, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.RunID.String(), CategoryJob, jobErr,
		"job_kind", j.Kind.String(),
		"elapsed_ms", j.Duration().Milliseconds(),
	)
}

// OnJobRemoved implements ext.JobRemoved.
func (e *Extension) OnJobRemoved(ctx context.Context, name string) error {
	return e.record(ctx, ActionJobRemoved, SeverityWarning, OutcomeSuccess,
		ResourceJob, name, CategoryJob, nil,
	)
}

// ── Session lifecycle hooks ─────────────────────────

// OnSessionCreated implements ext.SessionCreated.
func (e *Extension) OnSessionCreated(ctx context.Context, username string) error {
	return e.record(ctx, ActionSessionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSession, "", CategorySession, nil,
		"username", username,
	)
}

// OnSessionRotated implements ext.SessionRotated.
func (e *Extension) OnSessionRotated(ctx context.Context, username string) error {
	return e.record(ctx, ActionSessionRotated, SeverityInfo, OutcomeSuccess,
		ResourceSession, "", CategorySession, nil,
		"username", username,
	)
}

// OnSessionDeleted implements ext.SessionDeleted.
func (e *Extension) OnSessionDeleted(ctx context.Context) error {
	return e.record(ctx, ActionSessionDeleted, SeverityInfo, OutcomeSuccess,
		ResourceSession, "", CategorySession, nil,
	)
}

// record builds and sends an audit event if the action is enabled.
// kvPairs is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}

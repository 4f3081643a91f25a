package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/rvoc/job"
)

type entry[H any] struct {
	name string
	hook H
}

// Registry holds extensions and fans events out to those that implement
// the matching hook. Hook caches are built at registration time.
//
// A nil *Registry is valid and drops every event.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobReserved    []entry[JobReserved]
	jobCompleted   []entry[JobCompleted]
	jobFailed      []entry[JobFailed]
	jobRemoved     []entry[JobRemoved]
	sessionCreated []entry[SessionCreated]
	sessionRotated []entry[SessionRotated]
	sessionDeleted []entry[SessionDeleted]
	shutdown       []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration
// order. Register must not be called concurrently with the Emit methods.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobReserved); ok {
		r.jobReserved = append(r.jobReserved, entry[JobReserved]{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, entry[JobCompleted]{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, entry[JobFailed]{name, h})
	}
	if h, ok := e.(JobRemoved); ok {
		r.jobRemoved = append(r.jobRemoved, entry[JobRemoved]{name, h})
	}
	if h, ok := e.(SessionCreated); ok {
		r.sessionCreated = append(r.sessionCreated, entry[SessionCreated]{name, h})
	}
	if h, ok := e.(SessionRotated); ok {
		r.sessionRotated = append(r.sessionRotated, entry[SessionRotated]{name, h})
	}
	if h, ok := e.(SessionDeleted); ok {
		r.sessionDeleted = append(r.sessionDeleted, entry[SessionDeleted]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	if r == nil {
		return nil
	}
	return r.extensions
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobReserved notifies all extensions that implement JobReserved.
func (r *Registry) EmitJobReserved(ctx context.Context, j *job.InProgressJob) {
	if r == nil {
		return
	}
	for _, e := range r.jobReserved {
		if err := e.hook.OnJobReserved(ctx, j); err != nil {
			r.logHookError("OnJobReserved", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.CompletedJob) {
	if r == nil {
		return
	}
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.CompletedJob, jobErr error) {
	if r == nil {
		return
	}
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobRemoved notifies all extensions that implement JobRemoved.
func (r *Registry) EmitJobRemoved(ctx context.Context, name string) {
	if r == nil {
		return
	}
	for _, e := range r.jobRemoved {
		if err := e.hook.OnJobRemoved(ctx, name); err != nil {
			r.logHookError("OnJobRemoved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Session event emitters
// ──────────────────────────────────────────────────

// EmitSessionCreated notifies all extensions that implement SessionCreated.
func (r *Registry) EmitSessionCreated(ctx context.Context, username string) {
	if r == nil {
		return
	}
	for _, e := range r.sessionCreated {
		if err := e.hook.OnSessionCreated(ctx, username); err != nil {
			r.logHookError("OnSessionCreated", e.name, err)
		}
	}
}

// EmitSessionRotated notifies all extensions that implement SessionRotated.
func (r *Registry) EmitSessionRotated(ctx context.Context, username string) {
	if r == nil {
		return
	}
	for _, e := range r.sessionRotated {
		if err := e.hook.OnSessionRotated(ctx, username); err != nil {
			r.logHookError("OnSessionRotated", e.name, err)
		}
	}
}

// EmitSessionDeleted notifies all extensions that implement SessionDeleted.
func (r *Registry) EmitSessionDeleted(ctx context.Context) {
	if r == nil {
		return
	}
	for _, e := range r.sessionDeleted {
		if err := e.hook.OnSessionDeleted(ctx); err != nil {
			r.logHookError("OnSessionDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	if r == nil {
		return
	}
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a hook returns an error. Hook errors
// never propagate.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

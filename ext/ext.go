// Package ext lets extensions observe scheduler and session lifecycle
// events, for metrics, audit logs and the like.
//
// Each hook is its own interface so an extension opts in only to the events
// it cares about:
//
//	type auditExt struct{}
//
//	func (auditExt) Name() string { return "audit" }
//
//	func (auditExt) OnJobFailed(ctx context.Context, j *job.CompletedJob, err error) error {
//	    log.Printf("%s failed after %s: %v", j.Kind, j.Duration(), err)
//	    return nil
//	}
//
// Hook errors are logged by the Registry and never interrupt the caller.
package ext

import (
	"context"

	"github.com/xraph/rvoc/job"
)

// Extension is the base interface all extensions implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job hooks
// ──────────────────────────────────────────────────

// JobReserved is called after the poller reserved a job, before it runs.
type JobReserved interface {
	OnJobReserved(ctx context.Context, j *job.InProgressJob) error
}

// JobCompleted is called after a job ran successfully and was rescheduled.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.CompletedJob) error
}

// JobFailed is called after a job's task returned an error. The job is
// still rescheduled.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.CompletedJob, err error) error
}

// JobRemoved is called when a queue row with an unknown name was deleted.
type JobRemoved interface {
	OnJobRemoved(ctx context.Context, name string) error
}

// ──────────────────────────────────────────────────
// Session hooks
// ──────────────────────────────────────────────────

// SessionCreated is called after a new session was stored. username is
// empty for anonymous sessions.
type SessionCreated interface {
	OnSessionCreated(ctx context.Context, username string) error
}

// SessionRotated is called after a session id was rotated.
type SessionRotated interface {
	OnSessionRotated(ctx context.Context, username string) error
}

// SessionDeleted is called after a logout.
type SessionDeleted interface {
	OnSessionDeleted(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// Shutdown is called once the scheduler has stopped.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

package job

import (
	"time"

	"github.com/xraph/rvoc/id"
)

// Kind names a recurring job. A process knows exactly the kinds in its
// Registry.
type Kind string

// Built-in kinds.
const (
	KindDeleteExpiredSessions Kind = "delete_expired_sessions"
)

func (k Kind) String() string { return string(k) }

// ScheduledJob is one row of the job queue.
type ScheduledJob struct {
	Name                   string    `json:"name"`
	ScheduledExecutionTime time.Time `json:"scheduled_execution_time"`
	InProgress             bool      `json:"in_progress"`
	// ReservedAt is set while InProgress is true.
	ReservedAt *time.Time `json:"reserved_at,omitempty"`
}

// InProgressJob is a reserved job for the duration of one poll tick.
type InProgressJob struct {
	RunID         id.RunID
	Kind          Kind
	ScheduledTime time.Time
	StartTime     time.Time
	// Timeout is copied from the kind's Definition.
	Timeout time.Duration
	// Reclaimed is true when the reservation took over a stale one.
	Reclaimed bool
}

// Delay is how late the job started.
func (j *InProgressJob) Delay() time.Duration {
	return j.StartTime.Sub(j.ScheduledTime)
}

// Finish records the finish time.
func (j *InProgressJob) Finish(at time.Time) *CompletedJob {
	return &CompletedJob{InProgressJob: *j, FinishTime: at}
}

// CompletedJob is an InProgressJob with a finish time.
type CompletedJob struct {
	InProgressJob
	FinishTime time.Time
}

// Duration is how long the task ran.
func (j *CompletedJob) Duration() time.Duration {
	return j.FinishTime.Sub(j.StartTime)
}

// NextScheduledTime derives the next due time from the finish time, so a
// slow run never piles up missed executions.
func (j *CompletedJob) NextScheduledTime(s Schedule) time.Time {
	return s.Next(j.FinishTime)
}

// Package job defines recurring jobs: their kinds, schedules and tasks, the
// ephemeral run records of one poll tick, and the store interface of the
// durable job queue.
//
// # Job Queue
//
// The queue holds exactly one row per registered kind:
//
//	name | scheduled_execution_time | in_progress | reserved_at
//
// A row moves through three states:
//
//	registered (in_progress = false)
//	  → reserved (in_progress = true, reserved_at = start)
//	  → completed (rescheduled, in_progress = false) → registered
//
// Rows whose name is not a registered kind are removed, either during
// startup reconciliation or when the poller runs into one.
//
// # Defining a Job
//
// A [Definition] pairs a [Kind] with a [Schedule] and a [Task]. Tasks close
// over whatever they need:
//
//	def := job.NewDefinition(job.KindDeleteExpiredSessions, job.Every(time.Hour),
//	    func(ctx context.Context) error {
//	        _, err := sessions.DeleteExpiredSessions(ctx, time.Now())
//	        return err
//	    },
//	)
//	registry.MustRegister(def)
package job

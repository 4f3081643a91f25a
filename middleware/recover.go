package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/rvoc/job"
)

// Recover turns a panic in the task into an error so the poller survives
// and the job still gets rescheduled.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.InProgressJob, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job task panicked",
					slog.String("job_kind", j.Kind.String()),
					slog.String("run_id", j.RunID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in job %s: %v", j.Kind, r)
			}
		}()
		return next(ctx)
	}
}

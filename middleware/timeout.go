package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/rvoc/job"
)

// Timeout cancels the task's context after j.Timeout. Tasks are expected
// to honour ctx; a task that ignores it keeps the poller busy.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.InProgressJob, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}
		logger.Debug("job timeout set",
			slog.String("run_id", j.RunID.String()),
			slog.Duration("timeout", j.Timeout),
		)
		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()
		return next(ctx)
	}
}

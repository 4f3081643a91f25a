package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/rvoc/job"
)

// Logging logs the start and the outcome of each run.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.InProgressJob, next Handler) error {
		logger.Info("job started",
			slog.String("job_kind", j.Kind.String()),
			slog.String("run_id", j.RunID.String()),
			slog.Duration("delay", j.Delay()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("job_kind", j.Kind.String()),
				slog.String("run_id", j.RunID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_kind", j.Kind.String()),
				slog.String("run_id", j.RunID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}
		return err
	}
}

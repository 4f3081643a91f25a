package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/rvoc/job"
)

// DeleteExpiredJob returns the definition of the periodic sweep that
// removes expired sessions.
func DeleteExpiredJob(store Store, interval time.Duration, logger *slog.Logger) *job.Definition {
	if logger == nil {
		logger = slog.Default()
	}
	return job.NewDefinition(job.KindDeleteExpiredSessions, job.Every(interval), func(ctx context.Context) error {
		n, err := store.DeleteExpiredSessions(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		logger.Info("deleted expired sessions", slog.Int64("count", n))
		return nil
	})
}

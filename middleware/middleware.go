// Package middleware provides composable wrappers around job task
// execution. The scheduler builds one chain and runs every reserved job
// through it.
//
//	// recover → timeout → logging → task
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Timeout(logger), middleware.Logging(logger))
//
// Middleware are applied right-to-left: the first middleware in the list is
// the outermost wrapper. A middleware must call next unless it
// deliberately short-circuits.
package middleware

import (
	"context"

	"github.com/xraph/rvoc/job"
)

// Handler is the terminal function that runs the job's task.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
type Middleware func(ctx context.Context, j *job.InProgressJob, next Handler) error

// Chain composes multiple middleware into a single Middleware.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.InProgressJob, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

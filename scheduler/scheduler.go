// Package scheduler runs recurring jobs from the persistent job queue.
//
// Every process polls the queue on a fixed interval. A tick reserves the
// earliest due row in a Serializable transaction, runs the kind's task
// outside any transaction, and reschedules the row relative to the finish
// time. Several processes may poll the same database; the conditional
// reservation guarantees a job runs in at most one of them at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/ext"
	"github.com/xraph/rvoc/id"
	"github.com/xraph/rvoc/job"
	"github.com/xraph/rvoc/middleware"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval sets how often the queue is polled.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithDriftMargin sets how late a job may start, on top of the poll
// interval, before a warning is logged.
func WithDriftMargin(d time.Duration) Option {
	return func(s *Scheduler) { s.driftMargin = d }
}

// WithStaleThreshold sets the age after which a reservation counts as
// abandoned and may be taken over. It must exceed the longest job.
func WithStaleThreshold(d time.Duration) Option {
	return func(s *Scheduler) { s.staleThreshold = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMiddleware replaces the default execution chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Scheduler) { s.chain = middleware.Chain(mws...) }
}

// Scheduler polls the job queue and executes due jobs.
type Scheduler struct {
	store    job.Store
	registry *job.Registry
	ext      *ext.Registry
	logger   *slog.Logger

	pollInterval   time.Duration
	driftMargin    time.Duration
	staleThreshold time.Duration
	now            func() time.Time
	chain          middleware.Middleware

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
	runErr error
}

// New creates a Scheduler. extensions may be nil.
func New(store job.Store, registry *job.Registry, extensions *ext.Registry, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:          store,
		registry:       registry,
		ext:            extensions,
		logger:         logger,
		pollInterval:   time.Second,
		driftMargin:    10 * time.Second,
		staleThreshold: 6 * time.Hour,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chain == nil {
		s.chain = middleware.Chain(
			middleware.Recover(logger),
			middleware.Timeout(logger),
			middleware.Logging(logger),
			middleware.Tracing(),
			middleware.Metrics(),
		)
	}
	return s
}

// Reconcile makes the queue hold exactly one row per registered kind.
// Missing kinds are inserted due immediately; rows of unknown kinds are
// deleted.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	res, err := s.store.ReconcileJobs(ctx, s.registry.Kinds(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("scheduler: reconcile: %w", err)
	}
	for _, name := range res.Inserted {
		s.logger.Info("scheduled new job", slog.String("job_name", name))
	}
	for _, name := range res.Deleted {
		s.logger.Warn("deleted unknown scheduled job", slog.String("job_name", name))
		s.ext.EmitJobRemoved(ctx, name)
	}
	return nil
}

// Tick performs one reserve, execute and complete cycle. A failing task
// does not make Tick fail: the failure is logged, reported to extensions
// and the job is rescheduled as usual. Only store errors are returned.
func (s *Scheduler) Tick(ctx context.Context) (job.ReserveOutcome, error) {
	now := s.now().UTC()
	res, err := s.store.ReserveJob(ctx, now, now.Add(-s.staleThreshold), s.registry.Known)
	if err != nil {
		return job.ReserveNone, fmt.Errorf("scheduler: reserve: %w", err)
	}

	switch res.Outcome {
	case job.ReserveNone:
		return res.Outcome, nil
	case job.ReserveRemovedUnknown:
		s.logger.Warn("deleted unknown scheduled job", slog.String("job_name", res.Name))
		s.ext.EmitJobRemoved(ctx, res.Name)
		return res.Outcome, nil
	case job.ReserveBusy:
		s.logger.Warn("job was reserved concurrently", slog.String("job_name", res.Name))
		return res.Outcome, nil
	}

	def, ok := s.registry.Get(job.Kind(res.Name))
	if !ok {
		// The store only reserves names the registry reported as known.
		return res.Outcome, fmt.Errorf("scheduler: %w: %s", rvoc.ErrUnknownJobKind, res.Name)
	}

	ip := &job.InProgressJob{
		RunID:         id.NewRunID(),
		Kind:          def.Kind,
		ScheduledTime: res.ScheduledTime,
		StartTime:     res.StartTime,
		Timeout:       def.Timeout,
		Reclaimed:     res.Reclaimed,
	}
	if ip.Reclaimed {
		s.logger.Warn("reclaimed stale job reservation",
			slog.String("job_kind", ip.Kind.String()),
			slog.Duration("stale_threshold", s.staleThreshold),
		)
	}
	if delay := ip.Delay(); delay > s.pollInterval+s.driftMargin {
		s.logger.Warn("job started late",
			slog.String("job_kind", ip.Kind.String()),
			slog.Duration("delay", delay),
		)
	}

	// Shutdown must not interrupt a reserved job; the task and the
	// completion run to the end.
	runCtx := context.WithoutCancel(ctx)
	s.ext.EmitJobReserved(runCtx, ip)

	taskErr := s.chain(runCtx, ip, middleware.Handler(def.Task))

	done := ip.Finish(s.now().UTC())
	next := done.NextScheduledTime(def.Schedule)
	if now := s.now().UTC(); next.Before(now) {
		s.logger.Warn("next execution time is in the past",
			slog.String("job_kind", ip.Kind.String()),
			slog.Time("next", next),
		)
	}

	if taskErr != nil {
		s.ext.EmitJobFailed(runCtx, done, taskErr)
	} else {
		s.ext.EmitJobCompleted(runCtx, done)
	}

	// The row is only rescheduled while this reservation still owns it.
	err = s.store.CompleteJob(runCtx, res.Name, res.StartTime, next)
	switch {
	case errors.Is(err, rvoc.ErrReservationLost):
		s.logger.Warn("job reservation lost before completion",
			slog.String("job_name", res.Name),
			slog.Time("reserved_at", res.StartTime),
		)
		return res.Outcome, nil
	case err != nil:
		return res.Outcome, fmt.Errorf("scheduler: complete %s: %w", res.Name, err)
	}
	return res.Outcome, nil
}

// Run reconciles the queue and then ticks every poll interval until ctx is
// cancelled. Cancellation is observed between ticks only. Run returns nil
// on cancellation and the reconciliation error otherwise; tick errors are
// logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return err
	}
	return s.poll(ctx)
}

func (s *Scheduler) poll(ctx context.Context) error {
	s.logger.Info("job scheduler running",
		slog.Duration("poll_interval", s.pollInterval),
		slog.Int("kinds", len(s.registry.Kinds())),
	)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job scheduler stopped")
			s.ext.EmitShutdown(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("job queue tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Start reconciles the queue and then polls it in the background. A failed
// reconciliation is returned and nothing is started.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("scheduler: already started")
	}
	if err := s.Reconcile(ctx); err != nil {
		return err
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	stopCh := s.stopCh
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()
	go func() {
		defer close(s.done)
		defer cancel()
		err := s.poll(runCtx)
		if err != nil {
			s.logger.Error("job scheduler exited", slog.String("error", err.Error()))
		}
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
	}()
	return nil
}

// Stop signals the scheduler and waits for the current tick to finish. If
// ctx expires first, Stop returns ctx.Err() and the tick keeps running.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	if done == nil {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	select {
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes kind's task immediately through the execution chain. The
// job queue is not touched.
func (s *Scheduler) RunOnce(ctx context.Context, kind job.Kind) error {
	def, ok := s.registry.Get(kind)
	if !ok {
		return fmt.Errorf("scheduler: %w: %s", rvoc.ErrUnknownJobKind, kind)
	}
	now := s.now().UTC()
	ip := &job.InProgressJob{
		RunID:         id.NewRunID(),
		Kind:          def.Kind,
		ScheduledTime: now,
		StartTime:     now,
		Timeout:       def.Timeout,
	}
	return s.chain(ctx, ip, middleware.Handler(def.Task))
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/account"
	"github.com/xraph/rvoc/api"
	"github.com/xraph/rvoc/ext"
	"github.com/xraph/rvoc/job"
	mw "github.com/xraph/rvoc/middleware"
	"github.com/xraph/rvoc/observability"
	"github.com/xraph/rvoc/password"
	"github.com/xraph/rvoc/scheduler"
	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/store"
)

const instrumentationName = "github.com/xraph/rvoc"

// Engine holds the assembled subsystems.
type Engine struct {
	store      store.Store
	config     rvoc.Config
	logger     *slog.Logger
	extensions *ext.Registry
	registry   *job.Registry
	mws        []mw.Middleware
	jobs       []*job.Definition

	sessionStore session.Store
	sessions     *session.Manager
	accounts     *account.Service
	scheduler    *scheduler.Scheduler
	schedOpts    []scheduler.Option

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware to the job execution chain, inside the
// default wrappers.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithJob registers an additional job kind next to the built-in sweep.
func WithJob(def *job.Definition) Option {
	return func(eng *Engine) {
		eng.jobs = append(eng.jobs, def)
	}
}

// WithSessionStore replaces the session part of the store, typically with
// a cache decorating it.
func WithSessionStore(s session.Store) Option {
	return func(eng *Engine) {
		eng.sessionStore = s
	}
}

// WithSchedulerOptions passes extra options to the scheduler after the
// ones derived from the config.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(eng *Engine) {
		eng.schedOpts = append(eng.schedOpts, opts...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for job execution.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. Both the metrics
// middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build assembles an Engine on top of s.
func Build(s store.Store, config rvoc.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, rvoc.ErrNoStore
	}
	if logger == nil {
		logger = slog.Default()
	}

	eng := &Engine{
		store:        s,
		config:       config,
		logger:       logger,
		extensions:   ext.NewRegistry(logger),
		registry:     job.NewRegistry(),
		sessionStore: s,
	}
	for _, opt := range opts {
		opt(eng)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware and the observability extension (custom
	// provider or global).
	var (
		metricsMw mw.Middleware
		obsExt    *observability.MetricsExtension
	)
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default chain: recover → timeout → logging → tracing → metrics → user.
	chain := []mw.Middleware{
		mw.Recover(logger),
		mw.Timeout(logger),
		mw.Logging(logger),
		tracingMw,
		metricsMw,
	}
	chain = append(chain, eng.mws...)

	if err := eng.registry.Register(session.DeleteExpiredJob(eng.sessionStore, config.Jobs.DeleteExpiredSessionsInterval, logger)); err != nil {
		return nil, err
	}
	for _, def := range eng.jobs {
		if err := eng.registry.Register(def); err != nil {
			return nil, fmt.Errorf("register job %s: %w", def.Kind, err)
		}
	}

	schedOpts := []scheduler.Option{
		scheduler.WithPollInterval(config.Jobs.PollInterval),
		scheduler.WithDriftMargin(config.Jobs.DriftMargin),
		scheduler.WithStaleThreshold(config.Jobs.StaleThreshold),
		scheduler.WithMiddleware(chain...),
	}
	schedOpts = append(schedOpts, eng.schedOpts...)
	eng.scheduler = scheduler.New(s, eng.registry, eng.extensions, logger, schedOpts...)

	eng.sessions = session.NewManager(eng.sessionStore, logger,
		session.WithIDLength(config.Sessions.IDLength),
		session.WithMaxIDRetries(config.Sessions.MaxIDRetries),
		session.WithTTL(config.Sessions.TTL),
		session.WithExtensions(eng.extensions),
	)
	eng.accounts = account.NewService(s, password.FromConfig(config.Passwords), config, logger,
		account.WithSessions(eng.sessions),
	)

	return eng, nil
}

// Start refuses to run against a schema with pending migrations, then
// starts the scheduler in the background.
func (eng *Engine) Start(ctx context.Context) error {
	pending, err := eng.store.PendingMigrations(ctx)
	if err != nil {
		return fmt.Errorf("check migrations: %w", err)
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: %v", rvoc.ErrPendingMigration, pending)
	}
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	return nil
}

// Stop waits for the in-flight job, if any, and stops the scheduler. The
// store stays open; its owner closes it.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Handler returns the HTTP API.
func (eng *Engine) Handler() http.Handler {
	return api.New(eng.accounts, eng.sessions, eng.store, eng.store, eng.config, api.WithLogger(eng.logger)).Handler()
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Scheduler returns the job scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.scheduler }

// Sessions returns the session manager.
func (eng *Engine) Sessions() *session.Manager { return eng.sessions }

// Accounts returns the account service.
func (eng *Engine) Accounts() *account.Service { return eng.accounts }

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }

package txn

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the OTel scope for transaction spans and metrics.
const instrumentationName = "github.com/xraph/rvoc/txn"

// Beginner opens transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Level is a transaction isolation level. The zero value is Serializable.
type Level uint8

const (
	Serializable Level = iota
	RepeatableRead
	ReadCommitted
)

func (l Level) String() string {
	switch l {
	case RepeatableRead:
		return "repeatable_read"
	case ReadCommitted:
		return "read_committed"
	default:
		return "serializable"
	}
}

func (l Level) pgx() pgx.TxIsoLevel {
	switch l {
	case RepeatableRead:
		return pgx.RepeatableRead
	case ReadCommitted:
		return pgx.ReadCommitted
	default:
		return pgx.Serializable
	}
}

// Func is a unit of work. It is invoked once per attempt with a fresh
// transaction; everything it did in an aborted attempt is rolled back.
type Func[T any] func(ctx context.Context, tx pgx.Tx) (T, error)

// Executor runs units of work with retry on serialization failures.
// It holds no locks and is safe for concurrent use.
type Executor struct {
	db         Beginner
	logger     *slog.Logger
	maxRetries int
	delay      RetryDelay
	tracer     trace.Tracer
	meter      metric.Meter

	attempts metric.Int64Counter
	retries  metric.Int64Counter
	failures metric.Int64Counter
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMaxRetries sets the default retry budget. Each call may override it
// with WithRetryLimit.
func WithMaxRetries(n int) Option {
	return func(e *Executor) { e.maxRetries = n }
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d RetryDelay) Option {
	return func(e *Executor) { e.delay = d }
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithMeter sets the meter. Defaults to the global provider.
func WithMeter(m metric.Meter) Option {
	return func(e *Executor) { e.meter = m }
}

// NewExecutor creates an Executor on top of db.
func NewExecutor(db Beginner, opts ...Option) *Executor {
	e := &Executor{
		db:         db,
		logger:     slog.Default(),
		maxRetries: 10,
		delay:      DefaultRetryDelay(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}
	if e.meter == nil {
		e.meter = otel.Meter(instrumentationName)
	}

	// The OTel API hands back noop instruments on error.
	e.attempts, _ = e.meter.Int64Counter("rvoc.txn.attempts",
		metric.WithDescription("Transaction attempts, including retries"),
		metric.WithUnit("{attempt}"))
	e.retries, _ = e.meter.Int64Counter("rvoc.txn.retries",
		metric.WithDescription("Attempts repeated after a serialization failure"),
		metric.WithUnit("{attempt}"))
	e.failures, _ = e.meter.Int64Counter("rvoc.txn.failures",
		metric.WithDescription("Executions that ended in an error, by kind"),
		metric.WithUnit("{execution}"))

	return e
}

// MaxRetries returns the default retry budget.
func (e *Executor) MaxRetries() int { return e.maxRetries }

// CallOption configures a single Execute call.
type CallOption func(*call)

type call struct {
	op       string
	level    Level
	retries  int
	readOnly bool
}

// WithOp names the operation in logs, spans and errors.
func WithOp(name string) CallOption {
	return func(c *call) { c.op = name }
}

// WithLevel selects the isolation level. Serializable is the default;
// ReadCommitted suits sweeps that tolerate races.
func WithLevel(l Level) CallOption {
	return func(c *call) { c.level = l }
}

// WithRetryLimit overrides the executor's retry budget for one call.
func WithRetryLimit(n int) CallOption {
	return func(c *call) { c.retries = n }
}

// ReadOnly opens the transaction in read-only mode.
func ReadOnly() CallOption {
	return func(c *call) { c.readOnly = true }
}

// Execute runs fn inside a transaction and commits it.
//
// A Temporary error from fn, or a serialization failure reported by
// PostgreSQL anywhere in the attempt, rolls back and reruns fn. After
// maxRetries+1 attempts the result is a KindRetryLimitReached error.
// NotFound and IDCollision roll back and are returned unchanged. Anything
// else rolls back and is returned as KindPermanent. Failing to open a
// transaction is KindConnectionFailure and is never retried.
func Execute[T any](ctx context.Context, e *Executor, fn Func[T], opts ...CallOption) (T, error) {
	c := call{level: Serializable, retries: e.maxRetries}
	for _, opt := range opts {
		opt(&c)
	}
	if c.retries < 0 {
		c.retries = 0
	}

	ctx, span := e.tracer.Start(ctx, "rvoc.txn.execute",
		trace.WithAttributes(
			attribute.String("rvoc.txn.op", c.op),
			attribute.String("rvoc.txn.isolation", c.level.String()),
			attribute.Int("rvoc.txn.max_retries", c.retries),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	v, attempts, err := run(ctx, e, fn, c)

	span.SetAttributes(attribute.Int("rvoc.txn.attempts", attempts))
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("rvoc.txn.outcome", kind.String()))
		e.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", c.op),
			attribute.String("kind", kind.String()),
		))
		switch kind {
		case KindNotFound, KindIDCollision:
			// Expected outcomes of concurrent activity.
			span.SetStatus(codes.Ok, "")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return v, err
	}

	span.SetAttributes(attribute.String("rvoc.txn.outcome", "success"))
	span.SetStatus(codes.Ok, "")
	return v, nil
}

// Exec is Execute for units of work without a result.
func (e *Executor) Exec(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error, opts ...CallOption) error {
	_, err := Execute(ctx, e, func(ctx context.Context, tx pgx.Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, tx)
	}, opts...)
	return err
}

func run[T any](ctx context.Context, e *Executor, fn Func[T], c call) (T, int, error) {
	var zero T
	var last error
	attrs := metric.WithAttributes(attribute.String("op", c.op))

	for attempt := 1; attempt <= c.retries+1; attempt++ {
		if attempt > 1 {
			if err := e.pause(ctx, attempt-1); err != nil {
				return zero, attempt - 1, &Error{Kind: KindPermanent, Op: c.op, Err: err}
			}
			e.retries.Add(ctx, 1, attrs)
		}
		e.attempts.Add(ctx, 1, attrs)

		v, err := once(ctx, e, fn, c)
		if err == nil {
			return v, attempt, nil
		}
		if KindOf(err) != KindTemporary {
			return zero, attempt, err
		}

		last = err
		e.logger.Debug("transaction conflict, retrying",
			slog.String("op", c.op),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.retries),
			slog.String("error", err.Error()),
		)
	}

	e.logger.Warn("transaction retry limit reached",
		slog.String("op", c.op),
		slog.Int("max_retries", c.retries),
	)
	return zero, c.retries + 1, &Error{Kind: KindRetryLimitReached, Op: c.op, Limit: c.retries, Err: cause(last)}
}

func once[T any](ctx context.Context, e *Executor, fn Func[T], c call) (T, error) {
	var zero T

	opts := pgx.TxOptions{IsoLevel: c.level.pgx()}
	if c.readOnly {
		opts.AccessMode = pgx.ReadOnly
	}
	tx, err := e.db.BeginTx(ctx, opts)
	if err != nil {
		return zero, &Error{Kind: KindConnectionFailure, Op: c.op, Err: err}
	}

	v, err := fn(ctx, tx)
	if err != nil {
		e.rollback(ctx, tx, c.op)
		return zero, classify(c.op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		if IsSerializationFailure(err) {
			return zero, &Error{Kind: KindTemporary, Op: c.op, Err: err}
		}
		return zero, &Error{Kind: KindPermanent, Op: c.op, Err: err}
	}
	return v, nil
}

// rollback must run even when ctx is already cancelled so the connection
// goes back to the pool clean.
func (e *Executor) rollback(ctx context.Context, tx pgx.Tx, op string) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		e.logger.Debug("transaction rollback failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) pause(ctx context.Context, retry int) error {
	d := e.delay.Delay(retry)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func classify(op string, err error) error {
	var te *Error
	if errors.As(err, &te) {
		if te == err && te.Op == "" {
			tagged := *te
			tagged.Op = op
			return &tagged
		}
		return err
	}
	if IsSerializationFailure(err) {
		return &Error{Kind: KindTemporary, Op: op, Err: err}
	}
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// cause strips the Temporary wrapper so a RetryLimitReached error carries
// the last underlying conflict.
func cause(err error) error {
	var te *Error
	if errors.As(err, &te) && te.Kind == KindTemporary && te.Err != nil {
		return te.Err
	}
	return err
}

package txn

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a failed unit of work. The set is closed; callers may
// switch over it exhaustively.
type Kind uint8

const (
	// KindPermanent is a caller or data bug. It is returned as is.
	KindPermanent Kind = iota + 1
	// KindTemporary is a transient conflict. It is absorbed by Execute
	// and never reaches a caller.
	KindTemporary
	// KindNotFound means the row an operation depends on does not exist.
	KindNotFound
	// KindIDCollision means a freshly generated key already exists.
	KindIDCollision
	// KindRetryLimitReached means every attempt hit a transient conflict.
	KindRetryLimitReached
	// KindConnectionFailure means no transaction could be opened.
	KindConnectionFailure
)

func (k Kind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindTemporary:
		return "temporary"
	case KindNotFound:
		return "not_found"
	case KindIDCollision:
		return "id_collision"
	case KindRetryLimitReached:
		return "retry_limit_reached"
	case KindConnectionFailure:
		return "connection_failure"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is the error type returned by Execute.
type Error struct {
	Kind Kind
	// Op names the operation, e.g. "session.create".
	Op string
	// Limit is the retry budget. Only set for KindRetryLimitReached.
	Limit int
	Err   error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrPermanent         = &Error{Kind: KindPermanent}
	ErrTemporary         = &Error{Kind: KindTemporary}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrIDCollision       = &Error{Kind: KindIDCollision}
	ErrRetryLimitReached = &Error{Kind: KindRetryLimitReached}
	ErrConnectionFailure = &Error{Kind: KindConnectionFailure}
)

func (e *Error) Error() string {
	msg := "txn"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	msg += ": " + e.Kind.String()
	if e.Kind == KindRetryLimitReached {
		msg += fmt.Sprintf(" after %d retries", e.Limit)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Temporary marks err as retryable.
func Temporary(err error) error { return &Error{Kind: KindTemporary, Err: err} }

// Permanent marks err as not retryable.
func Permanent(err error) error { return &Error{Kind: KindPermanent, Err: err} }

// NotFound reports that the row an operation depends on is missing. The
// transaction is rolled back and the error is returned unchanged.
func NotFound(err error) error { return &Error{Kind: KindNotFound, Err: err} }

// IDCollision reports that a generated key is already taken. The
// transaction is rolled back and the error is returned unchanged.
func IDCollision(err error) error { return &Error{Kind: KindIDCollision, Err: err} }

// KindOf returns the kind of err. Errors that carry no *Error and no
// retryable SQLSTATE are permanent. KindOf(nil) is zero.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if IsSerializationFailure(err) {
		return KindTemporary
	}
	return KindPermanent
}

// PostgreSQL SQLSTATE codes the engine cares about.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// IsSerializationFailure reports whether err carries a SQLSTATE that
// PostgreSQL documents as safe to retry: serialization_failure or
// deadlock_detected.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

// IsUniqueViolation reports whether err is a unique_violation on the given
// constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation &&
			(constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}

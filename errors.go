package rvoc

import "errors"

var (
	// Store errors.
	ErrNoStore          = errors.New("rvoc: no store configured")
	ErrPendingMigration = errors.New("rvoc: database has pending migrations")
	ErrMigrationFailed  = errors.New("rvoc: migration failed")

	// Account errors.
	ErrUserNotFound       = errors.New("rvoc: user not found")
	ErrUsernameTaken      = errors.New("rvoc: username already taken")
	ErrInvalidUsername    = errors.New("rvoc: invalid username")
	ErrInvalidPassword    = errors.New("rvoc: invalid password")
	ErrInvalidCredentials = errors.New("rvoc: invalid username or password")
	ErrLoginRateLimited   = errors.New("rvoc: login rate limit reached")

	// Session errors.
	ErrNotAuthenticated   = errors.New("rvoc: not authenticated")
	ErrSessionIDExhausted = errors.New("rvoc: could not generate a unique session id")

	// Job errors.
	ErrUnknownJobKind  = errors.New("rvoc: unknown job kind")
	ErrDuplicateJob    = errors.New("rvoc: job kind already registered")
	ErrReservationLost = errors.New("rvoc: job reservation lost")

	// Config errors.
	ErrInvalidConfig = errors.New("rvoc: invalid configuration")
)

// Package account implements user signup, login and password management.
//
// Login is rate limited per user inside the database: every attempt is
// counted in the same transaction that verifies the password, and the
// counters are committed even when the password is wrong.
package account

import (
	"context"
	"time"
)

// User is a stored account.
type User struct {
	Name string
	// PasswordHash is empty when the password was expired.
	PasswordHash string
	CreatedAt    time.Time
}

// LoginInfo is the per-user state consulted and updated by a login.
type LoginInfo struct {
	Name         string
	PasswordHash string

	Attempts       int
	FailedAttempts int
	// ResetAt is when the counting window ends.
	ResetAt time.Time
}

// Limits bound login attempts per counting window.
type Limits struct {
	MaxAttempts       int
	MaxFailedAttempts int
	Interval          time.Duration
}

// TryAttempt counts a login attempt if the window allows one. The window
// starts with the first attempt after a reset.
func (l *LoginInfo) TryAttempt(now time.Time, lim Limits) bool {
	if !now.Before(l.ResetAt) {
		l.Attempts = 0
		l.FailedAttempts = 0
	} else if l.Attempts >= lim.MaxAttempts || l.FailedAttempts >= lim.MaxFailedAttempts {
		return false
	}
	if l.Attempts == 0 && l.FailedAttempts == 0 {
		l.ResetAt = now.Add(lim.Interval)
	}
	l.Attempts++
	return true
}

// FailAttempt records that the counted attempt had a wrong password.
func (l *LoginInfo) FailAttempt() {
	l.FailedAttempts++
}

// Store persists accounts.
type Store interface {
	// CreateUser inserts a user. An existing name yields
	// rvoc.ErrUsernameTaken.
	CreateUser(ctx context.Context, name, passwordHash string, now time.Time) error

	// GetUser returns the user or rvoc.ErrUserNotFound.
	GetUser(ctx context.Context, name string) (*User, error)

	// UpdateLoginInfo loads the user's login info in a Serializable
	// transaction, passes it to fn and writes back the counters and the
	// password hash before committing, whatever fn returns. fn's error is
	// returned after the commit. fn may run more than once. A missing user
	// yields rvoc.ErrUserNotFound without calling fn.
	UpdateLoginInfo(ctx context.Context, name string, fn func(*LoginInfo) error) error

	// SetPasswordHash replaces the hash. A missing user yields
	// rvoc.ErrUserNotFound.
	SetPasswordHash(ctx context.Context, name, passwordHash string) error

	// ExpireAllPasswords clears every password hash and reports how many
	// users were affected.
	ExpireAllPasswords(ctx context.Context) (int64, error)

	// DeleteUser removes the user together with their sessions. A missing
	// user yields rvoc.ErrUserNotFound.
	DeleteUser(ctx context.Context, name string) error
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/account"
	"github.com/xraph/rvoc/txn"
)

var _ account.Store = (*Store)(nil)

// nullableHash maps an expired password to NULL.
func nullableHash(h string) *string {
	if h == "" {
		return nil
	}
	return &h
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// CreateUser implements account.Store.
func (s *Store) CreateUser(ctx context.Context, name, passwordHash string, now time.Time) error {
	return s.exec.Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (name, password_hash, next_login_attempt_count_reset, created_at)
			VALUES ($1, $2, $3, $3)`,
			name, nullableHash(passwordHash), now,
		)
		if txn.IsUniqueViolation(err, "users_pkey") {
			return rvoc.ErrUsernameTaken
		}
		return err
	}, txn.WithOp("create user"))
}

// GetUser implements account.Store.
func (s *Store) GetUser(ctx context.Context, name string) (*account.User, error) {
	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) (*account.User, error) {
		var (
			u    = &account.User{Name: name}
			hash *string
		)
		err := tx.QueryRow(ctx,
			`SELECT password_hash, created_at FROM users WHERE name = $1`, name,
		).Scan(&hash, &u.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rvoc.ErrUserNotFound
		}
		if err != nil {
			return nil, err
		}
		u.PasswordHash = deref(hash)
		return u, nil
	}, txn.WithOp("get user"), txn.ReadOnly())
}

// errDeferred carries fn's error out of a committed transaction.
type errDeferred struct{ err error }

// UpdateLoginInfo implements account.Store.
func (s *Store) UpdateLoginInfo(ctx context.Context, name string, fn func(*account.LoginInfo) error) error {
	res, err := txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) (errDeferred, error) {
		info := account.LoginInfo{Name: name}
		var hash *string
		err := tx.QueryRow(ctx, `
			SELECT password_hash, login_attempt_count, failed_login_attempt_count, next_login_attempt_count_reset
			FROM users WHERE name = $1`,
			name,
		).Scan(&hash, &info.Attempts, &info.FailedAttempts, &info.ResetAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return errDeferred{}, rvoc.ErrUserNotFound
		}
		if err != nil {
			return errDeferred{}, err
		}
		info.PasswordHash = deref(hash)

		fnErr := fn(&info)

		_, err = tx.Exec(ctx, `
			UPDATE users
			SET password_hash = $2,
			    login_attempt_count = $3,
			    failed_login_attempt_count = $4,
			    next_login_attempt_count_reset = $5
			WHERE name = $1`,
			name, nullableHash(info.PasswordHash), info.Attempts, info.FailedAttempts, info.ResetAt,
		)
		return errDeferred{err: fnErr}, err
	}, txn.WithOp("login"))
	if err != nil {
		return err
	}
	return res.err
}

// SetPasswordHash implements account.Store.
func (s *Store) SetPasswordHash(ctx context.Context, name, passwordHash string) error {
	return s.exec.Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET password_hash = $2 WHERE name = $1`,
			name, nullableHash(passwordHash),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return rvoc.ErrUserNotFound
		}
		return nil
	}, txn.WithOp("set password"))
}

// ExpireAllPasswords implements account.Store.
func (s *Store) ExpireAllPasswords(ctx context.Context) (int64, error) {
	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) (int64, error) {
		tag, err := tx.Exec(ctx, `UPDATE users SET password_hash = NULL`)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}, txn.WithOp("expire all passwords"))
}

// DeleteUser implements account.Store. Sessions go with the user through
// ON DELETE CASCADE.
func (s *Store) DeleteUser(ctx context.Context, name string) error {
	return s.exec.Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return rvoc.ErrUserNotFound
		}
		return nil
	}, txn.WithOp("delete user"))
}

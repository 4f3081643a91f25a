package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/txn"
)

var _ session.Store = (*Store)(nil)

// sessionsPkey is the constraint whose violation is an id collision.
const sessionsPkey = "sessions_pkey"

// username maps an anonymous principal to NULL.
func username(d session.Data) *string {
	if d.Anonymous() {
		return nil
	}
	return &d.Username
}

func insertSession(ctx context.Context, tx pgx.Tx, id session.ID, expiry time.Time, data session.Data) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, expiry, username) VALUES ($1, $2, $3)`,
		[]byte(id), expiry, username(data),
	)
	if txn.IsUniqueViolation(err, sessionsPkey) {
		return txn.IDCollision(err)
	}
	return err
}

// writeResult folds the collision and not-found kinds into WriteResult.
func writeResult(err error) (session.WriteResult, error) {
	switch {
	case err == nil:
		return session.WriteOK, nil
	case errors.Is(err, txn.ErrIDCollision):
		return session.WriteIDCollision, nil
	case errors.Is(err, txn.ErrNotFound):
		return session.WriteNotFound, nil
	default:
		return session.WriteOK, err
	}
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(ctx context.Context, id session.ID, expiry time.Time, data session.Data) (session.WriteResult, error) {
	err := s.exec.Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return insertSession(ctx, tx, id, expiry, data)
	}, txn.WithOp("create session"))
	return writeResult(err)
}

// ReadSession implements session.Store.
func (s *Store) ReadSession(ctx context.Context, id session.ID) (*session.Record, error) {
	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) (*session.Record, error) {
		var (
			expiry time.Time
			name   *string
		)
		err := tx.QueryRow(ctx,
			`SELECT expiry, username FROM sessions WHERE id = $1`, []byte(id),
		).Scan(&expiry, &name)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		rec := &session.Record{ID: id, Expiry: expiry.UTC()}
		if name != nil {
			rec.Data.Username = *name
		}
		return rec, nil
	}, txn.WithOp("read session"), txn.ReadOnly())
}

// UpdateSession implements session.Store. The previous row is deleted and
// the current one inserted; both ids may be equal.
func (s *Store) UpdateSession(ctx context.Context, current, previous session.ID, expiry time.Time, data session.Data) (session.WriteResult, error) {
	err := s.exec.Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, []byte(previous))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return txn.NotFound(nil)
		}
		return insertSession(ctx, tx, current, expiry, data)
	}, txn.WithOp("update session"))
	return writeResult(err)
}

// DeleteSession implements session.Store.
func (s *Store) DeleteSession(ctx context.Context, id session.ID) error {
	return s.exec.Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, []byte(id))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			s.logger.Debug("deleted session did not exist")
		}
		return nil
	}, txn.WithOp("delete session"))
}

// ClearSessions implements session.Store.
func (s *Store) ClearSessions(ctx context.Context) error {
	return s.exec.Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM sessions`)
		return err
	}, txn.WithOp("clear sessions"))
}

// DeleteExpiredSessions implements session.Store. It runs at Read-Committed:
// racing with a refresh can only remove a row that had already expired.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) (int64, error) {
		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE expiry < $1`, now)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}, txn.WithOp("delete expired sessions"), txn.WithLevel(txn.ReadCommitted))
}

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/rvoc/txn"
	"github.com/xraph/rvoc/vocab"
)

var _ vocab.Store = (*Store)(nil)

// ListLanguages implements vocab.Store.
func (s *Store) ListLanguages(ctx context.Context) ([]vocab.Language, error) {
	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) ([]vocab.Language, error) {
		rows, err := tx.Query(ctx, `SELECT id, english_name FROM languages ORDER BY id`)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowToStructByPos[vocab.Language])
	}, txn.WithOp("list languages"), txn.WithLevel(txn.ReadCommitted), txn.ReadOnly())
}

// ListWordTypes implements vocab.Store.
func (s *Store) ListWordTypes(ctx context.Context) ([]vocab.WordType, error) {
	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) ([]vocab.WordType, error) {
		rows, err := tx.Query(ctx, `SELECT id, english_name FROM word_types ORDER BY id`)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowToStructByPos[vocab.WordType])
	}, txn.WithOp("list word types"), txn.WithLevel(txn.ReadCommitted), txn.ReadOnly())
}

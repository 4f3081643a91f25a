// Package txn runs units of work inside PostgreSQL transactions and retries
// them when the database reports a serialization conflict.
//
// Every consumer in rvoc (the job scheduler, the session store, accounts)
// expresses its mutual exclusion as a transaction run through an Executor
// instead of an in-process lock:
//
//	exec := txn.NewExecutor(pool, txn.WithMaxRetries(cfg.Database.MaxTransactionRetries))
//	n, err := txn.Execute(ctx, exec, func(ctx context.Context, tx pgx.Tx) (int64, error) {
//	    tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE expiry < $1`, now)
//	    return tag.RowsAffected(), err
//	}, txn.WithLevel(txn.ReadCommitted), txn.WithOp("session.delete_expired"))
//
// Failures are classified into a closed set of kinds (see Kind). Temporary
// failures never escape Execute; NotFound and IDCollision are ordinary
// outcomes of concurrent activity; the rest are hard failures.
package txn

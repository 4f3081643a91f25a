package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/job"
	"github.com/xraph/rvoc/txn"
)

var _ job.Store = (*Store)(nil)

// ReconcileJobs implements job.Store.
func (s *Store) ReconcileJobs(ctx context.Context, kinds []job.Kind, now time.Time) (job.ReconcileResult, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}

	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) (job.ReconcileResult, error) {
		var res job.ReconcileResult

		rows, err := tx.Query(ctx, `
			INSERT INTO job_queue (name, scheduled_execution_time)
			SELECT unnest($1::text[]), $2
			ON CONFLICT (name) DO NOTHING
			RETURNING name`,
			names, now,
		)
		if err != nil {
			return res, err
		}
		if res.Inserted, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
			return res, err
		}

		rows, err = tx.Query(ctx, `
			DELETE FROM job_queue
			WHERE NOT (name = ANY($1::text[]))
			RETURNING name`,
			names,
		)
		if err != nil {
			return res, err
		}
		res.Deleted, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return res, err
	}, txn.WithOp("reconcile jobs"))
}

// ReserveJob implements job.Store.
func (s *Store) ReserveJob(ctx context.Context, now, staleBefore time.Time, known func(string) bool) (job.Reservation, error) {
	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) (job.Reservation, error) {
		var (
			name       string
			scheduled  time.Time
			inProgress bool
		)
		err := tx.QueryRow(ctx, `
			SELECT name, scheduled_execution_time, in_progress
			FROM job_queue
			WHERE scheduled_execution_time <= $1
			  AND (in_progress = FALSE OR reserved_at < $2)
			ORDER BY scheduled_execution_time, name
			LIMIT 1`,
			now, staleBefore,
		).Scan(&name, &scheduled, &inProgress)
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Reservation{Outcome: job.ReserveNone}, nil
		}
		if err != nil {
			return job.Reservation{}, err
		}

		if !known(name) {
			if _, err := tx.Exec(ctx, `DELETE FROM job_queue WHERE name = $1`, name); err != nil {
				return job.Reservation{}, err
			}
			return job.Reservation{Outcome: job.ReserveRemovedUnknown, Name: name}, nil
		}

		var reservedAt time.Time
		err = tx.QueryRow(ctx, `
			UPDATE job_queue
			SET in_progress = TRUE, reserved_at = $2
			WHERE name = $1
			  AND (in_progress = FALSE OR reserved_at < $3)
			RETURNING reserved_at`,
			name, now, staleBefore,
		).Scan(&reservedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Reservation{Outcome: job.ReserveBusy, Name: name}, nil
		}
		if err != nil {
			return job.Reservation{}, err
		}

		return job.Reservation{
			Outcome:       job.ReserveOK,
			Name:          name,
			ScheduledTime: scheduled,
			StartTime:     reservedAt.UTC(),
			Reclaimed:     inProgress,
		}, nil
	}, txn.WithOp("reserve job"))
}

// CompleteJob implements job.Store.
func (s *Store) CompleteJob(ctx context.Context, name string, reservedAt, next time.Time) error {
	return s.exec.Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE job_queue
			SET scheduled_execution_time = $2, in_progress = FALSE, reserved_at = NULL
			WHERE name = $1 AND in_progress AND reserved_at = $3`,
			name, next, reservedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return txn.NotFound(fmt.Errorf("%w: %s", rvoc.ErrReservationLost, name))
		}
		return nil
	}, txn.WithOp("complete job"))
}

// ListJobs implements job.Store.
func (s *Store) ListJobs(ctx context.Context) ([]*job.ScheduledJob, error) {
	return txn.Execute(ctx, s.exec, func(ctx context.Context, tx pgx.Tx) ([]*job.ScheduledJob, error) {
		rows, err := tx.Query(ctx, `
			SELECT name, scheduled_execution_time, in_progress, reserved_at
			FROM job_queue
			ORDER BY scheduled_execution_time, name`)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*job.ScheduledJob, error) {
			j := &job.ScheduledJob{}
			err := row.Scan(&j.Name, &j.ScheduledExecutionTime, &j.InProgress, &j.ReservedAt)
			return j, err
		})
	}, txn.WithOp("list jobs"), txn.WithLevel(txn.ReadCommitted), txn.ReadOnly())
}

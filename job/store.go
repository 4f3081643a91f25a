package job

import (
	"context"
	"time"
)

// ReconcileResult lists the rows changed by ReconcileJobs.
type ReconcileResult struct {
	Inserted []string
	Deleted  []string
}

// ReserveOutcome tells the poller what ReserveJob did.
type ReserveOutcome uint8

const (
	// ReserveNone means no job is due.
	ReserveNone ReserveOutcome = iota
	// ReserveOK means a job was reserved.
	ReserveOK
	// ReserveRemovedUnknown means the earliest due row had an unknown
	// name and was deleted. Nothing was reserved.
	ReserveRemovedUnknown
	// ReserveBusy means the earliest due row was already in progress
	// when the conditional update ran. Nothing was reserved.
	ReserveBusy
)

func (o ReserveOutcome) String() string {
	switch o {
	case ReserveOK:
		return "reserved"
	case ReserveRemovedUnknown:
		return "removed_unknown"
	case ReserveBusy:
		return "busy"
	default:
		return "none"
	}
}

// Reservation is the result of ReserveJob.
type Reservation struct {
	Outcome ReserveOutcome
	// Name is set for every outcome except ReserveNone.
	Name          string
	ScheduledTime time.Time
	// StartTime is the reservation instant as stored. It identifies the
	// reservation to CompleteJob.
	StartTime time.Time
	Reclaimed bool
}

// Store persists the job queue. Every method runs as one retried
// transaction.
type Store interface {
	// ReconcileJobs inserts a row due at now for each kind that has none
	// and deletes every row whose name is not in kinds.
	ReconcileJobs(ctx context.Context, kinds []Kind, now time.Time) (ReconcileResult, error)

	// ReserveJob reserves the due row with the earliest scheduled time.
	// Rows in progress are only eligible when reserved before staleBefore.
	// known decides whether a row name is a registered kind; unknown rows
	// are deleted instead of reserved.
	ReserveJob(ctx context.Context, now, staleBefore time.Time, known func(name string) bool) (Reservation, error)

	// CompleteJob reschedules a reserved row and clears in_progress. It only
	// applies while the row is still held by the reservation made at
	// reservedAt; otherwise it changes nothing and returns a txn NotFound
	// error wrapping rvoc.ErrReservationLost.
	CompleteJob(ctx context.Context, name string, reservedAt, next time.Time) error

	// ListJobs returns all rows ordered by scheduled time.
	ListJobs(ctx context.Context) ([]*ScheduledJob, error)
}

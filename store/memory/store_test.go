package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/account"
	"github.com/xraph/rvoc/job"
	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/store/memory"
	"github.com/xraph/rvoc/txn"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func knownAll(string) bool { return true }

func TestReserveJob(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if _, err := s.ReconcileJobs(ctx, []job.Kind{"b", "a"}, t0); err != nil {
		t.Fatalf("ReconcileJobs: %v", err)
	}

	r, err := s.ReserveJob(ctx, t0.Add(-time.Second), t0.Add(-time.Hour), knownAll)
	if err != nil {
		t.Fatalf("ReserveJob: %v", err)
	}
	if r.Outcome != job.ReserveNone {
		t.Fatalf("outcome before due = %v, want none", r.Outcome)
	}

	r, err = s.ReserveJob(ctx, t0, t0.Add(-time.Hour), knownAll)
	if err != nil {
		t.Fatalf("ReserveJob: %v", err)
	}
	if r.Outcome != job.ReserveOK || r.Name != "a" {
		t.Fatalf("reservation = %+v, want a reserved", r)
	}
	if r.Reclaimed {
		t.Error("fresh reservation reported as reclaimed")
	}

	// a is in progress, so b is next.
	r, _ = s.ReserveJob(ctx, t0, t0.Add(-time.Hour), knownAll)
	if r.Outcome != job.ReserveOK || r.Name != "b" {
		t.Fatalf("second reservation = %+v, want b reserved", r)
	}

	r, _ = s.ReserveJob(ctx, t0, t0.Add(-time.Hour), knownAll)
	if r.Outcome != job.ReserveNone {
		t.Fatalf("outcome with all in progress = %v, want none", r.Outcome)
	}

	if err := s.CompleteJob(ctx, "a", t0, t0.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Name != "b" || jobs[1].Name != "a" {
		t.Fatalf("ListJobs order = %v", jobs)
	}
	if jobs[1].InProgress || jobs[1].ReservedAt != nil {
		t.Errorf("completed job still reserved: %+v", jobs[1])
	}
	if !jobs[0].InProgress || jobs[0].ReservedAt == nil {
		t.Errorf("reserved job not marked: %+v", jobs[0])
	}
}

func TestReserveJob_ReclaimsStale(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, _ = s.ReconcileJobs(ctx, []job.Kind{"a"}, t0)

	if r, _ := s.ReserveJob(ctx, t0, t0.Add(-time.Hour), knownAll); r.Outcome != job.ReserveOK {
		t.Fatalf("first reservation = %v", r.Outcome)
	}

	later := t0.Add(2 * time.Hour)
	r, err := s.ReserveJob(ctx, later, later.Add(-time.Hour), knownAll)
	if err != nil {
		t.Fatalf("ReserveJob: %v", err)
	}
	if r.Outcome != job.ReserveOK || !r.Reclaimed {
		t.Fatalf("reservation = %+v, want reclaimed", r)
	}
	if !r.StartTime.Equal(later) {
		t.Errorf("StartTime = %v, want %v", r.StartTime, later)
	}
}

func TestReserveJob_RemovesUnknown(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, _ = s.ReconcileJobs(ctx, []job.Kind{"gone"}, t0)

	r, err := s.ReserveJob(ctx, t0, t0.Add(-time.Hour), func(string) bool { return false })
	if err != nil {
		t.Fatalf("ReserveJob: %v", err)
	}
	if r.Outcome != job.ReserveRemovedUnknown || r.Name != "gone" {
		t.Fatalf("reservation = %+v", r)
	}
	if jobs, _ := s.ListJobs(ctx); len(jobs) != 0 {
		t.Errorf("unknown row kept: %v", jobs)
	}
}

func TestCompleteJob_Missing(t *testing.T) {
	err := memory.New().CompleteJob(context.Background(), "nope", t0, t0)
	if !errors.Is(err, txn.ErrNotFound) || !errors.Is(err, rvoc.ErrReservationLost) {
		t.Fatalf("err = %v, want lost reservation", err)
	}
}

func TestCompleteJob_AfterReclaimKeepsNewOwner(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, _ = s.ReconcileJobs(ctx, []job.Kind{"a"}, t0)

	first, _ := s.ReserveJob(ctx, t0, t0.Add(-time.Hour), knownAll)
	later := t0.Add(2 * time.Hour)
	second, _ := s.ReserveJob(ctx, later, later.Add(-time.Hour), knownAll)
	if first.Outcome != job.ReserveOK || second.Outcome != job.ReserveOK || !second.Reclaimed {
		t.Fatalf("reservations = %+v, %+v", first, second)
	}

	err := s.CompleteJob(ctx, "a", first.StartTime, later.Add(time.Hour))
	if !errors.Is(err, rvoc.ErrReservationLost) {
		t.Fatalf("late CompleteJob = %v, want ErrReservationLost", err)
	}
	if r, _ := s.ReserveJob(ctx, later, later.Add(-time.Hour), knownAll); r.Outcome != job.ReserveNone {
		t.Fatalf("reserved %s while the reclaimer holds it", r.Name)
	}

	if err := s.CompleteJob(ctx, "a", second.StartTime, later.Add(time.Hour)); err != nil {
		t.Fatalf("CompleteJob by owner: %v", err)
	}
	jobs, _ := s.ListJobs(ctx)
	if jobs[0].InProgress || !jobs[0].ScheduledExecutionTime.Equal(later.Add(time.Hour)) {
		t.Errorf("job after owner completion = %+v", jobs[0])
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	id := session.ID("0123456789abcdef")

	if res, err := s.CreateSession(ctx, id, t0, session.Data{}); err != nil || res != session.WriteOK {
		t.Fatalf("CreateSession = %v, %v", res, err)
	}
	if res, _ := s.CreateSession(ctx, id, t0, session.Data{}); res != session.WriteIDCollision {
		t.Fatalf("duplicate CreateSession = %v, want collision", res)
	}

	_, err := s.CreateSession(ctx, session.ID("other"), t0, session.Data{Username: "ghost"})
	if !errors.Is(err, rvoc.ErrUserNotFound) {
		t.Fatalf("session for missing user: err = %v", err)
	}

	next := session.ID("fedcba9876543210")
	if res, _ := s.UpdateSession(ctx, next, id, t0.Add(time.Hour), session.Data{}); res != session.WriteOK {
		t.Fatalf("UpdateSession = %v", res)
	}
	if rec, _ := s.ReadSession(ctx, id); rec != nil {
		t.Error("previous id still readable after rotation")
	}
	rec, err := s.ReadSession(ctx, next)
	if err != nil || rec == nil {
		t.Fatalf("ReadSession = %v, %v", rec, err)
	}
	if !rec.Expiry.Equal(t0.Add(time.Hour)) {
		t.Errorf("Expiry = %v", rec.Expiry)
	}

	if res, _ := s.UpdateSession(ctx, next, id, t0, session.Data{}); res != session.WriteNotFound {
		t.Errorf("update of missing previous = %v, want not found", res)
	}

	n, err := s.DeleteExpiredSessions(ctx, t0.Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredSessions = %d, %v", n, err)
	}
}

func TestDeleteUserCascadesSessions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.CreateUser(ctx, "ada", "hash", t0); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, "ada", "hash", t0); !errors.Is(err, rvoc.ErrUsernameTaken) {
		t.Fatalf("duplicate CreateUser: err = %v", err)
	}
	id := session.ID("0123456789abcdef")
	if _, err := s.CreateSession(ctx, id, t0, session.Data{Username: "ada"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := s.DeleteUser(ctx, "ada"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if rec, _ := s.ReadSession(ctx, id); rec != nil {
		t.Error("session survived its user")
	}
	if err := s.DeleteUser(ctx, "ada"); !errors.Is(err, rvoc.ErrUserNotFound) {
		t.Errorf("second DeleteUser: err = %v", err)
	}
}

func TestUpdateLoginInfoPersistsOnError(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_ = s.CreateUser(ctx, "ada", "hash", t0)

	errWrong := errors.New("wrong password")
	err := s.UpdateLoginInfo(ctx, "ada", func(info *account.LoginInfo) error {
		info.Attempts++
		info.FailedAttempts++
		return errWrong
	})
	if !errors.Is(err, errWrong) {
		t.Fatalf("err = %v, want callback error", err)
	}

	_ = s.UpdateLoginInfo(ctx, "ada", func(info *account.LoginInfo) error {
		if info.Attempts != 1 || info.FailedAttempts != 1 {
			t.Errorf("counters = %d/%d, want 1/1", info.Attempts, info.FailedAttempts)
		}
		if info.PasswordHash != "hash" {
			t.Errorf("PasswordHash = %q", info.PasswordHash)
		}
		return nil
	})

	if n, _ := s.ExpireAllPasswords(ctx); n != 1 {
		t.Errorf("ExpireAllPasswords = %d, want 1", n)
	}
	u, err := s.GetUser(ctx, "ada")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.PasswordHash != "" {
		t.Errorf("password not expired: %q", u.PasswordHash)
	}
}

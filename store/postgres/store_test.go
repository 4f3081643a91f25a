//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/account"
	"github.com/xraph/rvoc/job"
	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/store/postgres"
	"github.com/xraph/rvoc/txn"
)

// setupTestStore creates a Postgres container and returns a migrated Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("rvoc_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr,
		postgres.WithLogger(slog.Default()),
		postgres.WithMaxConns(16),
	)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	pending, err := s.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("pending migrations: %v", err)
	}
	if len(pending) == 0 {
		t.Fatal("expected pending migrations on a fresh database")
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if pending, _ := s.PendingMigrations(ctx); len(pending) != 0 {
		t.Fatalf("pending after migrate: %v", pending)
	}
	return s
}

func TestStore(t *testing.T) {
	s := setupTestStore(t)

	t.Run("Migrate is idempotent", func(t *testing.T) {
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatal(err)
		}
	})
	t.Run("Jobs", func(t *testing.T) { testJobs(t, s) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, s) })
	t.Run("Users", func(t *testing.T) { testUsers(t, s) })
	t.Run("Vocab", func(t *testing.T) { testVocab(t, s) })
	t.Run("WriteSkew", func(t *testing.T) { testWriteSkew(t, s) })
	t.Run("ConcurrentReserve", func(t *testing.T) { testConcurrentReserve(t, s) })
}

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

func testJobs(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	known := func(name string) bool { return name == "a" || name == "b" }

	if _, err := s.ReconcileJobs(ctx, []job.Kind{"a", "stale"}, now); err != nil {
		t.Fatal(err)
	}
	res, err := s.ReconcileJobs(ctx, []job.Kind{"a", "b"}, now)
	if err != nil {
		t.Fatalf("ReconcileJobs: %v", err)
	}
	if len(res.Inserted) != 1 || res.Inserted[0] != "b" {
		t.Errorf("inserted = %v, want [b]", res.Inserted)
	}
	if len(res.Deleted) != 1 || res.Deleted[0] != "stale" {
		t.Errorf("deleted = %v, want [stale]", res.Deleted)
	}

	r, err := s.ReserveJob(ctx, now, now.Add(-time.Hour), known)
	if err != nil || r.Outcome != job.ReserveOK || r.Name != "a" {
		t.Fatalf("ReserveJob = %+v, %v", r, err)
	}
	r2, _ := s.ReserveJob(ctx, now, now.Add(-time.Hour), known)
	if r2.Outcome != job.ReserveOK || r2.Name != "b" {
		t.Fatalf("second ReserveJob = %+v, want b", r2)
	}
	if r3, _ := s.ReserveJob(ctx, now, now.Add(-time.Hour), known); r3.Outcome != job.ReserveNone {
		t.Fatalf("third ReserveJob = %+v, want none", r3)
	}

	// Stale reclaim.
	later := now.Add(2 * time.Hour)
	r4, err := s.ReserveJob(ctx, later, later.Add(-time.Hour), known)
	if err != nil || r4.Outcome != job.ReserveOK || !r4.Reclaimed {
		t.Fatalf("reclaim = %+v, %v", r4, err)
	}

	next := now.Add(time.Hour)
	// r4 took over the first reservation of a.
	if err := s.CompleteJob(ctx, "a", r.StartTime, next); !errors.Is(err, rvoc.ErrReservationLost) {
		t.Fatalf("CompleteJob by previous holder = %v, want ErrReservationLost", err)
	}
	if r5, _ := s.ReserveJob(ctx, later, now.Add(-time.Hour), known); r5.Outcome != job.ReserveNone {
		t.Fatalf("reserve after lost completion = %+v, want none", r5)
	}

	for _, res := range []job.Reservation{r4, r2} {
		if err := s.CompleteJob(ctx, res.Name, res.StartTime, next); err != nil {
			t.Fatalf("CompleteJob(%s): %v", res.Name, err)
		}
	}
	if err := s.CompleteJob(ctx, "missing", now, next); !errors.Is(err, txn.ErrNotFound) {
		t.Errorf("CompleteJob(missing) = %v, want NotFound", err)
	}

	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, j := range jobs {
		if j.InProgress || j.ReservedAt != nil || !j.ScheduledExecutionTime.Equal(next) {
			t.Errorf("job after complete = %+v", j)
		}
	}

	// Unknown rows are removed at reservation time.
	if _, err := s.ReconcileJobs(ctx, []job.Kind{"a", "b", "zzz"}, now); err != nil {
		t.Fatal(err)
	}
	r5, _ := s.ReserveJob(ctx, now, now.Add(-time.Hour), known)
	if r5.Outcome != job.ReserveRemovedUnknown || r5.Name != "zzz" {
		t.Errorf("reserve unknown = %+v", r5)
	}
}

func testConcurrentReserve(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	known := func(string) bool { return true }
	if _, err := s.ReconcileJobs(ctx, []job.Kind{"solo"}, now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	const pollers = 8
	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
	)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.ReserveJob(ctx, now, now.Add(-time.Hour), known)
			if err != nil {
				t.Errorf("ReserveJob: %v", err)
				return
			}
			if r.Outcome == job.ReserveOK && r.Name == "solo" {
				reserved.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := reserved.Load(); got != 1 {
		t.Errorf("solo reserved %d times, want exactly once", got)
	}
}

// ──────────────────────────────────────────────────
// Sessions
// ──────────────────────────────────────────────────

func testSessions(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	a, b := session.ID("session-a"), session.ID("session-b")

	if res, err := s.CreateSession(ctx, a, expiry, session.Data{}); err != nil || res != session.WriteOK {
		t.Fatalf("CreateSession = %s, %v", res, err)
	}
	if res, err := s.CreateSession(ctx, a, expiry, session.Data{}); err != nil || res != session.WriteIDCollision {
		t.Fatalf("duplicate CreateSession = %s, %v", res, err)
	}

	rec, err := s.ReadSession(ctx, a)
	if err != nil || rec == nil || !rec.Expiry.Equal(expiry) || !rec.Data.Anonymous() {
		t.Fatalf("ReadSession = %+v, %v", rec, err)
	}
	if rec, err := s.ReadSession(ctx, session.ID("nope")); err != nil || rec != nil {
		t.Fatalf("ReadSession(absent) = %+v, %v", rec, err)
	}

	// Update onto itself, then rotate to b.
	if res, err := s.UpdateSession(ctx, a, a, session.Never, session.Data{}); err != nil || res != session.WriteOK {
		t.Fatalf("UpdateSession(same) = %s, %v", res, err)
	}
	if rec, _ := s.ReadSession(ctx, a); rec == nil || !rec.Expiry.Equal(session.Never) {
		t.Fatalf("Never did not round-trip: %+v", rec)
	}
	if _, err := s.CreateSession(ctx, b, expiry, session.Data{}); err != nil {
		t.Fatal(err)
	}
	if res, _ := s.UpdateSession(ctx, b, a, expiry, session.Data{}); res != session.WriteIDCollision {
		t.Errorf("UpdateSession onto existing = %s, want collision", res)
	}
	if rec, _ := s.ReadSession(ctx, a); rec == nil {
		t.Error("collision rolled back but previous session is gone")
	}
	if res, _ := s.UpdateSession(ctx, b, session.ID("ghost"), expiry, session.Data{}); res != session.WriteNotFound {
		t.Errorf("UpdateSession from ghost = %s, want not_found", res)
	}

	// Sweep.
	old := session.ID("session-old")
	if _, err := s.CreateSession(ctx, old, time.Now().Add(-time.Minute), session.Data{}); err != nil {
		t.Fatal(err)
	}
	n, err := s.DeleteExpiredSessions(ctx, time.Now())
	if err != nil || n != 1 {
		t.Errorf("DeleteExpiredSessions = %d, %v", n, err)
	}

	if err := s.DeleteSession(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession(ctx, a); err != nil {
		t.Errorf("second DeleteSession: %v", err)
	}
	if err := s.ClearSessions(ctx); err != nil {
		t.Fatal(err)
	}
	if rec, _ := s.ReadSession(ctx, b); rec != nil {
		t.Error("ClearSessions left a session")
	}
}

// ──────────────────────────────────────────────────
// Users
// ──────────────────────────────────────────────────

var testLimits = account.Limits{MaxAttempts: 10, MaxFailedAttempts: 5, Interval: time.Hour}

func testUsers(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.CreateUser(ctx, "tim", "hash", now); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateUser(ctx, "tim", "hash", now); !errors.Is(err, rvoc.ErrUsernameTaken) {
		t.Errorf("duplicate CreateUser = %v", err)
	}

	// Counters are committed even when fn fails.
	wrong := errors.New("wrong password")
	err := s.UpdateLoginInfo(ctx, "tim", func(info *account.LoginInfo) error {
		info.TryAttempt(now, testLimits)
		info.FailAttempt()
		return wrong
	})
	if !errors.Is(err, wrong) {
		t.Fatalf("UpdateLoginInfo = %v", err)
	}
	_ = s.UpdateLoginInfo(ctx, "tim", func(info *account.LoginInfo) error {
		if info.Attempts != 1 || info.FailedAttempts != 1 {
			t.Errorf("counters not persisted: %+v", info)
		}
		if info.PasswordHash != "hash" {
			t.Errorf("hash = %q", info.PasswordHash)
		}
		return nil
	})
	if err := s.UpdateLoginInfo(ctx, "nobody", func(*account.LoginInfo) error { return nil }); !errors.Is(err, rvoc.ErrUserNotFound) {
		t.Errorf("UpdateLoginInfo(unknown) = %v", err)
	}

	// Sessions cascade with the user.
	sid := session.ID("tim-session")
	if _, err := s.CreateSession(ctx, sid, session.Never, session.Data{Username: "tim"}); err != nil {
		t.Fatal(err)
	}
	if n, err := s.ExpireAllPasswords(ctx); err != nil || n < 1 {
		t.Errorf("ExpireAllPasswords = %d, %v", n, err)
	}
	if u, _ := s.GetUser(ctx, "tim"); u == nil || u.PasswordHash != "" {
		t.Errorf("password not expired: %+v", u)
	}
	if err := s.DeleteUser(ctx, "tim"); err != nil {
		t.Fatal(err)
	}
	if rec, _ := s.ReadSession(ctx, sid); rec != nil {
		t.Error("session survived user deletion")
	}
	if _, err := s.GetUser(ctx, "tim"); !errors.Is(err, rvoc.ErrUserNotFound) {
		t.Errorf("GetUser(deleted) = %v", err)
	}
}

func testVocab(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	langs, err := s.ListLanguages(ctx)
	if err != nil || len(langs) == 0 {
		t.Fatalf("ListLanguages = %v, %v", langs, err)
	}
	types, err := s.ListWordTypes(ctx)
	if err != nil || len(types) == 0 {
		t.Fatalf("ListWordTypes = %v, %v", types, err)
	}
}

// ──────────────────────────────────────────────────
// Retry engine against a real server
// ──────────────────────────────────────────────────

// testWriteSkew runs the classic on-call write skew: two doctors each go
// off call if the other is still on call. Serializable isolation makes one
// of them retry, after which exactly one stays on call.
func testWriteSkew(t *testing.T, s *postgres.Store) {
	ctx := context.Background()
	pool := s.Pool()
	if _, err := pool.Exec(ctx, `
		CREATE TABLE on_call (name TEXT PRIMARY KEY, on_call BOOLEAN NOT NULL);
		INSERT INTO on_call VALUES ('tim', TRUE), ('tom', TRUE)`); err != nil {
		t.Fatal(err)
	}

	var (
		barrier  sync.WaitGroup
		attempts atomic.Int32
		wg       sync.WaitGroup
	)
	barrier.Add(2)

	goOffCall := func(name string) error {
		first := true
		return s.Executor().Exec(ctx, func(ctx context.Context, tx pgx.Tx) error {
			attempts.Add(1)
			var n int
			if err := tx.QueryRow(ctx, `SELECT count(*) FROM on_call WHERE on_call`).Scan(&n); err != nil {
				return err
			}
			if first {
				first = false
				barrier.Done()
				barrier.Wait()
			}
			if n < 2 {
				return nil
			}
			_, err := tx.Exec(ctx, `UPDATE on_call SET on_call = FALSE WHERE name = $1`, name)
			return err
		}, txn.WithOp("go off call"))
	}

	errs := make([]error, 2)
	for i, name := range []string{"tim", "tom"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = goOffCall(name)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("transaction %d: %v", i, err)
		}
	}
	if attempts.Load() < 3 {
		t.Errorf("attempts = %d, want a serialization retry", attempts.Load())
	}
	var onCall int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM on_call WHERE on_call`).Scan(&onCall); err != nil {
		t.Fatal(err)
	}
	if onCall != 1 {
		t.Errorf("on call = %d, want exactly 1", onCall)
	}
}

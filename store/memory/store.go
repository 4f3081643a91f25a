// Package memory provides an in-memory store.Store for unit tests and
// development. Every method holds one mutex for its whole duration, which
// gives the same isolation a Serializable transaction gives the Postgres
// store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/account"
	"github.com/xraph/rvoc/job"
	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/store"
	"github.com/xraph/rvoc/txn"
	"github.com/xraph/rvoc/vocab"
)

var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store. Safe for
// concurrent access.
type Store struct {
	mu sync.Mutex

	jobs     map[string]*job.ScheduledJob
	sessions map[string]*session.Record
	users    map[string]*userRow

	languages []vocab.Language
	wordTypes []vocab.WordType
}

type userRow struct {
	account.User
	login account.LoginInfo
}

// New returns a new empty Store seeded with the reference data the
// migrations insert.
func New() *Store {
	return &Store{
		jobs:      make(map[string]*job.ScheduledJob),
		sessions:  make(map[string]*session.Record),
		users:     make(map[string]*userRow),
		languages: []vocab.Language{{ID: 1, EnglishName: "English"}, {ID: 2, EnglishName: "German"}},
		wordTypes: []vocab.WordType{
			{ID: 1, EnglishName: "Noun"},
			{ID: 2, EnglishName: "Verb"},
			{ID: 3, EnglishName: "Adjective"},
		},
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// PendingMigrations is always empty for the memory store.
func (m *Store) PendingMigrations(_ context.Context) ([]string, error) { return nil, nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// ReconcileJobs implements job.Store.
func (m *Store) ReconcileJobs(_ context.Context, kinds []job.Kind, now time.Time) (job.ReconcileResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res job.ReconcileResult
	known := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		name := k.String()
		known[name] = true
		if _, ok := m.jobs[name]; !ok {
			m.jobs[name] = &job.ScheduledJob{Name: name, ScheduledExecutionTime: now}
			res.Inserted = append(res.Inserted, name)
		}
	}
	for name := range m.jobs {
		if !known[name] {
			delete(m.jobs, name)
			res.Deleted = append(res.Deleted, name)
		}
	}
	sort.Strings(res.Inserted)
	sort.Strings(res.Deleted)
	return res, nil
}

// ReserveJob implements job.Store.
func (m *Store) ReserveJob(_ context.Context, now, staleBefore time.Time, known func(string) bool) (job.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *job.ScheduledJob
	for _, j := range m.jobs {
		if j.ScheduledExecutionTime.After(now) {
			continue
		}
		if j.InProgress && (j.ReservedAt == nil || !j.ReservedAt.Before(staleBefore)) {
			continue
		}
		if next == nil || j.ScheduledExecutionTime.Before(next.ScheduledExecutionTime) ||
			(j.ScheduledExecutionTime.Equal(next.ScheduledExecutionTime) && j.Name < next.Name) {
			next = j
		}
	}
	if next == nil {
		return job.Reservation{Outcome: job.ReserveNone}, nil
	}

	if !known(next.Name) {
		delete(m.jobs, next.Name)
		return job.Reservation{Outcome: job.ReserveRemovedUnknown, Name: next.Name}, nil
	}

	reclaimed := next.InProgress
	reservedAt := now
	next.InProgress = true
	next.ReservedAt = &reservedAt
	return job.Reservation{
		Outcome:       job.ReserveOK,
		Name:          next.Name,
		ScheduledTime: next.ScheduledExecutionTime,
		StartTime:     now,
		Reclaimed:     reclaimed,
	}, nil
}

// CompleteJob implements job.Store.
func (m *Store) CompleteJob(_ context.Context, name string, reservedAt, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok || !j.InProgress || j.ReservedAt == nil || !j.ReservedAt.Equal(reservedAt) {
		return txn.NotFound(fmt.Errorf("%w: %s", rvoc.ErrReservationLost, name))
	}
	j.ScheduledExecutionTime = next
	j.InProgress = false
	j.ReservedAt = nil
	return nil
}

// ListJobs implements job.Store.
func (m *Store) ListJobs(_ context.Context) ([]*job.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*job.ScheduledJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		if j.ReservedAt != nil {
			t := *j.ReservedAt
			cp.ReservedAt = &t
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].ScheduledExecutionTime.Equal(out[k].ScheduledExecutionTime) {
			return out[i].Name < out[k].Name
		}
		return out[i].ScheduledExecutionTime.Before(out[k].ScheduledExecutionTime)
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Session Store
// ──────────────────────────────────────────────────

func sessionKey(id session.ID) string { return string(id) }

func copyRecord(r *session.Record) *session.Record {
	cp := *r
	cp.ID = bytes.Clone(r.ID)
	return &cp
}

// checkPrincipal mirrors the foreign key from sessions to users.
func (m *Store) checkPrincipal(data session.Data) error {
	if data.Anonymous() {
		return nil
	}
	if _, ok := m.users[data.Username]; !ok {
		return txn.Permanent(rvoc.ErrUserNotFound)
	}
	return nil
}

// CreateSession implements session.Store.
func (m *Store) CreateSession(_ context.Context, id session.ID, expiry time.Time, data session.Data) (session.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionKey(id)]; ok {
		return session.WriteIDCollision, nil
	}
	if err := m.checkPrincipal(data); err != nil {
		return session.WriteOK, err
	}
	m.sessions[sessionKey(id)] = &session.Record{ID: bytes.Clone(id), Expiry: expiry, Data: data}
	return session.WriteOK, nil
}

// ReadSession implements session.Store.
func (m *Store) ReadSession(_ context.Context, id session.ID) (*session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.sessions[sessionKey(id)]
	if !ok {
		return nil, nil
	}
	return copyRecord(r), nil
}

// UpdateSession implements session.Store.
func (m *Store) UpdateSession(_ context.Context, current, previous session.ID, expiry time.Time, data session.Data) (session.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionKey(previous)]; !ok {
		return session.WriteNotFound, nil
	}
	if !bytes.Equal(current, previous) {
		if _, ok := m.sessions[sessionKey(current)]; ok {
			return session.WriteIDCollision, nil
		}
	}
	if err := m.checkPrincipal(data); err != nil {
		return session.WriteOK, err
	}
	delete(m.sessions, sessionKey(previous))
	m.sessions[sessionKey(current)] = &session.Record{ID: bytes.Clone(current), Expiry: expiry, Data: data}
	return session.WriteOK, nil
}

// DeleteSession implements session.Store.
func (m *Store) DeleteSession(_ context.Context, id session.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(id))
	return nil
}

// ClearSessions implements session.Store.
func (m *Store) ClearSessions(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.sessions)
	return nil
}

// DeleteExpiredSessions implements session.Store.
func (m *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, r := range m.sessions {
		if r.Expiry.Before(now) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Account Store
// ──────────────────────────────────────────────────

// CreateUser implements account.Store.
func (m *Store) CreateUser(_ context.Context, name, passwordHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[name]; ok {
		return rvoc.ErrUsernameTaken
	}
	m.users[name] = &userRow{
		User:  account.User{Name: name, PasswordHash: passwordHash, CreatedAt: now},
		login: account.LoginInfo{Name: name, ResetAt: now},
	}
	return nil
}

// GetUser implements account.Store.
func (m *Store) GetUser(_ context.Context, name string) (*account.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[name]
	if !ok {
		return nil, rvoc.ErrUserNotFound
	}
	cp := u.User
	return &cp, nil
}

// UpdateLoginInfo implements account.Store.
func (m *Store) UpdateLoginInfo(_ context.Context, name string, fn func(*account.LoginInfo) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[name]
	if !ok {
		return rvoc.ErrUserNotFound
	}
	info := u.login
	info.PasswordHash = u.PasswordHash
	fnErr := fn(&info)

	u.login = info
	u.PasswordHash = info.PasswordHash
	return fnErr
}

// SetPasswordHash implements account.Store.
func (m *Store) SetPasswordHash(_ context.Context, name, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[name]
	if !ok {
		return rvoc.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// ExpireAllPasswords implements account.Store.
func (m *Store) ExpireAllPasswords(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, u := range m.users {
		u.PasswordHash = ""
		n++
	}
	return n, nil
}

// DeleteUser implements account.Store.
func (m *Store) DeleteUser(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[name]; !ok {
		return rvoc.ErrUserNotFound
	}
	delete(m.users, name)
	for k, r := range m.sessions {
		if r.Data.Username == name {
			delete(m.sessions, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Vocab Store
// ──────────────────────────────────────────────────

// ListLanguages implements vocab.Store.
func (m *Store) ListLanguages(_ context.Context) ([]vocab.Language, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.languages), nil
}

// ListWordTypes implements vocab.Store.
func (m *Store) ListWordTypes(_ context.Context) ([]vocab.WordType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.wordTypes), nil
}

package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/ext"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIDLength sets the number of random bytes per id.
func WithIDLength(n int) ManagerOption {
	return func(m *Manager) { m.idLength = n }
}

// WithMaxIDRetries sets how often a colliding id is regenerated.
func WithMaxIDRetries(n int) ManagerOption {
	return func(m *Manager) { m.maxIDRetries = n }
}

// WithTTL sets the lifetime of new sessions. Zero means Never.
func WithTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithExtensions reports session events to the registry.
func WithExtensions(r *ext.Registry) ManagerOption {
	return func(m *Manager) { m.ext = r }
}

// WithRandom replaces the id entropy source.
func WithRandom(fill func([]byte) error) ManagerOption {
	return func(m *Manager) { m.random = fill }
}

// Manager issues and rotates session ids on top of a Store.
type Manager struct {
	store  Store
	logger *slog.Logger
	ext    *ext.Registry

	idLength     int
	maxIDRetries int
	ttl          time.Duration
	now          func() time.Time
	random       func([]byte) error
}

// NewManager creates a Manager.
func NewManager(store Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:        store,
		logger:       logger,
		idLength:     32,
		maxIDRetries: 10,
		ttl:          30 * 24 * time.Hour,
		now:          time.Now,
		random: func(b []byte) error {
			_, err := rand.Read(b)
			return err
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) newID() (ID, error) {
	b := make([]byte, m.idLength)
	if err := m.random(b); err != nil {
		return nil, fmt.Errorf("session: generate id: %w", err)
	}
	return ID(b), nil
}

func (m *Manager) expiry() time.Time {
	if m.ttl <= 0 {
		return Never
	}
	return m.now().UTC().Add(m.ttl)
}

// Create stores a new session for data. On an id collision a fresh id is
// drawn, up to the configured number of retries.
func (m *Manager) Create(ctx context.Context, data Data) (*Record, error) {
	expiry := m.expiry()
	for attempt := 0; attempt <= m.maxIDRetries; attempt++ {
		id, err := m.newID()
		if err != nil {
			return nil, err
		}
		res, err := m.store.CreateSession(ctx, id, expiry, data)
		if err != nil {
			return nil, err
		}
		switch res {
		case WriteOK:
			m.ext.EmitSessionCreated(ctx, data.Username)
			return &Record{ID: id, Expiry: expiry, Data: data}, nil
		case WriteIDCollision:
			m.logger.Warn("session id collision", slog.Int("attempt", attempt+1))
		default:
			return nil, fmt.Errorf("session: create: unexpected result %s", res)
		}
	}
	return nil, rvoc.ErrSessionIDExhausted
}

// Load returns the session for id, or nil if it is absent or expired.
func (m *Manager) Load(ctx context.Context, id ID) (*Record, error) {
	rec, err := m.store.ReadSession(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Expired(m.now()) {
		return nil, nil
	}
	return rec, nil
}

// Rotate replaces previous by a freshly drawn id carrying data. A previous
// session that no longer exists yields rvoc.ErrNotAuthenticated.
func (m *Manager) Rotate(ctx context.Context, previous ID, data Data) (*Record, error) {
	expiry := m.expiry()
	for attempt := 0; attempt <= m.maxIDRetries; attempt++ {
		id, err := m.newID()
		if err != nil {
			return nil, err
		}
		res, err := m.store.UpdateSession(ctx, id, previous, expiry, data)
		if err != nil {
			return nil, err
		}
		switch res {
		case WriteOK:
			m.ext.EmitSessionRotated(ctx, data.Username)
			return &Record{ID: id, Expiry: expiry, Data: data}, nil
		case WriteIDCollision:
			m.logger.Warn("session id collision on rotate", slog.Int("attempt", attempt+1))
		case WriteNotFound:
			return nil, rvoc.ErrNotAuthenticated
		}
	}
	return nil, rvoc.ErrSessionIDExhausted
}

// Delete logs a session out.
func (m *Manager) Delete(ctx context.Context, id ID) error {
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.ext.EmitSessionDeleted(ctx)
	return nil
}

// Clear removes every session.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.ClearSessions(ctx)
}

// Invalidate drops every copy the store keeps of session rows. Call it after
// sessions were removed without going through the store, such as by the
// cascade of a user deletion. Stores without copies make it a no-op.
func (m *Manager) Invalidate(ctx context.Context) error {
	inv, ok := m.store.(Invalidator)
	if !ok {
		return nil
	}
	return inv.Invalidate(ctx)
}

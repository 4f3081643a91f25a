// Package session defines persistent login sessions and the Manager that
// issues, rotates and expires them.
//
// A session is a random id mapped to an expiry and a principal. The store
// contract reports id collisions and missing sessions as WriteResult values
// so the Manager can retry with a fresh id without treating them as
// failures.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// ID is an opaque session identifier.
type ID []byte

// String encodes the id as unpadded base64url, the cookie form.
func (id ID) String() string {
	return base64.RawURLEncoding.EncodeToString(id)
}

// ParseID decodes the cookie form of an id.
func ParseID(s string) (ID, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("session: parse id: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("session: parse id: empty")
	}
	return ID(b), nil
}

// Never is the expiry of sessions that do not expire. It is the largest
// instant a Postgres timestamptz column round-trips without loss.
var Never = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Data is the principal of a session. An empty Username is an anonymous
// session.
type Data struct {
	Username string `json:"username,omitempty"`
}

// Anonymous reports whether no user is logged in.
func (d Data) Anonymous() bool { return d.Username == "" }

// Record is one stored session.
type Record struct {
	ID     ID        `json:"id"`
	Expiry time.Time `json:"expiry"`
	Data   Data      `json:"data"`
}

// Expired reports whether the record is no longer valid at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.Expiry)
}

// WriteResult is the non-error outcome of a session write.
type WriteResult uint8

const (
	// WriteOK means the write was applied.
	WriteOK WriteResult = iota
	// WriteIDCollision means the new id is already taken. Nothing changed.
	WriteIDCollision
	// WriteNotFound means the previous id of an update does not exist.
	// Nothing changed.
	WriteNotFound
)

func (r WriteResult) String() string {
	switch r {
	case WriteOK:
		return "ok"
	case WriteIDCollision:
		return "id_collision"
	case WriteNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("WriteResult(%d)", uint8(r))
	}
}

// Invalidator is implemented by stores that keep copies of session rows.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Store persists sessions. Each method is one retried transaction.
type Store interface {
	// CreateSession inserts a new session.
	CreateSession(ctx context.Context, id ID, expiry time.Time, data Data) (WriteResult, error)

	// ReadSession returns the session or nil if none exists. Expired rows
	// that were not swept yet are returned as-is.
	ReadSession(ctx context.Context, id ID) (*Record, error)

	// UpdateSession replaces previous by current atomically. previous and
	// current may be equal.
	UpdateSession(ctx context.Context, current, previous ID, expiry time.Time, data Data) (WriteResult, error)

	// DeleteSession removes a session. Deleting an absent id succeeds.
	DeleteSession(ctx context.Context, id ID) error

	// ClearSessions removes all sessions.
	ClearSessions(ctx context.Context) error

	// DeleteExpiredSessions removes sessions whose expiry is before now
	// and reports how many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

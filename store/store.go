// Package store defines the aggregate persistence interface. Each subsystem
// (job, session, account, vocab) defines its own store interface and the
// composite Store composes them. Backends: Postgres and Memory; Redis
// decorates the session part of either.
package store

import (
	"context"

	"github.com/xraph/rvoc/account"
	"github.com/xraph/rvoc/job"
	"github.com/xraph/rvoc/session"
	"github.com/xraph/rvoc/vocab"
)

// Store is the aggregate persistence interface. A single backend
// implements all subsystem stores.
type Store interface {
	job.Store
	session.Store
	account.Store
	vocab.Store

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// PendingMigrations lists migrations not applied yet.
	PendingMigrations(ctx context.Context) ([]string, error)

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

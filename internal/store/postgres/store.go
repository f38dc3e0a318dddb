// Package postgres persists events, chains, actions, entity statuses and the
// activity log in PostgreSQL through database/sql.
//
// Every method picks up a transaction from the context when one is present
// (pkg/platform/tx), so callers can compose writes across stores.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	txcontext "dealflow/pkg/platform/tx"
)

//go:embed schema.sql
var Schema string

// Store is the Postgres implementation of every dealflow store port.
type Store struct {
	db           *sql.DB
	txTimeout    time.Duration
	statusTables map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithTxTimeout bounds transactions the store opens itself.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithStatusEntities sets the entity types whose status the executor may
// update. Each maps to the table named by its plural.
func WithStatusEntities(entityTypes []string) Option {
	return func(s *Store) {
		s.statusTables = statusTables(entityTypes)
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		txTimeout:    txcontext.DefaultTimeout,
		statusTables: statusTables([]string{"deal", "checklist_item"}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx runs fn in one transaction; stores reached from fn join it.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, s.txTimeout, fn)
}

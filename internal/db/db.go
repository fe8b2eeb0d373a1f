package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique-key violations and overlapping meetings.
	ErrConflict = errors.New("conflict")
)

// NotFoundError names the missing entity and unwraps to ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

type Database struct {
	db  *sqlx.DB
	now func() time.Time
}

type Option func(*Database)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// Open connects with the given driver ("postgres" or "sqlite3").
func Open(driver, dsn string, opts ...Option) (*Database, error) {
	conn, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// one connection so :memory: databases are shared and writes serialize
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	d := &Database{
		db:  conn,
		now: func() time.Time { return time.Now() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Migrate creates missing tables and indexes.
func (d *Database) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the connection, for health endpoints.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.db.Close()
}

// timestamp returns the current time normalized to what both drivers round-trip.
func (d *Database) timestamp() time.Time {
	return d.now().UTC().Truncate(time.Microsecond)
}

func (d *Database) rebind(query string) string {
	return d.db.Rebind(query)
}

func (d *Database) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

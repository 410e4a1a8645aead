// Package postgres implements the Store contracts on PostgreSQL via
// sqlx. Rows cross the boundary through row structs and the domain
// Reconstruct params, so aggregates never expose their fields to SQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/railhead-io/railhead/internal/domain/ports"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// Config carries the connection settings for Open.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps a PostgreSQL connection pool and hands out Store bundles
// bound to it. It implements ports.Transactor.
type DB struct {
	pool *sqlx.DB
}

// Open connects to PostgreSQL and verifies the connection with a ping.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, rherrors.New(rherrors.KindValidation, "database dsn cannot be empty")
	}
	pool, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, rherrors.Wrap(err, rherrors.KindFatal, "postgres.Open", "connect to database")
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &DB{pool: pool}, nil
}

// NewDB wraps an existing pool. Tests hand in sqlmock-backed pools.
func NewDB(pool *sqlx.DB) *DB { return &DB{pool: pool} }

// SQL exposes the raw handle for the migration helpers.
func (db *DB) SQL() *sql.DB { return db.pool.DB }

// Close closes the connection pool.
func (db *DB) Close() error { return db.pool.Close() }

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error { return db.pool.PingContext(ctx) }

// Store returns the repository bundle bound to the pool. Single
// statements run in auto-commit mode; multi-row steps go through
// WithinTx.
func (db *DB) Store() ports.Store { return storeFor(db.pool) }

// WithinTx runs fn against a Store whose repositories share one
// transaction. The transaction commits when fn returns nil and rolls
// back otherwise.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, s ports.Store) error) error {
	tx, err := db.pool.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, storeFor(tx)); err != nil {
		// The caller's error is the interesting one. A rollback failure
		// here means the connection is gone and the tx died with it.
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// querier is the slice of sqlx shared by *sqlx.DB and *sqlx.Tx. Every
// repository runs against it, so the same code serves pool and
// transaction callers.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

func storeFor(q querier) ports.Store {
	return ports.Store{
		Releases: &releaseRepo{q},
		CronJobs: &cronJobRepo{q},
		Tasks:    &taskRepo{q},
		Cycles:   &cycleRepo{q},
		Mappings: &mappingRepo{q},
		Uploads:  &uploadRepo{q},
		Builds:   &buildRepo{q},
		History:  &historyRepo{q},
		Configs:  &configRepo{q},
	}
}

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint
// violation, optionally narrowed to one named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

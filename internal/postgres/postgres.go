package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/gepvi/gepvi-users/internal/config"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// IClient is the transaction entry point used by services
type IClient interface {
	// WithTx runs fn inside a transaction carried by the returned context.
	// Nested calls reuse the outer transaction through savepoints.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Ping checks that the database answers
	Ping(ctx context.Context) error
}

// DB wraps sqlx.DB to provide transaction management
type DB struct {
	*sqlx.DB
	logger    *logger.Logger
	retrier   *Retrier
	slowQuery time.Duration
}

// Querier interface defines all database operations
// Both *sqlx.DB and *sqlx.Tx implement these methods
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

// NewDB creates a new DB instance
func NewDB(cfg *config.Configuration, logger *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)

	return &DB{
		DB:        db,
		logger:    logger,
		retrier:   NewRetrier(cfg.Postgres.Retry, logger),
		slowQuery: cfg.Postgres.SlowQueryThreshold,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if err := db.DB.Close(); err != nil {
		db.logger.Errorw("error closing database", "error", err)
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// GetQuerier returns either the transaction from context or the base DB
func (db *DB) GetQuerier(ctx context.Context) Querier {
	if tx, ok := GetTx(ctx); ok {
		return NewTracedQuerier(tx.Tx, db.logger, tx.ID, db.slowQuery)
	}
	return NewTracedQuerier(db.DB, db.logger, "", db.slowQuery)
}

// WithRetry runs a single statement with bounded retries on transient
// failures. Inside a transaction the statement runs once; the outer
// WithTx owns the retry.
func (db *DB) WithRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if _, ok := GetTx(ctx); ok {
		return fn(ctx)
	}
	return db.retrier.Do(ctx, operation, func() error {
		return fn(ctx)
	})
}

// WithMutationRetry is WithRetry for autocommit statements that are not
// idempotent, such as counters. A statement whose outcome is unknown is not
// replayed.
func (db *DB) WithMutationRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if _, ok := GetTx(ctx); ok {
		return fn(ctx)
	}
	return db.retrier.DoMutation(ctx, operation, func() error {
		return fn(ctx)
	})
}

package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/jmoiron/sqlx"
)

// QueryTracer times one statement. Arguments are never logged since they
// carry raw webhook payloads and user aliases.
type QueryTracer struct {
	logger *logger.Logger
	query  string
	nargs  int
	start  time.Time
	txID   string
	slow   time.Duration
}

func NewQueryTracer(logger *logger.Logger, query string, nargs int, txID string, slow time.Duration) *QueryTracer {
	return &QueryTracer{
		logger: logger,
		query:  query,
		nargs:  nargs,
		start:  time.Now(),
		txID:   txID,
		slow:   slow,
	}
}

// Done logs the outcome. Transient failures are warnings because the
// retrier gets another go at them.
func (qt *QueryTracer) Done(err error) {
	elapsed := time.Since(qt.start)
	fields := []interface{}{
		"duration_ms", elapsed.Milliseconds(),
		"query", compactQuery(qt.query),
		"args", qt.nargs,
	}
	if qt.txID != "" {
		fields = append(fields, "tx_id", qt.txID)
	}

	switch {
	case err != nil && errors.Is(err, sql.ErrNoRows):
		qt.logger.Debugw("database query returned no rows", fields...)
	case err != nil && IsTransient(err):
		qt.logger.Warnw("database query failed, transient", append(fields, "error", err.Error())...)
	case err != nil:
		qt.logger.Errorw("database query failed", append(fields, "error", err.Error())...)
	case qt.slow > 0 && elapsed > qt.slow:
		qt.logger.Warnw("slow database query", fields...)
	default:
		qt.logger.Debugw("database query completed", fields...)
	}
}

// compactQuery folds the indentation of multi-line SQL literals into one line
func compactQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// TracedQuerier wraps a Querier with tracing
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
	slow   time.Duration
}

func NewTracedQuerier(q Querier, logger *logger.Logger, txID string, slow time.Duration) *TracedQuerier {
	return &TracedQuerier{
		Querier: q,
		logger:  logger,
		txID:    txID,
		slow:    slow,
	}
}

func (tq *TracedQuerier) trace(query string, args []interface{}) *QueryTracer {
	return NewQueryTracer(tq.logger, query, len(args), tq.txID, tq.slow)
}

// ExecContext traces ExecContext calls
func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	tracer := tq.trace(query, args)
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	tracer.Done(err)
	return result, err
}

// GetContext traces GetContext calls
func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	tracer := tq.trace(query, args)
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	tracer.Done(err)
	return err
}

// SelectContext traces SelectContext calls
func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	tracer := tq.trace(query, args)
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	tracer.Done(err)
	return err
}

// QueryRowxContext traces QueryRowxContext calls. Scan errors surface on the
// returned row, so only the round trip is timed.
func (tq *TracedQuerier) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	tracer := tq.trace(query, args)
	row := tq.Querier.QueryRowxContext(ctx, query, args...)
	tracer.Done(row.Err())
	return row
}

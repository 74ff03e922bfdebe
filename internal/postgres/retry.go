package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/lib/pq"
)

// Retrier applies bounded exponential backoff to transient storage errors
// and reports exhaustion as ErrStorageUnavailable
type Retrier struct {
	cfg    config.RetryConfig
	logger *logger.Logger
}

func NewRetrier(cfg config.RetryConfig, logger *logger.Logger) *Retrier {
	return &Retrier{cfg: cfg, logger: logger}
}

func (r *Retrier) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		b.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		b.MaxInterval = r.cfg.MaxInterval
	}
	if r.cfg.MaxElapsedTime > 0 {
		b.MaxElapsedTime = r.cfg.MaxElapsedTime
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx)
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// retry budget is spent. fn must be safe to run twice.
func (r *Retrier) Do(ctx context.Context, operation string, fn func() error) error {
	return r.do(ctx, operation, IsTransient, fn)
}

// DoMutation is Do for statements that must not be applied twice. Only
// errors that prove the statement did not commit are retried; a connection
// lost mid-statement is reported without a replay.
func (r *Retrier) DoMutation(ctx context.Context, operation string, fn func() error) error {
	return r.do(ctx, operation, NotApplied, fn)
}

func (r *Retrier) do(ctx context.Context, operation string, retryable func(error) bool, fn func() error) error {
	attempts := 0
	op := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warnw("transient storage error, retrying",
			"operation", operation,
			"attempt", attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, r.newBackOff(ctx), notify)
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		r.logger.Errorw("storage unavailable after retries",
			"operation", operation,
			"attempts", attempts,
			"error", err,
		)
		return ierr.WithError(err).
			WithHint("Storage is temporarily unavailable, please retry").
			WithReportableDetails(map[string]any{"operation": operation}).
			Mark(ierr.ErrStorageUnavailable)
	}
	return err
}

// NotApplied reports whether err is transient and proves the statement was
// not committed: the connection was never used, or the server itself
// rejected the statement.
func NotApplied(err error) bool {
	if !IsTransient(err) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr)
}

// IsTransient reports whether err is worth retrying: lost connections,
// serialization failures, deadlocks and server shutdowns
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "57P01", "57P02", "57P03":
			return true
		}
		switch pqErr.Code.Class() {
		case "08", "53":
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

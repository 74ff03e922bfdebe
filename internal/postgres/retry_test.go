package postgres

import (
	"context"
	"database/sql/driver"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrier(maxRetries uint64) *Retrier {
	return NewRetrier(config.RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
	}, logger.NewNopLogger())
}

func TestRetrierRecoversFromTransientError(t *testing.T) {
	r := newTestRetrier(3)
	calls := 0

	err := r.Do(context.Background(), "decrement_quota", func() error {
		calls++
		if calls < 3 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierExhaustionIsStorageUnavailable(t *testing.T) {
	r := newTestRetrier(2)
	calls := 0

	err := r.Do(context.Background(), "extend_subscription", func() error {
		calls++
		return driver.ErrBadConn
	})

	require.Error(t, err)
	assert.True(t, ierr.IsStorageUnavailable(err))
	assert.Equal(t, 3, calls)
}

func TestRetrierDoesNotRetryPermanentErrors(t *testing.T) {
	r := newTestRetrier(5)
	calls := 0
	domainErr := ierr.NewError("exhausted").Mark(ierr.ErrQuotaExhausted)

	err := r.Do(context.Background(), "decrement_quota", func() error {
		calls++
		return domainErr
	})

	assert.Equal(t, 1, calls)
	assert.True(t, ierr.IsQuotaExhausted(err))
	assert.False(t, ierr.IsStorageUnavailable(err))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&pq.Error{Code: "40P01"}))
	assert.True(t, IsTransient(&pq.Error{Code: "08006"}))
	assert.True(t, IsTransient(errors.Wrap(driver.ErrBadConn, "query")))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("syntax error")))
	assert.False(t, IsTransient(nil))
}

func TestDoMutationDoesNotReplayAmbiguousFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"connection reset mid statement", syscall.ECONNRESET, 1},
		{"unexpected eof", errors.Wrap(io.ErrUnexpectedEOF, "read"), 1},
		{"bad connection before send", driver.ErrBadConn, 3},
		{"serialization failure", &pq.Error{Code: "40001"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRetrier(2)
			calls := 0

			err := r.DoMutation(context.Background(), "decrement_quota", func() error {
				calls++
				return tt.err
			})

			require.Error(t, err)
			assert.True(t, ierr.IsStorageUnavailable(err))
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestDoReplaysConnectionLoss(t *testing.T) {
	r := newTestRetrier(2)
	calls := 0

	err := r.Do(context.Background(), "get_entitlement", func() error {
		calls++
		return syscall.ECONNRESET
	})

	assert.True(t, ierr.IsStorageUnavailable(err))
	assert.Equal(t, 3, calls)
}

func TestNotApplied(t *testing.T) {
	assert.True(t, NotApplied(driver.ErrBadConn))
	assert.True(t, NotApplied(&pq.Error{Code: "40P01"}))
	assert.False(t, NotApplied(syscall.ECONNRESET))
	assert.False(t, NotApplied(&pq.Error{Code: "23505"}))
	assert.False(t, NotApplied(nil))
}

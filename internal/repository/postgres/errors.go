package postgres

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// dbError marks an unexpected storage error unless it already carries a
// more specific mark from the retrier
func dbError(err error, hint string) error {
	if ierr.IsStorageUnavailable(err) {
		return err
	}
	return ierr.WithError(err).
		WithHint(hint).
		Mark(ierr.ErrDatabase)
}

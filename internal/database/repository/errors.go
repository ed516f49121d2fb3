package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicate is returned when an insert collides with an existing
	// idempotency key for the same user.
	ErrDuplicate = errors.New("duplicate transaction")
	// ErrNotFound is returned by point lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyReconciled is returned when a record was already merged into another.
	ErrAlreadyReconciled = errors.New("transaction already reconciled")
)

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// Package store holds the sentinel errors shared by every repository
// backend (postgres and memory) and the mapping from driver errors to them.
package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
)

// ConflictError reports a uniqueness violation on a named field.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return ErrConflict.Error()
	}
	return ErrConflict.Error() + ": " + e.Field
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

const uniqueViolation = "23505"

// MapUniqueViolation converts a postgres unique violation from lib/pq or pgx
// into a *ConflictError. fields maps constraint names to field names.
// Other errors are returned unchanged.
func MapUniqueViolation(err error, fields map[string]string) error {
	if err == nil {
		return nil
	}
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return err
	}
	if f, found := fields[constraint]; found {
		return &ConflictError{Field: f}
	}
	for name, f := range fields {
		if strings.Contains(constraint, name) {
			return &ConflictError{Field: f}
		}
	}
	return &ConflictError{}
}

func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pqErr.Constraint, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

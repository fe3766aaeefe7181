package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("db: not found")
	// ErrConflict is returned on unique constraint violations.
	ErrConflict = errors.New("db: conflict")
	// ErrReferenced is returned when a row is still referenced by another table.
	ErrReferenced = errors.New("db: row is referenced")
	// ErrInsufficientStock is returned when a guarded stock decrement matches no row.
	ErrInsufficientStock = errors.New("db: insufficient stock")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// ConstraintError carries the name of the violated constraint.
type ConstraintError struct {
	Constraint string
	kind       error
	cause      error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v: %s", e.kind, e.Constraint)
}

func (e *ConstraintError) Is(target error) bool { return target == e.kind }

func (e *ConstraintError) Unwrap() error { return e.cause }

// NewConstraintError builds a constraint error for the given sentinel. It is
// used by alternative Querier implementations to mirror PostgreSQL behaviour.
func NewConstraintError(kind error, constraint string) error {
	return &ConstraintError{Constraint: constraint, kind: kind}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &ConstraintError{Constraint: pgErr.ConstraintName, kind: ErrConflict, cause: err}
		case pgForeignKeyViolation:
			return &ConstraintError{Constraint: pgErr.ConstraintName, kind: ErrReferenced, cause: err}
		}
	}
	return err
}

// ConstraintName returns the violated constraint, if err carries one.
func ConstraintName(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

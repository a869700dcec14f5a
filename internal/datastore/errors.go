package datastore

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/sitesafe/hsetrack/internal/errors"
)

// Sentinel errors for repository operations. They are wrapped in categorized
// EnhancedErrors, so callers can match either the sentinel with errors.Is or
// the category with errors.IsNotFound / errors.IsConflict.
var (
	// ErrFindingNotFound indicates the requested finding does not exist.
	ErrFindingNotFound = errors.NewStd("finding not found")

	// ErrAlreadyDecided indicates the finding has left the unverified state.
	ErrAlreadyDecided = errors.NewStd("finding verification already decided")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrForeignKey indicates a row references a missing parent.
	ErrForeignKey = errors.NewStd("referenced row does not exist")

	// ErrStoreBusy indicates the database was locked or busy past its timeout.
	ErrStoreBusy = errors.NewStd("database busy")
)

// MySQL server error numbers
const (
	mysqlErrDupEntry         = 1062
	mysqlErrNoReferencedRow2 = 1452
	mysqlErrLockWaitTimeout  = 1205
	mysqlErrLockDeadlock     = 1213
)

// classifyDriverError maps driver specific failures onto the sentinel errors.
// Unknown errors are returned unchanged.
func classifyDriverError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrForeignKey
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return ErrStoreBusy
		case sqlite3.ErrConstraint:
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
				return ErrForeignKey
			}
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return ErrDuplicateKey
			}
		}
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDupEntry:
			return ErrDuplicateKey
		case mysqlErrNoReferencedRow2:
			return ErrForeignKey
		case mysqlErrLockWaitTimeout, mysqlErrLockDeadlock:
			return ErrStoreBusy
		}
	}
	return err
}

// storageError wraps a persistence failure. Context cancellation keeps its
// identity so callers can tell an aborted request from a broken store.
func storageError(err error, operation string, kv ...any) error {
	classified := classifyDriverError(err)
	wrapped := err
	if classified != err {
		wrapped = fmt.Errorf("%w: %w", classified, err)
	}

	builder := errors.New(wrapped).
		Component("datastore").
		Category(errors.CategoryStorage).
		Context("operation", operation)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		builder = builder.Priority(errors.PriorityLow)
	}

	for i := 0; i < len(kv)-1; i += 2 {
		if key, ok := kv[i].(string); ok {
			builder = builder.Context(key, kv[i+1])
		}
	}
	return builder.Build()
}

// notFoundError wraps ErrFindingNotFound with the requested id.
func notFoundError(operation string, id uint) error {
	return errors.New(ErrFindingNotFound).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("operation", operation).
		Context("finding_id", id).
		Build()
}

// conflictError reports a conditional update that lost to an earlier decision.
func conflictError(id uint) error {
	return errors.New(ErrAlreadyDecided).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("operation", "decide").
		Context("finding_id", id).
		Build()
}

// validationError creates a validation error for bad repository input
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

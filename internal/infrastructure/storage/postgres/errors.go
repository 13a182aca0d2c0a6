package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"tessera/internal/core/apperror"
)

// SQLSTATE classes and codes the engine cares about. Raw driver errors are
// translated at this boundary; callers only ever see apperror kinds.
const (
	sqlstateUniqueViolation     = "23505"
	sqlstateForeignKeyViolation = "23503"
	sqlstateSerializationFail   = "40001"
	sqlstateDeadlockDetected    = "40P01"
	sqlstateQueryCanceled       = "57014"
	sqlstateClassConnection     = "08" // connection exceptions
)

// ClassifyError translates a storage-level error into the platform error
// taxonomy: duplicates and referential violations are non-retryable business
// conflicts, serialization failures and deadlocks are retryable conflicts,
// connection failures are retryable infrastructure errors. Errors that are
// already AppError pass through unchanged.
func ClassifyError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &apperror.AppError{
			Code:       apperror.CodeTimeout,
			Message:    "Operation timed out",
			HTTPStatus: 504,
			Retryable:  true,
			Err:        err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlstateUniqueViolation:
			return apperror.NewDuplicate(entity, constraintField(pgErr), "").WithCause(err)
		case pgErr.Code == sqlstateForeignKeyViolation:
			return apperror.NewReferential(entity + " references a missing or still-referenced row").WithCause(err)
		case pgErr.Code == sqlstateSerializationFail || pgErr.Code == sqlstateDeadlockDetected:
			return apperror.NewConflict("Concurrent transaction conflict, retry the operation").WithCause(err)
		case pgErr.Code == sqlstateQueryCanceled:
			return &apperror.AppError{
				Code:       apperror.CodeTimeout,
				Message:    "Statement timed out",
				HTTPStatus: 504,
				Retryable:  true,
				Err:        err,
			}
		case strings.HasPrefix(pgErr.Code, sqlstateClassConnection):
			return apperror.NewConnection(err)
		}
	}

	if isConnectionError(err) {
		return apperror.NewConnection(err)
	}

	return apperror.NewInternal(err)
}

// constraintField guesses the conflicting column from the constraint name
// (convention: <table>_<column>_key).
func constraintField(pgErr *pgconn.PgError) string {
	name := pgErr.ConstraintName
	if name == "" {
		return "value"
	}
	parts := strings.Split(name, "_")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return name
}

func isConnectionError(err error) bool {
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"clientregistry/internal/core/apperror"
)

// SQLSTATE codes handled by MapError.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
)

// Constraint names declared by the migrations.
const (
	ConstraintClientsTaxID      = "clients_tax_id_key"
	ConstraintClientsEmail      = "ux_clients_email_lower"
	ConstraintAddressPrincipal  = "ux_client_addresses_principal"
	ConstraintAddressClientFKey = "client_addresses_client_id_fkey"
)

// UniqueViolationMapper turns a unique violation on a known constraint into an
// application error. It returns nil for constraints it does not know.
type UniqueViolationMapper func(pgErr *pgconn.PgError) *apperror.AppError

// MapError converts driver errors into the apperror taxonomy. op prefixes
// errors that stay infrastructure failures.
func MapError(err error, op string, unique UniqueViolationMapper) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if unique != nil {
				if appErr := unique(pgErr); appErr != nil {
					return appErr.WithCause(err)
				}
			}
			return apperror.NewConflict("record violates a unique constraint").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case pgForeignKeyViolation:
			return apperror.NewConflict("record is referenced by or references a missing row").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case pgCheckViolation:
			return apperror.NewValidation("record violates a check constraint").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case pgSerializationFailure, pgDeadlockDetected:
			return apperror.NewConcurrentModification(pgErr.TableName, nil).WithCause(err)
		case pgQueryCanceled:
			return timeoutError(err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound("record", nil).WithCause(err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func timeoutError(err error) *apperror.AppError {
	return &apperror.AppError{
		Code:       apperror.CodeTimeout,
		Message:    "database operation timed out",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

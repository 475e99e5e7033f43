package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marmos91/filestore/pkg/apperr"
)

// mapPgError translates a raw pgx/postgres error into a *apperr.StoreError.
// notFound is returned for pgx.ErrNoRows, since "no rows" means a
// different thing per call site (missing file, missing session, ...).
func mapPgError(err error, operation string, notFound *apperr.StoreError) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		if notFound != nil {
			return notFound
		}
		return apperr.New(apperr.ErrFileNotFound, operation+": not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgErrorCode(pgErr, operation)
	}

	return apperr.New(apperr.ErrFileStorageUnavailable, fmt.Sprintf("%s: %v", operation, err))
}

// isNoRows reports whether err is pgx.ErrNoRows, for call sites where
// "nothing found" is a valid nil-nil result rather than a StoreError.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapPgErrorCode maps PostgreSQL SQLSTATE codes to the store's error
// taxonomy. See https://www.postgresql.org/docs/current/errcodes-appendix.html
func mapPgErrorCode(pgErr *pgconn.PgError, operation string) error {
	switch pgErr.Code {
	case "23505": // unique_violation
		return apperr.New(apperr.ErrDuplicateFileExists, fmt.Sprintf("%s: already exists", operation))

	case "23503": // foreign_key_violation
		return apperr.New(apperr.ErrFileNotFound, fmt.Sprintf("%s: referenced row not found", operation))

	case "23514", "23502": // check_constraint_violation, not_null_violation
		return apperr.New(apperr.ErrInvalidArgument, fmt.Sprintf("%s: invalid value: %s", operation, pgErr.Message))

	case "40001", "40P01": // serialization_failure, deadlock_detected
		return apperr.New(apperr.ErrFileStorageUnavailable, fmt.Sprintf("%s: transaction conflict, retry", operation))

	case "08000", "08003", "08006": // connection_exception family
		return apperr.New(apperr.ErrFileStorageUnavailable, fmt.Sprintf("%s: database connection error", operation))

	default:
		return apperr.New(apperr.ErrFileStorageUnavailable, fmt.Sprintf("%s: database error [%s] %s", operation, pgErr.Code, pgErr.Message))
	}
}

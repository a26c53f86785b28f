package errors

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the column list from "Key (login)=(alice) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// constraintRule is the user-facing translation of a named schema constraint.
type constraintRule struct {
	code    ErrorCode
	field   string
	message string
}

// knownConstraints covers every named constraint in the realm account schema.
var knownConstraints = map[string]constraintRule{
	"accounts_login_key": {
		code: ErrCodeConflict, field: "login",
		message: "An account with this login already exists.",
	},
	"accounts_login_not_blank": {
		code: ErrCodeValidation, field: "login",
		message: "Login must not be blank.",
	},
	"accounts_password_required": {
		code: ErrCodeValidation, field: "password_hash",
		message: "An unlocked account needs a password hash.",
	},
	"realm_account_roles_account_id_fkey": {
		code:    ErrCodeForeignKey,
		message: "The referenced account does not exist.",
	},
	"realm_account_groups_account_id_fkey": {
		code:    ErrCodeForeignKey,
		message: "The referenced account does not exist.",
	},
}

// MapDBError turns driver and PostgreSQL errors into AppErrors.
//
// Lost connections and server shutdowns map to Unavailable so credential
// checks against the realm store fail closed. Unrecognised non-database
// errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "database request timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "database request canceled", Cause: err}
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, sql.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "not found", Cause: err}
	case errors.Is(err, sql.ErrConnDone):
		return Unavailable("database connection closed", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) {
		return Unavailable("database unreachable", err)
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	if rule, ok := knownConstraints[pgErr.ConstraintName]; ok {
		return &AppError{Code: rule.code, Message: rule.message, Field: rule.field, Cause: pgErr}
	}

	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "This value already exists.",
			Field:   conflictField(pgErr),
			Cause:   pgErr,
		}
	case pgErr.Code == pgerrcode.ForeignKeyViolation:
		return &AppError{Code: ErrCodeForeignKey, Message: "The referenced record does not exist.", Cause: pgErr}
	case pgErr.Code == pgerrcode.CheckViolation, pgErr.Code == pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "Invalid value.", Field: pgErr.ColumnName, Cause: pgErr}
	case pgErr.Code == pgerrcode.QueryCanceled:
		return &AppError{Code: ErrCodeTimeout, Message: "database request timed out", Cause: pgErr}
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code),
		pgErr.Code == pgerrcode.AdminShutdown,
		pgErr.Code == pgerrcode.CrashShutdown,
		pgErr.Code == pgerrcode.CannotConnectNow:
		return Unavailable("database unavailable", pgErr)
	default:
		return &AppError{Code: ErrCodeInternal, Message: "A database error occurred.", Cause: pgErr}
	}
}

// conflictField names the offending column of a unique violation.
// Multi-column keys yield an empty field.
func conflictField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	m := reKeyField.FindStringSubmatch(pgErr.Detail)
	if len(m) != 2 || strings.Contains(m[1], ",") {
		return ""
	}
	return strings.TrimSpace(m[1])
}

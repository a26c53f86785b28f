package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBError_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{name: "deadline", err: context.DeadlineExceeded, code: ErrCodeTimeout},
		{name: "wrapped cancel", err: fmt.Errorf("query: %w", context.Canceled), code: ErrCodeCanceled},
		{name: "pgx no rows", err: pgx.ErrNoRows, code: ErrCodeNotFound},
		{name: "sql no rows", err: sql.ErrNoRows, code: ErrCodeNotFound},
		{name: "conn done", err: sql.ErrConnDone, code: ErrCodeUnavailable},
		{name: "net error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, code: ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDBError(tt.err)
			assert.Equal(t, tt.code, GetCode(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	require.NoError(t, MapDBError(nil))

	plain := errors.New("not a database error")
	assert.Same(t, plain, MapDBError(plain))
}

func TestMapDBError_KnownConstraints(t *testing.T) {
	tests := []struct {
		constraint string
		pgCode     string
		code       ErrorCode
		field      string
	}{
		{constraint: "accounts_login_key", pgCode: pgerrcode.UniqueViolation, code: ErrCodeConflict, field: "login"},
		{constraint: "accounts_login_not_blank", pgCode: pgerrcode.CheckViolation, code: ErrCodeValidation, field: "login"},
		{
			constraint: "accounts_password_required", pgCode: pgerrcode.CheckViolation,
			code: ErrCodeValidation, field: "password_hash",
		},
		{constraint: "realm_account_roles_account_id_fkey", pgCode: pgerrcode.ForeignKeyViolation, code: ErrCodeForeignKey},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.pgCode, ConstraintName: tt.constraint}
			got := MapDBError(fmt.Errorf("exec: %w", pgErr))

			var appErr *AppError
			require.ErrorAs(t, got, &appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.field, appErr.Field)
			assert.NotEmpty(t, appErr.Message)
			assert.ErrorIs(t, got, pgErr)
		})
	}
}

func TestMapDBError_GenericPgCodes(t *testing.T) {
	tests := []struct {
		name  string
		err   *pgconn.PgError
		code  ErrorCode
		field string
	}{
		{
			name:  "unique from detail",
			err:   &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (email)=(a@b) already exists."},
			code:  ErrCodeConflict,
			field: "email",
		},
		{
			name: "unique multi column",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (account_id, role)=(1, x) already exists."},
			code: ErrCodeConflict,
		},
		{
			name:  "unique column metadata",
			err:   &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "login"},
			code:  ErrCodeConflict,
			field: "login",
		},
		{name: "fk", err: &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, code: ErrCodeForeignKey},
		{
			name:  "not null",
			err:   &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "role"},
			code:  ErrCodeValidation,
			field: "role",
		},
		{name: "statement timeout", err: &pgconn.PgError{Code: pgerrcode.QueryCanceled}, code: ErrCodeTimeout},
		{name: "admin shutdown", err: &pgconn.PgError{Code: pgerrcode.AdminShutdown}, code: ErrCodeUnavailable},
		{name: "connection failure", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, code: ErrCodeUnavailable},
		{name: "too many connections", err: &pgconn.PgError{Code: pgerrcode.TooManyConnections}, code: ErrCodeUnavailable},
		{name: "syntax", err: &pgconn.PgError{Code: pgerrcode.SyntaxError}, code: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDBError(tt.err)
			assert.Equal(t, tt.code, GetCode(got))
			assert.Equal(t, tt.field, GetField(got))
		})
	}
}

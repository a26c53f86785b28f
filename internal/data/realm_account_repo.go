package data

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-sessions/internal/data/pgxutil"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/ports"
)

// RealmAccountRepo stores realm accounts in Postgres.
type RealmAccountRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ ports.PrincipalStore = (*RealmAccountRepo)(nil)

// upsertRetries covers deadlocks between concurrent upserts of the same login.
const upsertRetries = 2

// NewRealmAccountRepo creates a new RealmAccountRepo with real time provider.
func NewRealmAccountRepo(db *sql.DB) *RealmAccountRepo {
	return &RealmAccountRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewRealmAccountRepoWithTimeProvider creates a RealmAccountRepo with a custom time provider (useful for tests).
func NewRealmAccountRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *RealmAccountRepo {
	return &RealmAccountRepo{DB: db, timeProvider: tp}
}

const realmAccountSelect = `
	SELECT a.login, a.password_hash, a.locked,
	       COALESCE((SELECT array_agg(r.role ORDER BY r.role)
	                 FROM realm_account_roles r WHERE r.account_id = a.id), '{}') AS roles,
	       COALESCE((SELECT array_agg(g.group_name ORDER BY g.group_name)
	                 FROM realm_account_groups g WHERE g.account_id = a.id), '{}') AS groups
	FROM realm_accounts a`

type realmAccountRow struct {
	Login        string   `db:"login"`
	PasswordHash string   `db:"password_hash"`
	Locked       bool     `db:"locked"`
	Roles        []string `db:"roles"`
	Groups       []string `db:"groups"`
}

func (r realmAccountRow) toDomain() domainauth.RealmAccount {
	return domainauth.RealmAccount{
		Login:        r.Login,
		PasswordHash: r.PasswordHash,
		Roles:        r.Roles,
		Groups:       r.Groups,
		Locked:       r.Locked,
	}
}

// Lookup returns the account for login, or a NotFound AppError.
func (r *RealmAccountRepo) Lookup(ctx context.Context, login string) (domainauth.RealmAccount, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return domainauth.RealmAccount{}, apperrors.NotFound("account not found")
	}

	var row realmAccountRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, realmAccountSelect+` WHERE a.login = $1`, login)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[realmAccountRow])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainauth.RealmAccount{}, apperrors.NotFound("account not found")
		}
		return domainauth.RealmAccount{}, apperrors.MapDBError(err)
	}
	return row.toDomain(), nil
}

// List returns all accounts ordered by login.
func (r *RealmAccountRepo) List(ctx context.Context) ([]domainauth.RealmAccount, error) {
	var out []domainauth.RealmAccount
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, realmAccountSelect+` ORDER BY a.login`)
		if err != nil {
			return err
		}
		defer rows.Close()
		accts, err := pgx.CollectRows(rows, pgx.RowToStructByName[realmAccountRow])
		if err != nil {
			return err
		}
		out = make([]domainauth.RealmAccount, 0, len(accts))
		for _, a := range accts {
			out = append(out, a.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// Upsert creates or replaces an account with its roles and groups.
func (r *RealmAccountRepo) Upsert(ctx context.Context, acct domainauth.RealmAccount) error {
	acct.Login = strings.TrimSpace(acct.Login)
	if acct.Login == "" {
		return apperrors.ValidationField("login", "login is required")
	}
	if acct.PasswordHash == "" && !acct.Locked {
		return apperrors.ValidationField("password_hash", "password hash is required for unlocked accounts")
	}
	now := r.timeProvider.Now().UTC()

	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Retries: upsertRetries, Fn: func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO realm_accounts (login, password_hash, locked, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (login) DO UPDATE
			SET password_hash = EXCLUDED.password_hash,
			    locked = EXCLUDED.locked,
			    updated_at = EXCLUDED.updated_at
			RETURNING id`,
			acct.Login, acct.PasswordHash, acct.Locked, now,
		).Scan(&id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM realm_account_roles WHERE account_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM realm_account_groups WHERE account_id = $1`, id); err != nil {
			return err
		}
		for _, role := range domainauth.NormalizeRoles(acct.Roles) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO realm_account_roles (account_id, role) VALUES ($1, $2)`, id, role); err != nil {
				return err
			}
		}
		for _, g := range domainauth.NormalizeRoles(acct.Groups) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO realm_account_groups (account_id, group_name) VALUES ($1, $2)`, id, g); err != nil {
				return err
			}
		}
		return nil
	}})
	return apperrors.MapDBError(err)
}

// SetLocked locks or unlocks an account.
func (r *RealmAccountRepo) SetLocked(ctx context.Context, login string, locked bool) error {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE realm_accounts SET locked = $2, updated_at = $3 WHERE login = $1`,
			strings.TrimSpace(login), locked, r.timeProvider.Now().UTC())
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if affected == 0 {
		return apperrors.NotFound("account not found")
	}
	return nil
}

// Delete removes an account. Roles and groups cascade.
func (r *RealmAccountRepo) Delete(ctx context.Context, login string) (bool, error) {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM realm_accounts WHERE login = $1`, strings.TrimSpace(login))
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return affected > 0, nil
}

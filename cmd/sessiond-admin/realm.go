package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-sessions/internal/data"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	"golang.org/x/crypto/bcrypt"
)

type realmAccountStore interface {
	List(ctx context.Context) ([]domainauth.RealmAccount, error)
	Upsert(ctx context.Context, acct domainauth.RealmAccount) error
	SetLocked(ctx context.Context, login string, locked bool) error
	Delete(ctx context.Context, login string) (bool, error)
}

type realmUpsertOptions struct {
	Login         string
	Roles         string
	Groups        string
	Hash          string
	PasswordStdin bool
	Locked        bool
	Cost          int
	Timeout       time.Duration
}

type realmLoginOptions struct {
	Login   string
	Yes     bool
	Timeout time.Duration
}

func withRealmStore(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, realmAccountStore) error,
) error {
	return withDatabase(cmdCtx, timeout, func(ctx context.Context, db *sql.DB) error {
		return f(ctx, data.NewRealmAccountRepo(db))
	})
}

func runRealmList(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("realm-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Maximum duration to wait for the database")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withRealmStore(cmdCtx, *timeout, func(ctx context.Context, store realmAccountStore) error {
		return listRealmAccounts(ctx, store, cmdCtx.out())
	})
}

func listRealmAccounts(ctx context.Context, store realmAccountStore, w io.Writer) error {
	accts, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(accts) == 0 {
		return writeln(w, "No realm accounts.")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err = writeln(tw, "LOGIN\tROLES\tGROUPS\tLOCKED"); err != nil {
		return err
	}
	for _, a := range accts {
		if err = writef(tw, "%s\t%s\t%s\t%t\n",
			a.Login,
			dashIfEmpty(strings.Join(a.Roles, ",")),
			dashIfEmpty(strings.Join(a.Groups, ",")),
			a.Locked,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runRealmUpsert(cmdCtx *commandContext, args []string) error {
	opts, err := parseRealmUpsertFlags(args)
	if err != nil {
		return err
	}
	acct, err := buildRealmAccount(opts, cmdCtx.in())
	if err != nil {
		return err
	}

	return withRealmStore(cmdCtx, opts.Timeout, func(ctx context.Context, store realmAccountStore) error {
		if upErr := store.Upsert(ctx, acct); upErr != nil {
			return fmt.Errorf("upsert account: %w", upErr)
		}
		cmdCtx.Logger.Info("realm account saved", "login", acct.Login, "locked", acct.Locked)
		return nil
	})
}

func buildRealmAccount(opts realmUpsertOptions, stdin io.Reader) (domainauth.RealmAccount, error) {
	acct := domainauth.RealmAccount{
		Login:        strings.TrimSpace(opts.Login),
		PasswordHash: strings.TrimSpace(opts.Hash),
		Roles:        domainauth.NormalizeRoles(strings.Split(opts.Roles, ",")),
		Groups:       domainauth.NormalizeRoles(strings.Split(opts.Groups, ",")),
		Locked:       opts.Locked,
	}
	if opts.PasswordStdin {
		password, err := readSecretLine(stdin)
		if err != nil {
			return domainauth.RealmAccount{}, err
		}
		if acct.PasswordHash, err = hashPassword(password, opts.Cost); err != nil {
			return domainauth.RealmAccount{}, err
		}
	}
	if acct.PasswordHash == "" && !acct.Locked {
		return domainauth.RealmAccount{}, errors.New("one of --hash or --password-stdin is required for unlocked accounts")
	}
	return acct, nil
}

func parseRealmUpsertFlags(args []string) (realmUpsertOptions, error) {
	fs := flag.NewFlagSet("realm-upsert", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := realmUpsertOptions{}
	fs.StringVar(&opts.Login, "login", "", "Account login (required)")
	fs.StringVar(&opts.Roles, "roles", "", "Comma separated roles")
	fs.StringVar(&opts.Groups, "groups", "", "Comma separated groups")
	fs.StringVar(&opts.Hash, "hash", "", "Pre-computed bcrypt hash")
	fs.BoolVar(&opts.PasswordStdin, "password-stdin", false, "Read the plain password from stdin and hash it")
	fs.BoolVar(&opts.Locked, "locked", false, "Create the account locked")
	fs.IntVar(&opts.Cost, "cost", bcrypt.DefaultCost, "bcrypt work factor used with --password-stdin")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration to wait for the database")

	if err := fs.Parse(args); err != nil {
		return realmUpsertOptions{}, err
	}
	if strings.TrimSpace(opts.Login) == "" {
		return realmUpsertOptions{}, errors.New("--login is required")
	}
	if opts.Hash != "" && opts.PasswordStdin {
		return realmUpsertOptions{}, errors.New("--hash and --password-stdin are mutually exclusive")
	}
	if opts.Timeout <= 0 {
		return realmUpsertOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseRealmLoginFlags(name string, args []string) (realmLoginOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := realmLoginOptions{}
	fs.StringVar(&opts.Login, "login", "", "Account login (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration to wait for the database")

	if err := fs.Parse(args); err != nil {
		return realmLoginOptions{}, err
	}
	opts.Login = strings.TrimSpace(opts.Login)
	if opts.Login == "" {
		return realmLoginOptions{}, errors.New("--login is required")
	}
	if opts.Timeout <= 0 {
		return realmLoginOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runRealmLock(cmdCtx *commandContext, args []string) error {
	return setRealmLocked(cmdCtx, "realm-lock", args, true)
}

func runRealmUnlock(cmdCtx *commandContext, args []string) error {
	return setRealmLocked(cmdCtx, "realm-unlock", args, false)
}

func setRealmLocked(cmdCtx *commandContext, name string, args []string, locked bool) error {
	opts, err := parseRealmLoginFlags(name, args)
	if err != nil {
		return err
	}
	return withRealmStore(cmdCtx, opts.Timeout, func(ctx context.Context, store realmAccountStore) error {
		if lockErr := store.SetLocked(ctx, opts.Login, locked); lockErr != nil {
			return fmt.Errorf("update account: %w", lockErr)
		}
		cmdCtx.Logger.Info("realm account updated", "login", opts.Login, "locked", locked)
		return nil
	})
}

func runRealmDelete(cmdCtx *commandContext, args []string) error {
	opts, err := parseRealmLoginFlags("realm-delete", args)
	if err != nil {
		return err
	}
	confirmOpts := realmDeleteConfirmOptions{yes: opts.Yes, login: opts.Login}
	if confirmErr := confirmAction(cmdCtx, confirmOpts, "delete realm account"); confirmErr != nil {
		return confirmErr
	}

	return withRealmStore(cmdCtx, opts.Timeout, func(ctx context.Context, store realmAccountStore) error {
		return deleteRealmAccount(ctx, store, opts.Login, cmdCtx.out())
	})
}

func deleteRealmAccount(ctx context.Context, store realmAccountStore, login string, w io.Writer) error {
	deleted, err := store.Delete(ctx, login)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if !deleted {
		return fmt.Errorf("account %q not found", login)
	}
	return writef(w, "Deleted realm account %q.\n", login)
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/target/mmk-sessions/config"
	"github.com/target/mmk-sessions/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdin  io.Reader
	Stdout io.Writer
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"db-reset": {
			name:        "db-reset",
			description: "Drop the database schema and re-run migrations",
			run:         runDBReset,
		},
		"hash-password": {
			name:        "hash-password",
			description: "Read a password from stdin and print its bcrypt hash",
			run:         runHashPassword,
		},
		"issue-token": {
			name:        "issue-token",
			description: "Issue a signed session token for a subject",
			run:         runIssueToken,
		},
		"verify-token": {
			name:        "verify-token",
			description: "Verify a session token and print its claims",
			run:         runVerifyToken,
		},
		"list-sessions": {
			name:        "list-sessions",
			description: "List live sessions mirrored into the Redis directory",
			run:         runListSessions,
		},
		"realm-list": {
			name:        "realm-list",
			description: "List realm accounts stored in Postgres",
			run:         runRealmList,
		},
		"realm-upsert": {
			name:        "realm-upsert",
			description: "Create or replace a realm account in Postgres",
			run:         runRealmUpsert,
		},
		"realm-lock": {
			name:        "realm-lock",
			description: "Lock a realm account",
			run:         runRealmLock,
		},
		"realm-unlock": {
			name:        "realm-unlock",
			description: "Unlock a realm account",
			run:         runRealmUnlock,
		},
		"realm-delete": {
			name:        "realm-delete",
			description: "Delete a realm account",
			run:         runRealmDelete,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: sessiond-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func (cmdCtx *commandContext) out() io.Writer {
	if cmdCtx.Stdout == nil {
		return os.Stdout
	}
	return cmdCtx.Stdout
}

func (cmdCtx *commandContext) in() io.Reader {
	if cmdCtx.Stdin == nil {
		return os.Stdin
	}
	return cmdCtx.Stdin
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}

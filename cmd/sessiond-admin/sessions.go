package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	redisadapter "github.com/target/mmk-sessions/internal/adapters/redis"
)

type listSessionsOptions struct {
	Prefix  string
	Subject string
	Timeout time.Duration
}

func runListSessions(cmdCtx *commandContext, args []string) error {
	opts, err := parseListSessionsFlags(args, cmdCtx.Config.Session.DirectoryPrefix)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	_, client, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(nil, client); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	dir := redisadapter.NewSessionDirectoryWithPrefix(client, opts.Prefix)
	return listSessions(ctx, dir, opts, cmdCtx.out())
}

type sessionLister interface {
	List(ctx context.Context) ([]redisadapter.DirectoryEntry, error)
}

func listSessions(ctx context.Context, dir sessionLister, opts listSessionsOptions, w io.Writer) error {
	entries, err := dir.List(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if opts.Subject != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Subject == opts.Subject {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return renderSessions(w, entries)
}

func renderSessions(w io.Writer, entries []redisadapter.DirectoryEntry) error {
	if len(entries) == 0 {
		return writeln(w, "No live sessions.")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "NAME\tSUBJECT\tSTATE\tCREATED\tLAST ACCESS\tCLIENT IP\tNODE"); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name,
			e.Subject,
			e.State,
			renderTime(e.CreatedAt),
			renderTime(e.LastAccess),
			dashIfEmpty(e.ClientIP),
			renderNode(e.ClusterNode),
		); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "\n%d session(s)\n", len(entries))
}

func renderTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func renderNode(cluster bool) string {
	if cluster {
		return "cluster"
	}
	return "local"
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func parseListSessionsFlags(args []string, defaultPrefix string) (listSessionsOptions, error) {
	fs := flag.NewFlagSet("list-sessions", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listSessionsOptions{}
	fs.StringVar(&opts.Prefix, "prefix", defaultPrefix, "Redis key prefix of the session directory")
	fs.StringVar(&opts.Subject, "subject", "", "Only show sessions owned by this subject")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration to wait for Redis")

	if err := fs.Parse(args); err != nil {
		return listSessionsOptions{}, err
	}
	if opts.Prefix == "" {
		return listSessionsOptions{}, errors.New("--prefix must not be empty")
	}
	if opts.Timeout <= 0 {
		return listSessionsOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/target/mmk-sessions/internal/bootstrap"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	"golang.org/x/crypto/bcrypt"
)

type hashPasswordOptions struct {
	Cost int
}

type issueTokenOptions struct {
	Subject string
	Roles   string
}

func runHashPassword(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := hashPasswordOptions{}
	fs.IntVar(&opts.Cost, "cost", bcrypt.DefaultCost, "bcrypt work factor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.Cost < bcrypt.MinCost || opts.Cost > bcrypt.MaxCost {
		return fmt.Errorf("--cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	password, err := readSecretLine(cmdCtx.in())
	if err != nil {
		return err
	}
	hash, err := hashPassword(password, opts.Cost)
	if err != nil {
		return err
	}
	return writeln(cmdCtx.out(), hash)
}

func hashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// readSecretLine returns the first line of r without its line terminator.
func readSecretLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no input on stdin")
	}
	return line, nil
}

func runIssueToken(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := issueTokenOptions{}
	fs.StringVar(&opts.Subject, "subject", "", "Subject the token is issued for (required)")
	fs.StringVar(&opts.Roles, "roles", "", "Comma separated roles carried in the role claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(opts.Subject) == "" {
		return errors.New("--subject is required")
	}

	tc, err := bootstrap.NewTokenContext(cmdCtx.Config.Auth.Token)
	if err != nil {
		return fmt.Errorf("token context: %w", err)
	}
	role := strings.Join(domainauth.NormalizeRoles(strings.Split(opts.Roles, ",")), ",")
	raw, err := tc.Issue(strings.TrimSpace(opts.Subject), role)
	if err != nil {
		return err
	}
	return writeln(cmdCtx.out(), raw)
}

func runVerifyToken(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("verify-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var raw string
	switch fs.NArg() {
	case 0:
		line, err := readSecretLine(cmdCtx.in())
		if err != nil {
			return err
		}
		raw = line
	case 1:
		raw = fs.Arg(0)
	default:
		return errors.New("verify-token accepts at most one token argument")
	}

	tc, err := bootstrap.NewTokenContext(cmdCtx.Config.Auth.Token)
	if err != nil {
		return fmt.Errorf("token context: %w", err)
	}
	claims, err := tc.Verify(raw)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}

	enc := json.NewEncoder(cmdCtx.out())
	enc.SetIndent("", "  ")
	return enc.Encode(claims)
}

package devauth

// Package devauth provides the dummy credential backend for local development and tests.

import (
	"context"
	"errors"
	"strings"

	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	"github.com/target/mmk-sessions/internal/ports"
)

// Config controls the placeholder identity handed out by the backend.
type Config struct {
	// UserID is used when a connect request names no subject.
	UserID string
	Roles  []string
}

// Backend implements ports.CredentialBackend and accepts every credential.
// Never select it outside local/no-auth configurations.
type Backend struct {
	placeholder domainauth.Subject
}

var _ ports.CredentialBackend = (*Backend)(nil)

// NewBackend constructs a dummy backend from Config.
func NewBackend(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	return &Backend{placeholder: domainauth.NewSubject(cfg.UserID, cfg.Roles...)}, nil
}

func (b *Backend) Policy() domainauth.Policy { return domainauth.PolicyDummy }

// Verify returns an authenticated session for subjectID, or for the
// placeholder identity when subjectID is empty. The credential is ignored.
func (b *Backend) Verify(_ context.Context, subjectID, _ string) (ports.BackendSession, error) {
	subject := b.placeholder
	if subjectID = strings.TrimSpace(subjectID); subjectID != "" {
		subject = domainauth.NewSubject(subjectID, b.placeholder.Roles...)
	}
	return session{subject: subject}, nil
}

type session struct {
	subject domainauth.Subject
}

func (s session) Subject() domainauth.Subject { return s.subject }

func (s session) Authenticated() bool { return true }

func (s session) CheckCredential(context.Context, string) error { return nil }

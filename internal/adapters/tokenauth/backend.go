// Package tokenauth implements the signed-token credential backend.
package tokenauth

import (
	"context"
	"strings"
	"sync"

	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/ports"
	"github.com/target/mmk-sessions/internal/token"
)

// Verifier is the subset of *token.Context the backend needs.
type Verifier interface {
	Verify(raw string) (domainauth.TokenClaims, error)
}

var _ Verifier = (*token.Context)(nil)

// Backend authenticates bearers of a valid token. The subject comes from
// the sub claim and roles from the role claim.
type Backend struct {
	verifier Verifier
}

var _ ports.CredentialBackend = (*Backend)(nil)

// NewBackend constructs a token Backend.
func NewBackend(v Verifier) (*Backend, error) {
	if v == nil {
		return nil, apperrors.Configuration("token backend: verifier is required", nil)
	}
	return &Backend{verifier: v}, nil
}

func (b *Backend) Policy() domainauth.Policy { return domainauth.PolicyToken }

// Verify checks raw and, when subjectID is supplied, that it names the token subject.
func (b *Backend) Verify(_ context.Context, subjectID, raw string) (ports.BackendSession, error) {
	claims, err := b.check(subjectID, raw)
	if err != nil {
		return nil, err
	}
	return &session{backend: b, claims: claims, authenticated: true}, nil
}

func (b *Backend) check(subjectID, raw string) (domainauth.TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domainauth.TokenClaims{}, apperrors.InvalidCredential(apperrors.ReasonMissingCredential, nil)
	}
	claims, err := b.verifier.Verify(raw)
	if err != nil {
		return domainauth.TokenClaims{}, apperrors.InvalidCredential(token.Reason(err), err)
	}
	if subjectID = strings.TrimSpace(subjectID); subjectID != "" && subjectID != claims.Subject {
		return domainauth.TokenClaims{}, apperrors.InvalidCredential(apperrors.ReasonSubjectMismatch, nil)
	}
	return claims, nil
}

type session struct {
	backend *Backend

	mu            sync.Mutex
	claims        domainauth.TokenClaims
	authenticated bool
}

func (s *session) Subject() domainauth.Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	subj := domainauth.NewSubject(s.claims.Subject, s.claims.Roles()...)
	subj.Credentials = s.claims
	return subj
}

func (s *session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// CheckCredential accepts a fresh token for the same subject, which also
// refreshes the roles carried by the session.
func (s *session) CheckCredential(_ context.Context, raw string) error {
	s.mu.Lock()
	sub := s.claims.Subject
	s.mu.Unlock()

	claims, err := s.backend.check(sub, raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.authenticated = false
		return err
	}
	s.claims = claims
	s.authenticated = true
	return nil
}

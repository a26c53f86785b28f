// Package mocks provides gomock implementations of the auth ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	tracker := mocks.NewMockAttemptTracker(ctrl)
//	tracker.EXPECT().Blocked(gomock.Any(), "alice").Return(false, nil)
//
// Hand-written fakes with real behavior live in internal/mocks/auth.
package mocks

// Generate mocks for the credential and session ports from internal/ports:
// AttemptTracker, BackendSession, CredentialBackend, PrincipalStore, SessionListener
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/mmk-sessions/internal/ports AttemptTracker,BackendSession,CredentialBackend,PrincipalStore,SessionListener

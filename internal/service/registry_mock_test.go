package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/mocks"
	"github.com/target/mmk-sessions/internal/ports"
	"go.uber.org/mock/gomock"
)

func newMockRegistry(t *testing.T) (*SessionRegistry, *mocks.MockCredentialBackend, *mocks.MockSessionListener) {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockCredentialBackend(ctrl)
	listener := mocks.NewMockSessionListener(ctrl)
	reg, err := NewSessionRegistry(RegistryOptions{
		Backend:   backend,
		Listeners: []ports.SessionListener{listener},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return reg, backend, listener
}

func TestRegistry_RejectedCredentialEmitsNoEvents(t *testing.T) {
	reg, backend, listener := newMockRegistry(t)
	backend.EXPECT().
		Verify(gomock.Any(), "alice", "bad").
		Return(nil, apperrors.InvalidCredential(apperrors.ReasonBadCredential, nil))
	listener.EXPECT().OnSessionEvent(gomock.Any(), gomock.Any()).Times(0)

	_, err := reg.Connect(context.Background(), domainauth.ConnectProperties{UserID: "alice", Credential: "bad"})
	assert.Equal(t, apperrors.ReasonBadCredential, apperrors.GetReason(err))
	assert.Zero(t, reg.Len())
}

func TestRegistry_EmptySubjectIsInternalError(t *testing.T) {
	reg, backend, _ := newMockRegistry(t)
	bs := mocks.NewMockBackendSession(gomock.NewController(t))
	bs.EXPECT().Subject().Return(domainauth.Subject{})
	backend.EXPECT().Verify(gomock.Any(), "alice", "pw").Return(bs, nil)

	_, err := reg.Connect(context.Background(), domainauth.ConnectProperties{UserID: "alice", Credential: "pw"})
	assert.True(t, apperrors.IsInternal(err), "got %v", err)
}

func TestRegistry_ListenerErrorDoesNotFailConnect(t *testing.T) {
	reg, backend, listener := newMockRegistry(t)
	bs := mocks.NewMockBackendSession(gomock.NewController(t))
	bs.EXPECT().Subject().Return(domainauth.NewSubject("alice", "doctor")).AnyTimes()
	backend.EXPECT().Verify(gomock.Any(), "alice", "pw").Return(bs, nil)
	listener.EXPECT().
		OnSessionEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, evt domainauth.SessionEvent) error {
			assert.Equal(t, domainauth.EventConnected, evt.Type)
			return errors.New("directory unavailable")
		})

	sess, err := reg.Connect(context.Background(), domainauth.ConnectProperties{UserID: "alice", Credential: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "alice-1", sess.Name)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_ReconnectRechecksStoredBackendSession(t *testing.T) {
	reg, backend, listener := newMockRegistry(t)
	bs := mocks.NewMockBackendSession(gomock.NewController(t))
	bs.EXPECT().Subject().Return(domainauth.NewSubject("alice")).AnyTimes()
	backend.EXPECT().Verify(gomock.Any(), "alice", "pw").Return(bs, nil).Times(1)
	listener.EXPECT().OnSessionEvent(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	ctx := context.Background()
	first, err := reg.Connect(ctx, domainauth.ConnectProperties{UserID: "alice", Credential: "pw"})
	require.NoError(t, err)

	bs.EXPECT().CheckCredential(gomock.Any(), "pw").Return(nil)
	again, err := reg.Connect(ctx, domainauth.ConnectProperties{
		UserID:          "alice",
		Credential:      "pw",
		SecretSessionID: first.SecretID,
	})
	require.NoError(t, err)
	assert.True(t, again.Reconnected)
	assert.Equal(t, first.Name, again.Name)
}

package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	apperrors "github.com/target/mmk-sessions/internal/errors"
)

func TestStatusForError(t *testing.T) {
	tcs := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{apperrors.InvalidCredential(apperrors.ReasonBadCredential, nil), http.StatusUnauthorized},
		{apperrors.AccountLocked(), http.StatusLocked},
		{apperrors.TooManyAttempts(), http.StatusTooManyRequests},
		{apperrors.SessionNotFound(), http.StatusNotFound},
		{apperrors.TooManySessions(1), http.StatusConflict},
		{apperrors.ReconnectDenied(apperrors.ReasonClientMismatch), http.StatusForbidden},
		{apperrors.ValidationField("MAX_SESSION", "bad"), http.StatusBadRequest},
		{apperrors.Unavailable("store down", nil), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", apperrors.SessionNotFound()), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, StatusForError(tc.err), "%v", tc.err)
	}
}

func TestWriteAppError_HidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, apperrors.Unavailable("credential store unavailable", errors.New("dial tcp 10.0.0.5:5432")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"unavailable","message":"credential store unavailable"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteAppError(rec, errors.New("secret internals"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal","message":"internal error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteAppError(rec, apperrors.TooManyAttempts())
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

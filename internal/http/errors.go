package httpx

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/target/mmk-sessions/internal/errors"
)

//nolint:gochecknoglobals // static read-only lookup
var statusByCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeInvalidCredential: http.StatusUnauthorized,
	apperrors.ErrCodeAccountLocked:     http.StatusLocked,
	apperrors.ErrCodeTooManyAttempts:   http.StatusTooManyRequests,
	apperrors.ErrCodeSessionNotFound:   http.StatusNotFound,
	apperrors.ErrCodeNotFound:          http.StatusNotFound,
	apperrors.ErrCodeTooManySessions:   http.StatusConflict,
	apperrors.ErrCodeConflict:          http.StatusConflict,
	apperrors.ErrCodeReconnectDenied:   http.StatusForbidden,
	apperrors.ErrCodeValidation:        http.StatusBadRequest,
	apperrors.ErrCodeUnavailable:       http.StatusServiceUnavailable,
	apperrors.ErrCodeTimeout:           http.StatusGatewayTimeout,
}

// StatusForError maps an error onto the HTTP status returned to clients.
func StatusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if status, ok := statusByCode[apperrors.GetCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAppError renders err as {"error": code, "message": message}.
// Only the generic AppError message is exposed; causes and reasons stay in logs.
func WriteAppError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	var appErr *apperrors.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		WriteError(w, ErrorParams{Code: status, ErrCode: string(apperrors.ErrCodeInternal), Message: "internal error"})
		return
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: string(appErr.Code), Message: appErr.Message, Field: appErr.Field})
}

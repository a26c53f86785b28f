// Package errors maps arbitrary errors onto bounded metric labels.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/mmk-sessions/internal/errors"
)

// Unclassified is the code label for errors that carry no AppError code.
const Unclassified = "unclassified"

// Labels is the code/reason pair attached to failure counters.
type Labels struct {
	Code   string
	Reason string
}

// Classify returns labels for err. AppErrors contribute their code and reason.
// Context errors map to timeout and canceled. Anything else is labelled by its
// innermost concrete type.
func Classify(err error) Labels {
	if err == nil {
		return Labels{}
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) {
		return Labels{Code: string(appErr.Code), Reason: string(apperrors.GetReason(err))}
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return Labels{Code: string(apperrors.ErrCodeTimeout)}
	case goerrors.Is(err, context.Canceled):
		return Labels{Code: string(apperrors.ErrCodeCanceled)}
	}

	return Labels{Code: Unclassified, Reason: TypeName(err)}
}

// TypeName returns the snake-cased type of the innermost wrapped error.
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}

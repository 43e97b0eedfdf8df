// Package apperr defines the error taxonomy shared by the pipelines and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Transient failure markers. Producers wrap them with %w so the retry controller can classify.
var (
	// ErrRateLimited marks an explicit "too many requests" answer from the generation service.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedOutput marks a response that did not parse as the expected structure.
	ErrMalformedOutput = errors.New("malformed output")
	// ErrConflict marks a create that lost a uniqueness race.
	ErrConflict = errors.New("already exists")
)

// Kind classifies an Error for callers.
type Kind string

const (
	KindInput        Kind = "input"
	KindValidation   Kind = "validation"
	KindGeneration   Kind = "generation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

// Status returns the HTTP status class for the kind.
func (k Kind) Status() int {
	switch k {
	case KindInput, KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Code is a translation message id, Message a
// human readable reason that is safe to show, Err the underlying cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if msg == "" {
		return string(e.Kind) + " error"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error.
func New(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Input reports missing or unusable caller input. It is never retried.
func Input(code, message string) *Error {
	return New(KindInput, code, message, nil)
}

// Validation reports generated content that violates the quiz contract.
func Validation(message string) *Error {
	return New(KindValidation, "ErrQuizInvalid", message, nil)
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// Generation reports a generation service failure after the retry budget is spent.
func Generation(message string, err error) *Error {
	return New(KindGeneration, "ErrGeneration", message, err)
}

// NotFound reports a missing course or artifact.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Recode returns err with its code replaced when it carries an *Error of the
// given kind. Other errors are returned unchanged.
func Recode(err error, kind Kind, code string) error {
	var e *Error
	if !errors.As(err, &e) || e.Kind != kind {
		return err
	}
	return &Error{Kind: e.Kind, Code: code, Message: e.Message, Err: e.Err}
}

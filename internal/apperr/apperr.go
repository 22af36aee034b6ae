package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so the transport layer can pick a status code and message.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "resource_not_found"
	KindSlotConflict        Kind = "slot_conflict"
	KindStationOccupied     Kind = "station_occupied"
	KindSessionNotFound     Kind = "session_not_found"
	KindSessionAlreadyEnded Kind = "session_already_ended"
	KindInvalidTransition   Kind = "invalid_transition"
	KindUnauthorized        Kind = "unauthorized"
	KindStoreUnavailable    Kind = "store_unavailable"
)

// Error is the error type returned by the scheduling core and the store.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors that carry no kind are reported as store failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreUnavailable
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto an HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound, KindSessionNotFound:
		return http.StatusNotFound
	case KindSlotConflict, KindStationOccupied, KindSessionAlreadyEnded, KindInvalidTransition:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

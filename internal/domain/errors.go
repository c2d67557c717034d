package domain

import "errors"

// Error kinds. Concrete errors wrap one of these so callers can use errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
	ErrGateway      = errors.New("payment gateway error")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func InvalidState(msg string) error {
	return &Error{Kind: ErrInvalidState, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Message: msg}
}

func Gateway(msg string) error {
	return &Error{Kind: ErrGateway, Message: msg}
}

func InvalidInput(msg string) error {
	return &Error{Kind: ErrInvalidInput, Message: msg}
}

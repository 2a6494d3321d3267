package presentation

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRequest      = errors.New("unknown request id")
	ErrUnrecognizedMessage = errors.New("unrecognized message")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrClosed              = errors.New("presentation is closed")
)

// Error names reported to failure continuations.
const (
	NotFoundError      = "NotFoundError"
	InvalidAccessError = "InvalidAccessError"
	InvalidStateError  = "InvalidStateError"
	SecurityError      = "SecurityError"
	TimeoutError       = "TimeoutError"
	AbortError         = "AbortError"
)

// Error is the value handed to a RequestShow failure continuation. Hosts
// usually report only a name, in which case Message is empty.
type Error struct {
	Name    string
	Message string
}

func NewError(name, message string) *Error {
	return &Error{Name: name, Message: message}
}

// hostError wraps the single string a host sends with ShowFailed. Known
// names become the Name; anything else is kept as the Message.
func hostError(description string) *Error {
	switch description {
	case NotFoundError, InvalidAccessError, InvalidStateError, SecurityError, TimeoutError, AbortError:
		return &Error{Name: description}
	}
	return &Error{Name: "Error", Message: description}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates that a board, group, user, column or label could not
// be resolved after every matching strategy was tried.
var ErrNotFound = errors.New("not found")

// ErrParse indicates that human supplied text could not be parsed.
var ErrParse = errors.New("unparseable input")

// NotFoundError names what could not be resolved. Suggestions are only meant
// for the user-facing message.
type NotFoundError struct {
	Kind        string
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	if len(e.Suggestions) > 0 {
		msg += "; did you mean " + strings.Join(e.Suggestions, ", ") + "?"
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound builds a NotFoundError.
func NewNotFound(kind, name string, suggestions ...string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name, Suggestions: suggestions}
}

// RemoteError is returned when the remote API rejects an operation.
type RemoteError struct {
	Operation  string
	StatusCode int
	Messages   []string
}

func (e *RemoteError) Error() string {
	detail := strings.Join(e.Messages, "; ")
	if detail == "" {
		detail = "unknown error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s failed (%d): %s", e.Operation, e.StatusCode, detail)
	}
	return fmt.Sprintf("remote %s failed: %s", e.Operation, detail)
}

// Temporary reports whether retrying the operation may succeed.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsNotFound reports whether err is a resolution miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

package actions

import (
	"errors"
	"fmt"
)

// ErrNoUser is returned when a membership action runs without a signed-in user
var ErrNoUser = errors.New("no signed-in user")

// ErrInvalidTarget is returned when an action names no entity
var ErrInvalidTarget = errors.New("missing target entity")

// Error is a failed action. Message is the text shown to the user.
type Error struct {
	Action  string
	ID      int64
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %d failed: %s", e.Action, e.ID, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the user-facing message carried by err, or "" when err
// is not an action error
func UserMessage(err error) string {
	var actionErr *Error
	if errors.As(err, &actionErr) {
		return actionErr.Message
	}
	return ""
}

package executor

import (
	"errors"
	"fmt"
)

// Kind sentinels. Match them with errors.Is against an *Error.
var (
	ErrInvalid           = errors.New("invalid invocation")
	ErrSpawn             = errors.New("failed to spawn process")
	ErrSubprocess        = errors.New("process failed")
	ErrInactivityTimeout = errors.New("process timed out")
	ErrCancelled         = errors.New("operation cancelled")
)

// Error is the terminal error of one invocation.
type Error struct {
	Kind        error
	OperationID string
	// Detail is the user-visible text: captured stderr, or a fixed message.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Message returns the text carried by the CompletionEvent.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func timeoutMessage(threshold fmt.Stringer) string {
	return fmt.Sprintf("process timed out after %s without output", threshold)
}

package toolmanager

import (
	"errors"
	"fmt"
)

// Kind classifies tool manager failures.
type Kind int

const (
	// KindInvalidState reports a registry misuse such as a duplicate name.
	KindInvalidState Kind = iota + 1
	// KindInvalidParameter reports a caller contract violation such as an unknown tool.
	KindInvalidParameter
	// KindToolExecution reports a downstream failure while a tool ran.
	KindToolExecution
)

func (k Kind) String() string {
	switch k {
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindToolExecution:
		return "tool_execution"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrToolExecution    = errors.New("tool execution failed")
)

// Error is the typed failure produced by registration and dispatch.
// Message is what ends up in an error payload, verbatim.
type Error struct {
	Kind    Kind
	Tool    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidState:
		return e.Kind == KindInvalidState
	case ErrInvalidParameter:
		return e.Kind == KindInvalidParameter
	case ErrToolExecution:
		return e.Kind == KindToolExecution
	}
	return false
}

func invalidState(tool, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Tool: tool, Message: fmt.Sprintf(format, args...)}
}

func invalidParameter(tool, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameter, Tool: tool, Message: fmt.Sprintf(format, args...)}
}

// ExecutionError builds a tool execution failure with a formatted message.
// Tools return it for missing arguments, bad responses and unconfigured collaborators.
func ExecutionError(format string, args ...any) *Error {
	return &Error{Kind: KindToolExecution, Message: fmt.Sprintf(format, args...)}
}

// WrapExecution classifies err as a tool execution failure of the named tool.
// The message is err.Error() verbatim. Only an execution *Error returned as
// is keeps its identity; wrapped or other-kind errors become the cause of a
// new execution error.
func WrapExecution(tool string, err error) *Error {
	if err == nil {
		return nil
	}
	if typed, ok := err.(*Error); ok && typed.Kind == KindToolExecution {
		if typed.Tool == "" {
			copied := *typed
			copied.Tool = tool
			return &copied
		}
		return typed
	}
	return &Error{Kind: KindToolExecution, Tool: tool, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return 0
}

package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess  Code = 0
	CodeInternal Code = 1
	CodeUsage    Code = 2

	// Transport-level failures (API clients, RPC dialing).
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12

	// Orchestration failures. Each maps to one abort point in the
	// swap pipeline or the lifecycle controller.
	CodeStopped             Code = 20
	CodeInvalidAddress      Code = 21
	CodeInsufficientBalance Code = 22
	CodeInsufficientGas     Code = 23
	CodeApproval            Code = 24
	CodeSubmission          Code = 25
	CodeReverted            Code = 26
	CodeTimeout             Code = 27
	CodeReceipt             Code = 28
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	if typed, ok := As(err); ok {
		return typed.Code == code
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if typed, ok := As(err); ok {
		return int(typed.Code)
	}
	return int(CodeInternal)
}

// Package errz defines structured error values shared by the Pyrite
// compiler and virtual machine.
package errz

import (
	"bytes"
	"fmt"
	"strings"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrRuntime indicates a general runtime error.
	ErrRuntime ErrorKind = iota
	// ErrType indicates a type mismatch or invalid operation on a type.
	ErrType
	// ErrName indicates an undefined variable, global, or method name.
	ErrName
	// ErrValue indicates an invalid value for an operation, such as
	// division by zero.
	ErrValue
	// ErrIndex indicates an out-of-bounds register, constant, or name
	// index. These are internal consistency failures and always fatal.
	ErrIndex
	// ErrAssert indicates a failed assert statement.
	ErrAssert
	// ErrUnsupported indicates syntax or an opcode the implementation does
	// not support.
	ErrUnsupported
	// ErrCompile indicates an error constructing bytecode.
	ErrCompile
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrRuntime:
		return "runtime error"
	case ErrType:
		return "type error"
	case ErrName:
		return "name error"
	case ErrValue:
		return "value error"
	case ErrIndex:
		return "index error"
	case ErrAssert:
		return "assertion error"
	case ErrUnsupported:
		return "unsupported error"
	case ErrCompile:
		return "compile error"
	default:
		return "error"
	}
}

// SourceLocation identifies where in the original source an error occurred.
type SourceLocation struct {
	Filename string
	Line     int
	Column   int
}

// IsZero reports whether the location carries no information.
func (l SourceLocation) IsZero() bool {
	return l.Filename == "" && l.Line == 0 && l.Column == 0
}

// StackFrame is one activation record in an error's stack trace.
type StackFrame struct {
	Function string
	Location SourceLocation
}

// StructuredError is a rich error type with a kind, source location, and
// stack trace for actionable diagnostics.
type StructuredError struct {
	Message  string
	Kind     ErrorKind
	Location SourceLocation
	Stack    []StackFrame
	Cause    error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
	}
	return fmt.Sprintf("%s: %s (%s:%d)", e.Kind.String(), e.Message,
		e.Location.Filename, e.Location.Line)
}

// Unwrap returns the underlying cause of the error.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error may be intercepted by an except block.
// Internal consistency failures are never recoverable.
func (e *StructuredError) IsFatal() bool {
	return e.Kind == ErrIndex
}

// FriendlyErrorMessage returns a human-friendly error message including the
// stack trace, if one was captured.
func (e *StructuredError) FriendlyErrorMessage() string {
	var msg bytes.Buffer
	msg.WriteString(e.Error())
	msg.WriteString("\n")
	if len(e.Stack) > 0 {
		msg.WriteString("\ntraceback (most recent call first):\n")
		for _, f := range e.Stack {
			fn := f.Function
			if fn == "" {
				fn = "<main>"
			}
			if f.Location.IsZero() {
				msg.WriteString(fmt.Sprintf("  %s\n", fn))
			} else {
				msg.WriteString(fmt.Sprintf("  %s (%s:%d)\n",
					fn, f.Location.Filename, f.Location.Line))
			}
		}
	}
	return strings.TrimRight(msg.String(), "\n") + "\n"
}

// New creates a new StructuredError with the given kind and message.
func New(kind ErrorKind, message string) *StructuredError {
	return &StructuredError{Kind: kind, Message: message}
}

// Newf creates a new StructuredError with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) *StructuredError {
	return &StructuredError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewWithLocation creates a new StructuredError carrying a source location
// and stack trace.
func NewWithLocation(kind ErrorKind, message string, loc SourceLocation, stack []StackFrame) *StructuredError {
	return &StructuredError{Kind: kind, Message: message, Location: loc, Stack: stack}
}

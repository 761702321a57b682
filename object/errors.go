package object

import (
	"fmt"

	"github.com/pyrite-lang/pyrite/errz"
)

// RaisedError carries a raised Pyrite value through the Go error channel so
// that the VM's unwinder can recover the original object in an except
// handler.
type RaisedError struct {
	Value Object
}

func (e *RaisedError) Error() string {
	return fmt.Sprintf("exception: %s", e.Value.Inspect())
}

// Error is a first-class error value: the result of the error builtin and
// the shape given to runtime failures caught by an except block.
type Error struct {
	base
	message string
}

func (e *Error) Type() Type {
	return ERROR
}

// Message returns the error text.
func (e *Error) Message() string {
	return e.message
}

func (e *Error) Inspect() string {
	return fmt.Sprintf("error(%q)", e.message)
}

func (e *Error) String() string {
	return e.message
}

func (e *Error) Interface() interface{} {
	return e.message
}

func (e *Error) IsTruthy() bool {
	return true
}

func (e *Error) Equals(other Object) bool {
	otherErr, ok := other.(*Error)
	return ok && e.message == otherErr.message
}

// NewError creates an error value with the given message.
func NewError(message string) *Error {
	return &Error{message: message}
}

// TypeErrorf returns a type error with a formatted message.
func TypeErrorf(format string, args ...interface{}) error {
	return errz.Newf(errz.ErrType, format, args...)
}

// ValueErrorf returns a value error with a formatted message.
func ValueErrorf(format string, args ...interface{}) error {
	return errz.Newf(errz.ErrValue, format, args...)
}

// NameErrorf returns a name error with a formatted message.
func NameErrorf(format string, args ...interface{}) error {
	return errz.Newf(errz.ErrName, format, args...)
}

// IndexErrorf returns an internal consistency error with a formatted
// message. These are fatal and cannot be caught by except blocks.
func IndexErrorf(format string, args ...interface{}) error {
	return errz.Newf(errz.ErrIndex, format, args...)
}

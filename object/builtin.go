package object

import (
	"context"
	"fmt"
)

// BuiltinFunction is the shape of a native function callable from Pyrite
// code.
type BuiltinFunction func(ctx context.Context, args ...Object) (Object, error)

// Builtin wraps a native Go function so it can live in the builtin binding
// table and be called by the VM.
type Builtin struct {
	base
	name string
	fn   BuiltinFunction
}

func (b *Builtin) Type() Type {
	return BUILTIN
}

// Name returns the name the builtin is registered under.
func (b *Builtin) Name() string {
	return b.name
}

// Call invokes the wrapped function.
func (b *Builtin) Call(ctx context.Context, args ...Object) (Object, error) {
	return b.fn(ctx, args...)
}

func (b *Builtin) Inspect() string {
	return fmt.Sprintf("builtin(%s)", b.name)
}

func (b *Builtin) String() string {
	return b.Inspect()
}

func (b *Builtin) Interface() interface{} {
	return b.fn
}

func (b *Builtin) IsTruthy() bool {
	return true
}

func (b *Builtin) Equals(other Object) bool {
	return b == other
}

func NewBuiltin(name string, fn BuiltinFunction) *Builtin {
	return &Builtin{name: name, fn: fn}
}

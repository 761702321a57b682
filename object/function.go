package object

import (
	"fmt"
	"strings"

	"github.com/pyrite-lang/pyrite/compiler"
)

// Function is a runtime function value. It references an immutable
// compiler.Function for its signature and code, plus any captured free
// variable cells when the function is a closure.
type Function struct {
	base
	fn   *compiler.Function
	free []*Ref
}

func (f *Function) Type() Type {
	return FUNCTION
}

// Name returns the function name, or "" for an anonymous function.
func (f *Function) Name() string {
	return f.fn.Name()
}

// Parameters returns the function's parameter names.
func (f *Function) Parameters() []string {
	return f.fn.Parameters()
}

// Code returns the function's compiled code.
func (f *Function) Code() *compiler.Code {
	return f.fn.Code()
}

// FreeVars returns the cells captured by this closure.
func (f *Function) FreeVars() []*Ref {
	return f.free
}

// Template returns the underlying compiled function, so the runtime can
// bundle it with fresh cells when constructing a closure.
func (f *Function) Template() *compiler.Function {
	return f.fn
}

func (f *Function) Inspect() string {
	var out strings.Builder
	out.WriteString("func")
	if name := f.fn.Name(); name != "" {
		out.WriteString(" " + name)
	}
	out.WriteString("(")
	out.WriteString(strings.Join(f.fn.Parameters(), ", "))
	out.WriteString(")")
	return out.String()
}

func (f *Function) String() string {
	return f.Inspect()
}

func (f *Function) Interface() interface{} {
	return f
}

func (f *Function) IsTruthy() bool {
	return true
}

func (f *Function) Equals(other Object) bool {
	return f == other
}

// NewFunction wraps a compiled function template with no captured
// variables.
func NewFunction(fn *compiler.Function) *Function {
	return &Function{fn: fn}
}

// NewClosure wraps a compiled function template with captured cells.
func NewClosure(fn *compiler.Function, free []*Ref) *Function {
	return &Function{fn: fn, free: free}
}

var _ fmt.Stringer = (*Function)(nil)

// Package pyrite provides high-level entry points for compiling and running
// Pyrite programs. A parser producing ast.Program trees is an external
// collaborator; this package accepts the trees it emits.
package pyrite

import (
	"context"
	"sort"

	"github.com/pyrite-lang/pyrite/ast"
	"github.com/pyrite-lang/pyrite/builtins"
	"github.com/pyrite-lang/pyrite/compiler"
	"github.com/pyrite-lang/pyrite/object"
	"github.com/pyrite-lang/pyrite/vm"
)

// Option configures a Pyrite compilation or execution.
type Option func(*options)

type options struct {
	env      map[string]object.Object
	filename string
	vmOpts   []vm.Option
}

func collectOptions(opts ...Option) *options {
	o := &options{env: map[string]object.Object{}}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithEnv provides named values made available to the program as globals.
// This option is additive; when the same key is supplied multiple times,
// the last value wins.
func WithEnv(env map[string]object.Object) Option {
	return func(o *options) {
		for name, value := range env {
			o.env[name] = value
		}
	}
}

// WithFilename sets the filename used in error messages and stack traces.
func WithFilename(filename string) Option {
	return func(o *options) {
		o.filename = filename
	}
}

// WithVMOptions passes additional options through to the virtual machine.
func WithVMOptions(opts ...vm.Option) Option {
	return func(o *options) {
		o.vmOpts = append(o.vmOpts, opts...)
	}
}

// Builtins returns the standard built-in functions. The environment is
// empty by default; use this to populate it:
//
//	result, _ := pyrite.Eval(ctx, program, pyrite.WithEnv(pyrite.Builtins()))
func Builtins() map[string]object.Object {
	return builtins.Builtins()
}

// Compile compiles a program into executable code. The returned Code is
// immutable and safe to execute concurrently on separate machines.
func Compile(node *ast.Program, opts ...Option) (*compiler.Code, error) {
	o := collectOptions(opts...)
	return compiler.Compile(node, &compiler.Config{
		GlobalNames: envNames(o.env),
		Filename:    o.filename,
	})
}

// Run executes compiled code on a fresh virtual machine and returns the
// value of the program's final expression.
func Run(ctx context.Context, code *compiler.Code, opts ...Option) (object.Object, error) {
	o := collectOptions(opts...)
	vmOpts := append([]vm.Option{vm.WithBuiltins(o.env)}, o.vmOpts...)
	machine := vm.New(code, vmOpts...)
	return machine.Run(ctx)
}

// Eval compiles and runs a program. It is equivalent to Compile followed
// by Run.
func Eval(ctx context.Context, node *ast.Program, opts ...Option) (object.Object, error) {
	code, err := Compile(node, opts...)
	if err != nil {
		return nil, err
	}
	return Run(ctx, code, opts...)
}

func envNames(env map[string]object.Object) []string {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package vm

import (
	"github.com/rs/zerolog"

	"github.com/pyrite-lang/pyrite/object"
)

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithGlobals provides initial global variables with the given names.
func WithGlobals(globals map[string]object.Object) Option {
	return func(vm *VirtualMachine) {
		for name, value := range globals {
			vm.globals[name] = object.NewRef(value)
		}
	}
}

// WithBuiltins provides builtin functions available to the running code.
// Builtins resolve after globals, so a global can shadow a builtin.
func WithBuiltins(builtins map[string]object.Object) Option {
	return func(vm *VirtualMachine) {
		for name, value := range builtins {
			vm.builtins[name] = object.NewRef(value)
		}
	}
}

// WithLogger sets the logger used for hot-function instrumentation and
// instruction tracing. The default logger is disabled.
func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VirtualMachine) {
		vm.logger = logger
	}
}

// WithTracing logs every instruction dispatched at trace level. This is
// expensive and meant for debugging bytecode.
func WithTracing(tracing bool) Option {
	return func(vm *VirtualMachine) {
		vm.tracing = tracing
	}
}

// WithContextCheckInterval sets how often the VM checks ctx.Done() during
// execution, in number of instructions. A value of 0 disables the check.
// Lower values provide more responsive cancellation but cost throughput.
func WithContextCheckInterval(interval int) Option {
	return func(vm *VirtualMachine) {
		vm.contextCheckInterval = interval
	}
}

// WithHotThreshold sets the invocation count at which a function is
// considered hot and handed to the native compilation hook. A value of 0
// disables hot-function tracking.
func WithHotThreshold(threshold int) Option {
	return func(vm *VirtualMachine) {
		vm.hotThreshold = threshold
	}
}

// Package vm provides a VirtualMachine that executes compiled Pyrite code.
//
// The machine is register-based. Each frame owns a register file sized at
// compile time, a locals array, a snapshot of the globals taken when the
// call was made, and a control block stack that drives loop and exception
// unwinding. Raised values unwind across frames: when the raising frame has
// no except or finally block, the machine pops the frame and continues the
// search in the caller, so only a completely unhandled failure escapes Run.
package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"github.com/pyrite-lang/pyrite/compiler"
	"github.com/pyrite-lang/pyrite/errz"
	"github.com/pyrite-lang/pyrite/object"
	"github.com/pyrite-lang/pyrite/op"
)

const (
	MaxFrameDepth = 1024

	// DefaultContextCheckInterval is the number of instructions between
	// deterministic checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000

	// DefaultHotThreshold is the invocation count at which a function is
	// handed to the native compilation hook.
	DefaultHotThreshold = 1000
)

var ErrGlobalNotFound = errors.New("global not found")

// VirtualMachine executes compiled Pyrite code.
type VirtualMachine struct {
	id          uuid.UUID
	ip          int // instruction pointer
	fp          int // frame pointer
	activeFrame *frame
	activeCode  *loadedCode
	main        *compiler.Code
	frames      [MaxFrameDepth]frame
	running     bool
	runMutex    sync.Mutex

	// Authoritative globals. Frames take a snapshot at call time and
	// merge it back when they return.
	globals        map[string]*object.Ref
	builtins       map[string]*object.Ref
	globalsVersion uint64
	classVersion   uint64

	loadedCode map[*compiler.Code]*loadedCode

	// Hot-function instrumentation. Counters belong to the VM instance
	// and persist across Run calls.
	hotCounts    map[*compiler.Code]uint64
	hotCompiled  map[*compiler.Code]bool
	hotThreshold int

	contextCheckInterval int
	logger               zerolog.Logger
	tracing              bool
	result               object.Object
}

// New creates a new Virtual Machine for the given compiled code.
func New(main *compiler.Code, options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		main:                 main,
		globals:              map[string]*object.Ref{},
		builtins:             map[string]*object.Ref{},
		loadedCode:           map[*compiler.Code]*loadedCode{},
		hotCounts:            map[*compiler.Code]uint64{},
		hotCompiled:          map[*compiler.Code]bool{},
		hotThreshold:         DefaultHotThreshold,
		contextCheckInterval: DefaultContextCheckInterval,
		logger:               zerolog.Nop(),
	}
	vm.id = uuid.Must(uuid.NewV4())
	for _, opt := range options {
		opt(vm)
	}
	vm.logger = vm.logger.With().Str("vm_id", vm.id.String()).Logger()
	return vm
}

// Run executes the machine's main code and returns the value of its final
// expression. Run may be called repeatedly; globals persist between calls.
func (vm *VirtualMachine) Run(ctx context.Context) (object.Object, error) {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	if vm.running {
		return nil, fmt.Errorf("vm is already running")
	}
	vm.running = true
	defer func() { vm.running = false }()

	code, err := vm.loadCode(vm.main)
	if err != nil {
		return nil, err
	}
	vm.fp = 0
	vm.ip = 0
	vm.result = object.Nil
	// The module frame works on the authoritative globals directly.
	vm.activeFrame = &vm.frames[0]
	vm.activeFrame.activate(code, nil, vm.globals, -1, 0)
	vm.activeCode = code
	if err := vm.eval(ctx); err != nil {
		return nil, err
	}
	return vm.result, nil
}

// Get returns a global variable by name after a Run has completed.
func (vm *VirtualMachine) Get(name string) (object.Object, error) {
	if ref, ok := vm.globals[name]; ok {
		return ref.Value(), nil
	}
	return nil, ErrGlobalNotFound
}

func (vm *VirtualMachine) loadCode(cc *compiler.Code) (*loadedCode, error) {
	if loaded, ok := vm.loadedCode[cc]; ok {
		return loaded, nil
	}
	loaded, err := wrapCode(cc)
	if err != nil {
		return nil, err
	}
	vm.loadedCode[cc] = loaded
	return loaded, nil
}

// eval is the dispatch loop. It runs until the module frame returns, the
// context is cancelled, or an unhandled failure escapes every frame.
func (vm *VirtualMachine) eval(ctx context.Context) error {
	var instructionCount int
	checkInterval := vm.contextCheckInterval
	doneChan := ctx.Done()

	for vm.ip < len(vm.activeCode.Instructions) {

		// Deterministic check of ctx.Done() every N instructions.
		if checkInterval > 0 && doneChan != nil {
			instructionCount++
			if instructionCount >= checkInterval {
				instructionCount = 0
				select {
				case <-doneChan:
					return ctx.Err()
				default:
				}
			}
		}

		inst := vm.activeCode.Instructions[vm.ip]

		if vm.tracing {
			vm.logger.Trace().
				Int("ip", vm.ip).
				Str("op", op.GetInfo(inst.Op).Name).
				Int("frame", vm.fp).
				Msg("dispatch")
		}

		// The instruction pointer advances before execution, so jumps
		// simply overwrite it with an absolute target.
		vm.ip++

		switch inst.Op {

		case op.Nop:

		case op.Halt:
			return nil

		case op.LoadConst:
			vm.setReg(inst.A, object.NewRef(vm.activeCode.Constants[inst.B]))

		case op.Move:
			// Registers share the cell; the count tracks variable
			// bindings, so aliasing here does not increment it.
			vm.setReg(inst.A, vm.reg(inst.B))

		case op.LoadLocal:
			cell := vm.activeFrame.locals[inst.B]
			if cell == nil {
				if err := vm.raise(vm.nameError("local variable %q referenced before assignment",
					vm.localName(inst.B))); err != nil {
					return err
				}
				continue
			}
			vm.setReg(inst.A, cell)

		case op.StoreLocal:
			// Rebinding a local a closure captured writes through the
			// shared cell, matching StoreFree; otherwise the slot takes
			// the source cell.
			src := vm.reg(inst.B)
			if existing := vm.activeFrame.locals[inst.A]; existing != nil && existing != src && existing.Captured() {
				existing.SetValue(src.Value())
			} else {
				vm.activeFrame.locals[inst.A] = src
			}

		case op.LoadGlobal:
			if err := vm.execLoadGlobal(inst); err != nil {
				return err
			}

		case op.StoreGlobal:
			name := vm.activeCode.Names[inst.A]
			vm.activeFrame.globals[name] = vm.reg(inst.B)
			vm.globalsVersion++

		case op.LoadFree:
			vm.setReg(inst.A, vm.activeFrame.fn.FreeVars()[inst.B])

		case op.StoreFree:
			// Free variables write through their shared cell so every
			// closure holding it observes the update.
			vm.activeFrame.fn.FreeVars()[inst.A].SetValue(vm.reg(inst.B).Value())

		case op.Add, op.Sub, op.Mul, op.Div, op.Mod, op.Pow:
			result, err := object.BinaryOp(binaryOpType(inst.Op), vm.val(inst.B), vm.val(inst.C))
			if err != nil {
				if err := vm.raise(err); err != nil {
					return err
				}
				continue
			}
			vm.setReg(inst.A, object.NewRef(result))

		case op.AddInt, op.SubInt, op.MulInt, op.ModInt:
			if err := vm.execIntBinary(inst); err != nil {
				return err
			}

		case op.AddImm, op.SubImm, op.MulImm, op.ModImm:
			if err := vm.execImmBinary(inst); err != nil {
				return err
			}

		case op.InplaceAdd:
			if err := vm.execInplaceAdd(inst); err != nil {
				return err
			}

		case op.UnaryNeg:
			switch value := vm.val(inst.B).(type) {
			case *object.Int:
				vm.setReg(inst.A, object.NewRef(object.NewInt(-value.Value())))
			case *object.Float:
				vm.setReg(inst.A, object.NewRef(object.NewFloat(-value.Value())))
			default:
				if err := vm.raise(object.TypeErrorf("unsupported operand for -: %s", value.Type())); err != nil {
					return err
				}
			}

		case op.UnaryNot:
			vm.setReg(inst.A, object.NewRef(object.NewBool(!vm.val(inst.B).IsTruthy())))

		case op.Eq, op.Ne, op.Lt, op.Le, op.Gt, op.Ge:
			result, err := object.Compare(compareOpType(inst.Op), vm.val(inst.B), vm.val(inst.C))
			if err != nil {
				if err := vm.raise(err); err != nil {
					return err
				}
				continue
			}
			vm.setReg(inst.A, object.NewRef(result))

		case op.EqInt, op.LtInt, op.LeInt, op.GtInt, op.GeInt:
			if err := vm.execIntCompare(inst); err != nil {
				return err
			}

		case op.EqImm, op.LtImm, op.LeImm, op.GtImm, op.GeImm:
			if err := vm.execImmCompare(inst); err != nil {
				return err
			}

		case op.Jump:
			vm.ip = inst.A

		case op.JumpIfFalse:
			if !vm.val(inst.A).IsTruthy() {
				vm.ip = inst.B
			}

		case op.JumpIfTrue:
			if vm.val(inst.A).IsTruthy() {
				vm.ip = inst.B
			}

		case op.LoopCond:
			if vm.val(inst.A).IsTruthy() {
				vm.ip = inst.B
			} else {
				vm.ip = inst.C
			}

		case op.BuildList:
			vm.setReg(inst.A, object.NewRef(object.NewList(vm.collect(inst.B, inst.C))))

		case op.BuildTuple:
			vm.setReg(inst.A, object.NewRef(object.NewTuple(vm.collect(inst.B, inst.C))))

		case op.BuildSet:
			vm.setReg(inst.A, object.NewRef(object.NewSet(vm.collect(inst.B, inst.C))))

		case op.BuildMap:
			if err := vm.execBuildMap(inst); err != nil {
				return err
			}

		case op.GetIndex:
			container, ok := vm.val(inst.B).(object.Container)
			if !ok {
				if err := vm.raise(object.TypeErrorf("object is not subscriptable: %s",
					vm.val(inst.B).Type())); err != nil {
					return err
				}
				continue
			}
			value, err := container.GetItem(vm.val(inst.C))
			if err != nil {
				if err := vm.raise(err); err != nil {
					return err
				}
				continue
			}
			vm.setReg(inst.A, object.NewRef(value))

		case op.SetIndex:
			container, ok := vm.val(inst.A).(object.Container)
			if !ok {
				if err := vm.raise(object.TypeErrorf("object does not support item assignment: %s",
					vm.val(inst.A).Type())); err != nil {
					return err
				}
				continue
			}
			if err := container.SetItem(vm.val(inst.B), vm.val(inst.C)); err != nil {
				if err := vm.raise(err); err != nil {
					return err
				}
			}

		case op.GetAttr:
			name := vm.activeCode.Names[inst.C]
			value, found := vm.val(inst.B).GetAttr(name)
			if !found {
				if err := vm.raise(object.TypeErrorf("attribute %q not found on %s object",
					name, vm.val(inst.B).Type())); err != nil {
					return err
				}
				continue
			}
			vm.setReg(inst.A, object.NewRef(value))

		case op.SetAttr:
			name := vm.activeCode.Names[inst.B]
			if err := vm.val(inst.A).SetAttr(name, vm.val(inst.C)); err != nil {
				if err := vm.raise(err); err != nil {
					return err
				}
			}

		case op.GetSlice:
			if err := vm.execGetSlice(inst); err != nil {
				return err
			}

		case op.Contains:
			container, ok := vm.val(inst.B).(object.Container)
			if !ok {
				if err := vm.raise(object.TypeErrorf("argument of type %s is not a container",
					vm.val(inst.B).Type())); err != nil {
					return err
				}
				continue
			}
			vm.setReg(inst.A, object.NewRef(object.NewBool(container.Contains(vm.val(inst.C)))))

		case op.GetIter:
			iterable, ok := vm.val(inst.B).(object.Iterable)
			if !ok {
				if err := vm.raise(object.TypeErrorf("object is not iterable: %s",
					vm.val(inst.B).Type())); err != nil {
					return err
				}
				continue
			}
			vm.setReg(inst.A, object.NewRef(iterable.Iter()))

		case op.ForIter:
			iterator := vm.val(inst.B).(object.Iterator)
			value, ok := iterator.Next()
			if !ok {
				vm.ip = inst.C
				continue
			}
			vm.setReg(inst.A, object.NewRef(value))

		case op.Call:
			if err := vm.execCall(ctx, inst); err != nil {
				return err
			}

		case op.CallMethod:
			if err := vm.execCallMethod(ctx, inst); err != nil {
				return err
			}

		case op.ReturnValue:
			if done := vm.execReturn(inst.A); done {
				return nil
			}

		case op.MakeClosure:
			template := vm.activeCode.Constants[inst.B].(*object.Function)
			cells := make([]*object.Ref, inst.C)
			for i := 0; i < inst.C; i++ {
				cells[i] = vm.reg(inst.A + 1 + i)
			}
			vm.setReg(inst.A, object.NewRef(object.NewClosure(template.Template(), cells)))

		case op.MakeCell:
			var cell *object.Ref
			if inst.C == 1 {
				cell = vm.activeFrame.fn.FreeVars()[inst.B]
			} else {
				cell = vm.activeFrame.locals[inst.B]
				if cell == nil {
					cell = object.NewRef(object.Nil)
					vm.activeFrame.locals[inst.B] = cell
				}
			}
			cell.Inc() // the closure is a new holder
			cell.MarkCaptured()
			vm.setReg(inst.A, cell)

		case op.MakeClass:
			vm.setReg(inst.A, object.NewRef(vm.activeCode.Constants[inst.B]))
			vm.classVersion++

		case op.IncLocal:
			if err := vm.execIncLocal(inst); err != nil {
				return err
			}

		case op.StoreConst:
			vm.storeLocalValue(inst.A, vm.activeCode.Constants[inst.B])

		case op.AddStore:
			if err := vm.execAddStore(inst); err != nil {
				return err
			}

		case op.IncRef:
			vm.reg(inst.A).Inc()

		case op.DecRef:
			vm.reg(inst.A).Dec()

		case op.CloneUnique:
			vm.setReg(inst.A, vm.reg(inst.A).CloneUnique())

		case op.SetupLoop:
			vm.activeFrame.pushBlock(controlBlock{kind: blockLoop, exit: inst.A, cont: inst.B})

		case op.SetupExcept:
			vm.activeFrame.pushBlock(controlBlock{kind: blockExcept, handler: inst.A})

		case op.SetupFinally:
			vm.activeFrame.pushBlock(controlBlock{kind: blockFinally, handler: inst.A})

		case op.SetupWith:
			vm.activeFrame.pushBlock(controlBlock{kind: blockWith, exit: inst.A})

		case op.PopBlock:
			if _, ok := vm.activeFrame.popBlock(); !ok {
				return vm.fatalError("block stack underflow (ip %d)", vm.ip-1)
			}

		case op.Raise:
			if err := vm.raise(&object.RaisedError{Value: vm.val(inst.A)}); err != nil {
				return err
			}

		case op.Assert:
			if !vm.val(inst.A).IsTruthy() {
				message := "assertion failed"
				if inst.B >= 0 {
					message = vm.activeCode.Constants[inst.B].(*object.String).Value()
				}
				if err := vm.raise(errz.New(errz.ErrAssert, message)); err != nil {
					return err
				}
			}

		case op.EndFinally:
			if pending := vm.activeFrame.pending; pending != nil {
				vm.activeFrame.pending = nil
				if err := vm.raise(pending); err != nil {
					return err
				}
			}

		case op.MatchLiteral:
			constant := vm.activeCode.Constants[inst.C]
			vm.setReg(inst.A, object.NewRef(object.NewBool(vm.val(inst.B).Equals(constant))))

		case op.MatchSequence:
			matched := false
			switch subject := vm.val(inst.B).(type) {
			case *object.List:
				matched = subject.Len() == inst.C
			case *object.Tuple:
				matched = subject.Len() == inst.C
			}
			vm.setReg(inst.A, object.NewRef(object.NewBool(matched)))

		case op.MatchMapping:
			matched := false
			if subject, ok := vm.val(inst.B).(*object.Map); ok {
				keys := vm.activeCode.Constants[inst.C].(*object.Tuple)
				matched = true
				for _, key := range keys.Value() {
					if !subject.Contains(key) {
						matched = false
						break
					}
				}
			}
			vm.setReg(inst.A, object.NewRef(object.NewBool(matched)))

		case op.MatchClass:
			name := vm.activeCode.Names[inst.C]
			matched := false
			if subject, ok := vm.val(inst.B).(*object.Instance); ok {
				matched = subject.Class().Name() == name
			}
			vm.setReg(inst.A, object.NewRef(object.NewBool(matched)))

		default:
			return vm.fatalError("unknown opcode: %d", inst.Op)
		}
	}
	return nil
}

func (vm *VirtualMachine) reg(i int) *object.Ref {
	return vm.activeFrame.registers[i]
}

func (vm *VirtualMachine) setReg(i int, ref *object.Ref) {
	vm.activeFrame.registers[i] = ref
}

// val returns the value held in a register's cell.
func (vm *VirtualMachine) val(i int) object.Object {
	return vm.activeFrame.registers[i].Value()
}

func (vm *VirtualMachine) collect(base, count int) []object.Object {
	items := make([]object.Object, count)
	for i := 0; i < count; i++ {
		items[i] = vm.val(base + i)
	}
	return items
}

func (vm *VirtualMachine) localName(index int) string {
	symbol := vm.activeCode.Local(index)
	if symbol == nil {
		return "?"
	}
	return symbol.Name()
}

// execLoadGlobal resolves a global through the site's inline cache. A hit
// requires the cached version to match the VM-wide globals version; a miss
// looks up the frame's globals snapshot, then the builtins.
func (vm *VirtualMachine) execLoadGlobal(inst compiler.Instruction) error {
	slot := &vm.activeCode.caches[inst.C]
	if slot.ref != nil && slot.version == vm.globalsVersion {
		slot.hits++
		vm.setReg(inst.A, slot.ref)
		return nil
	}
	name := vm.activeCode.Names[inst.B]
	ref, ok := vm.activeFrame.globals[name]
	if !ok {
		ref, ok = vm.builtins[name]
	}
	if !ok {
		return vm.raise(vm.nameError("undefined variable %q", name))
	}
	slot.version = vm.globalsVersion
	slot.ref = ref
	vm.setReg(inst.A, ref)
	return nil
}

func binaryOpType(opcode op.Code) op.BinaryOpType {
	switch opcode {
	case op.Add, op.AddInt, op.AddImm:
		return op.BinaryAdd
	case op.Sub, op.SubInt, op.SubImm:
		return op.BinarySub
	case op.Mul, op.MulInt, op.MulImm:
		return op.BinaryMul
	case op.Div:
		return op.BinaryDiv
	case op.Mod, op.ModInt, op.ModImm:
		return op.BinaryMod
	default:
		return op.BinaryPow
	}
}

func compareOpType(opcode op.Code) op.CompareOpType {
	switch opcode {
	case op.Eq, op.EqInt, op.EqImm:
		return op.CompareEq
	case op.Ne:
		return op.CompareNe
	case op.Lt, op.LtInt, op.LtImm:
		return op.CompareLt
	case op.Le, op.LeInt, op.LeImm:
		return op.CompareLe
	case op.Gt, op.GtInt, op.GtImm:
		return op.CompareGt
	default:
		return op.CompareGe
	}
}

// execIntBinary is the integer fast path. Non-integer operands fall back
// to the generic implementation, so the fused and unfused forms agree.
func (vm *VirtualMachine) execIntBinary(inst compiler.Instruction) error {
	lhs, lok := vm.val(inst.B).(*object.Int)
	rhs, rok := vm.val(inst.C).(*object.Int)
	if lok && rok {
		a, b := lhs.Value(), rhs.Value()
		switch inst.Op {
		case op.AddInt:
			vm.setReg(inst.A, object.NewRef(object.NewInt(a+b)))
			return nil
		case op.SubInt:
			vm.setReg(inst.A, object.NewRef(object.NewInt(a-b)))
			return nil
		case op.MulInt:
			vm.setReg(inst.A, object.NewRef(object.NewInt(a*b)))
			return nil
		case op.ModInt:
			if b == 0 {
				return vm.raise(object.ValueErrorf("modulo by zero"))
			}
			vm.setReg(inst.A, object.NewRef(object.NewInt(a%b)))
			return nil
		}
	}
	result, err := object.BinaryOp(binaryOpType(inst.Op), vm.val(inst.B), vm.val(inst.C))
	if err != nil {
		return vm.raise(err)
	}
	vm.setReg(inst.A, object.NewRef(result))
	return nil
}

func (vm *VirtualMachine) execImmBinary(inst compiler.Instruction) error {
	if lhs, ok := vm.val(inst.B).(*object.Int); ok {
		a, b := lhs.Value(), int64(inst.C)
		switch inst.Op {
		case op.AddImm:
			vm.setReg(inst.A, object.NewRef(object.NewInt(a+b)))
			return nil
		case op.SubImm:
			vm.setReg(inst.A, object.NewRef(object.NewInt(a-b)))
			return nil
		case op.MulImm:
			vm.setReg(inst.A, object.NewRef(object.NewInt(a*b)))
			return nil
		case op.ModImm:
			if b == 0 {
				return vm.raise(object.ValueErrorf("modulo by zero"))
			}
			vm.setReg(inst.A, object.NewRef(object.NewInt(a%b)))
			return nil
		}
	}
	result, err := object.BinaryOp(binaryOpType(inst.Op), vm.val(inst.B), object.NewInt(int64(inst.C)))
	if err != nil {
		return vm.raise(err)
	}
	vm.setReg(inst.A, object.NewRef(result))
	return nil
}

func (vm *VirtualMachine) execIntCompare(inst compiler.Instruction) error {
	lhs, lok := vm.val(inst.B).(*object.Int)
	rhs, rok := vm.val(inst.C).(*object.Int)
	if lok && rok {
		vm.setReg(inst.A, object.NewRef(intCompare(inst.Op, lhs.Value(), rhs.Value())))
		return nil
	}
	result, err := object.Compare(compareOpType(inst.Op), vm.val(inst.B), vm.val(inst.C))
	if err != nil {
		return vm.raise(err)
	}
	vm.setReg(inst.A, object.NewRef(result))
	return nil
}

func (vm *VirtualMachine) execImmCompare(inst compiler.Instruction) error {
	if lhs, ok := vm.val(inst.B).(*object.Int); ok {
		vm.setReg(inst.A, object.NewRef(intCompare(inst.Op, lhs.Value(), int64(inst.C))))
		return nil
	}
	result, err := object.Compare(compareOpType(inst.Op), vm.val(inst.B), object.NewInt(int64(inst.C)))
	if err != nil {
		return vm.raise(err)
	}
	vm.setReg(inst.A, object.NewRef(result))
	return nil
}

func intCompare(opcode op.Code, a, b int64) *object.Bool {
	switch opcode {
	case op.EqInt, op.EqImm:
		return object.NewBool(a == b)
	case op.LtInt, op.LtImm:
		return object.NewBool(a < b)
	case op.LeInt, op.LeImm:
		return object.NewBool(a <= b)
	case op.GtInt, op.GtImm:
		return object.NewBool(a > b)
	default:
		return object.NewBool(a >= b)
	}
}

// execInplaceAdd adds into the lhs cell in place when the cell is unique,
// and allocates a fresh cell otherwise.
func (vm *VirtualMachine) execInplaceAdd(inst compiler.Instruction) error {
	lhs := vm.reg(inst.A)
	result, err := object.BinaryOp(op.BinaryAdd, lhs.Value(), vm.val(inst.B))
	if err != nil {
		return vm.raise(err)
	}
	if lhs.Unique() {
		lhs.SetValue(result)
	} else {
		lhs.Dec()
		vm.setReg(inst.A, object.NewRef(result))
	}
	return nil
}

func (vm *VirtualMachine) execIncLocal(inst compiler.Instruction) error {
	cell := vm.activeFrame.locals[inst.A]
	if cell == nil {
		return vm.raise(vm.nameError("local variable %q referenced before assignment",
			vm.localName(inst.A)))
	}
	if value, ok := cell.Value().(*object.Int); ok && cell.Unique() {
		cell.SetValue(object.NewInt(value.Value() + int64(inst.B)))
		return nil
	}
	result, err := object.BinaryOp(op.BinaryAdd, cell.Value(), object.NewInt(int64(inst.B)))
	if err != nil {
		return vm.raise(err)
	}
	vm.storeLocalValue(inst.A, result)
	return nil
}

func (vm *VirtualMachine) execAddStore(inst compiler.Instruction) error {
	lhs := vm.activeFrame.locals[inst.B]
	rhs := vm.activeFrame.locals[inst.C]
	if lhs == nil || rhs == nil {
		return vm.raise(vm.nameError("local variable referenced before assignment"))
	}
	if a, ok := lhs.Value().(*object.Int); ok {
		if b, ok := rhs.Value().(*object.Int); ok {
			vm.storeLocalValue(inst.A, object.NewInt(a.Value()+b.Value()))
			return nil
		}
	}
	result, err := object.BinaryOp(op.BinaryAdd, lhs.Value(), rhs.Value())
	if err != nil {
		return vm.raise(err)
	}
	vm.storeLocalValue(inst.A, result)
	return nil
}

// storeLocalValue binds a computed value to a local slot, writing through
// a captured cell so closures observe the rebinding.
func (vm *VirtualMachine) storeLocalValue(local int, value object.Object) {
	if existing := vm.activeFrame.locals[local]; existing != nil && existing.Captured() {
		existing.SetValue(value)
		return
	}
	vm.activeFrame.locals[local] = object.NewRef(value)
}

func (vm *VirtualMachine) execBuildMap(inst compiler.Instruction) error {
	items := make(map[string]object.Object, inst.C)
	for i := 0; i < inst.C; i++ {
		key, ok := vm.val(inst.B + 2*i).(*object.String)
		if !ok {
			return vm.raise(object.TypeErrorf("map key must be a string (%s given)",
				vm.val(inst.B+2*i).Type()))
		}
		items[key.Value()] = vm.val(inst.B + 2*i + 1)
	}
	vm.setReg(inst.A, object.NewRef(object.NewMap(items)))
	return nil
}

func (vm *VirtualMachine) execGetSlice(inst compiler.Instruction) error {
	sliceable, ok := vm.val(inst.B).(object.Sliceable)
	if !ok {
		return vm.raise(object.TypeErrorf("object is not sliceable: %s", vm.val(inst.B).Type()))
	}
	start, err := indexValue(vm.val(inst.C), 0)
	if err != nil {
		return vm.raise(err)
	}
	stopDefault := int64(0)
	if container, ok := vm.val(inst.B).(object.Container); ok {
		stopDefault = int64(container.Len())
	}
	stop, err := indexValue(vm.val(inst.C+1), stopDefault)
	if err != nil {
		return vm.raise(err)
	}
	result, err := sliceable.GetSlice(start, stop)
	if err != nil {
		return vm.raise(err)
	}
	vm.setReg(inst.A, object.NewRef(result))
	return nil
}

// indexValue reads a slice bound: an integer, or nil meaning the default.
func indexValue(obj object.Object, def int64) (int64, error) {
	switch obj := obj.(type) {
	case *object.NilType:
		return def, nil
	case *object.Int:
		return obj.Value(), nil
	default:
		return 0, object.TypeErrorf("slice bound must be an int (%s given)", obj.Type())
	}
}

// execCall dispatches a Call instruction: builtins run inline, classes
// construct instances, and functions push a new frame.
func (vm *VirtualMachine) execCall(ctx context.Context, inst compiler.Instruction) error {
	callee := vm.val(inst.B)
	argc := inst.C
	switch callee := callee.(type) {
	case *object.Builtin:
		args := vm.collect(inst.B+1, argc)
		result, err := callee.Call(ctx, args...)
		if err != nil {
			return vm.raise(err)
		}
		vm.setReg(inst.A, object.NewRef(result))
		return nil
	case *object.Function:
		argCells := make([]*object.Ref, argc)
		for i := 0; i < argc; i++ {
			argCells[i] = vm.reg(inst.B + 1 + i)
		}
		return vm.pushFrame(callee, argCells, inst.A)
	case *object.Class:
		return vm.construct(ctx, callee, inst)
	default:
		return vm.raise(object.TypeErrorf("object is not callable: %s", callee.Type()))
	}
}

// construct instantiates a class, running its init method when defined.
func (vm *VirtualMachine) construct(ctx context.Context, class *object.Class, inst compiler.Instruction) error {
	instance := object.NewInstance(class)
	init, found := class.Method("init")
	if !found {
		if inst.C != 0 {
			return vm.raise(object.TypeErrorf("%s() takes no arguments (%d given)",
				class.Name(), inst.C))
		}
		vm.setReg(inst.A, object.NewRef(instance))
		return nil
	}
	args := make([]*object.Ref, 1+inst.C)
	args[0] = object.NewRef(instance)
	for i := 0; i < inst.C; i++ {
		args[1+i] = vm.reg(inst.B + 1 + i)
	}
	// init's return value is discarded; the call site receives the
	// instance instead. The marker is set only when the frame was really
	// pushed, since a raised arity or depth failure may have been caught
	// in some caller, leaving a different frame active.
	prevDepth := vm.fp
	if err := vm.pushFrame(init, args, inst.A); err != nil {
		return err
	}
	if vm.fp == prevDepth+1 {
		vm.activeFrame.constructed = object.NewRef(instance)
	}
	return nil
}

// execCallMethod dispatches a CallMethod instruction through the per-frame
// method cache for class instances, or the builtin method table otherwise.
func (vm *VirtualMachine) execCallMethod(ctx context.Context, inst compiler.Instruction) error {
	site := vm.activeCode.Sites[inst.C]
	name := vm.activeCode.Names[site.NameIndex]
	recvCell := vm.reg(inst.B)
	recv := recvCell.Value()

	if instance, ok := recv.(*object.Instance); ok {
		method, found := vm.activeFrame.lookupMethod(instance.Class(), name, vm.classVersion)
		if !found {
			return vm.raise(object.TypeErrorf("%s object has no method %q",
				instance.Class().Name(), name))
		}
		args := make([]*object.Ref, 1+site.Argc)
		args[0] = recvCell
		for i := 0; i < site.Argc; i++ {
			args[1+i] = vm.reg(inst.B + 1 + i)
		}
		return vm.pushFrame(method, args, inst.A)
	}

	if method := object.LookupMethod(recv.Type(), name); method != nil {
		if method.Mutates {
			// Copy-on-write: mutating a shared cell would leak the change
			// to every alias, so the receiver is cloned first.
			recvCell = recvCell.CloneUnique()
			vm.setReg(inst.B, recvCell)
		}
		result, err := method.Func(recvCell.Value(), vm.collect(inst.B+1, site.Argc))
		if err != nil {
			return vm.raise(err)
		}
		vm.setReg(inst.A, object.NewRef(result))
		return nil
	}

	// Callable attribute lookup covers function-valued instance fields.
	if attr, found := recv.GetAttr(name); found {
		if fn, ok := attr.(*object.Function); ok {
			args := make([]*object.Ref, site.Argc)
			for i := 0; i < site.Argc; i++ {
				args[i] = vm.reg(inst.B + 1 + i)
			}
			return vm.pushFrame(fn, args, inst.A)
		}
	}
	return vm.raise(object.TypeErrorf("%s object has no method %q", recv.Type(), name))
}

// pushFrame activates a function in a new frame. Parameters bind to the
// argument cells, which gain a reference for the lifetime of the frame.
// The frame receives a snapshot of the authoritative globals.
func (vm *VirtualMachine) pushFrame(fn *object.Function, args []*object.Ref, dstReg int) error {
	params := fn.Parameters()
	if len(args) != len(params) {
		return vm.raise(object.TypeErrorf("%s() takes %d arguments (%d given)",
			functionName(fn), len(params), len(args)))
	}
	if vm.fp+1 >= MaxFrameDepth {
		return vm.raise(errz.Newf(errz.ErrRuntime, "maximum frame depth exceeded (%d)", MaxFrameDepth))
	}
	code, err := vm.loadCode(fn.Code())
	if err != nil {
		return err
	}
	vm.trackHotFunction(fn)

	globals := make(map[string]*object.Ref, len(vm.globals))
	for name, ref := range vm.globals {
		globals[name] = ref
	}

	vm.fp++
	frame := &vm.frames[vm.fp]
	frame.activate(code, fn, globals, vm.ip, dstReg)
	for i, cell := range args {
		cell.Inc()
		frame.locals[i] = cell
	}
	vm.activeFrame = frame
	vm.activeCode = code
	vm.ip = 0
	return nil
}

// execReturn pops the active frame, merging its globals snapshot back into
// the authoritative globals. Returns true when the module frame returned.
func (vm *VirtualMachine) execReturn(src int) bool {
	result := vm.reg(src)
	frame := vm.activeFrame
	if vm.fp == 0 {
		vm.result = result.Value()
		return true
	}
	// Locals give up their references as the frame dies. A unique cell is
	// left alone: its last holder may be the result register or a caller
	// register sharing the cell, and the frame's claim dies with the frame.
	for _, cell := range frame.locals {
		if cell != nil && !cell.Unique() {
			cell.Dec()
		}
	}
	for name, ref := range frame.globals {
		vm.globals[name] = ref
	}
	if frame.constructed != nil {
		result = frame.constructed
		frame.constructed = nil
	}
	vm.ip = frame.returnAddr
	vm.fp--
	vm.activeFrame = &vm.frames[vm.fp]
	vm.activeCode = vm.activeFrame.code
	vm.setReg(frame.dstReg, result)
	return false
}

// trackHotFunction counts invocations per compiled function. Counters
// persist across Run calls. Crossing the threshold hands the function to
// the native compilation hook exactly once.
func (vm *VirtualMachine) trackHotFunction(fn *object.Function) {
	if vm.hotThreshold <= 0 {
		return
	}
	code := fn.Code()
	vm.hotCounts[code]++
	if vm.hotCounts[code] == uint64(vm.hotThreshold) && !vm.hotCompiled[code] {
		vm.hotCompiled[code] = true
		vm.logger.Info().
			Str("function", functionName(fn)).
			Uint64("invocations", vm.hotCounts[code]).
			Msg("hot function detected")
		vm.compileNative(code)
	}
}

// compileNative is the native compilation hook. The current implementation
// only records the decision; the dispatch loop keeps interpreting.
func (vm *VirtualMachine) compileNative(code *compiler.Code) {
	vm.logger.Debug().Str("code", code.CodeName()).Msg("native compilation requested")
}

func functionName(fn *object.Function) string {
	if name := fn.Name(); name != "" {
		return name
	}
	return "<anonymous>"
}

// raise routes a failure through the exception machinery. It unwinds the
// block stack of the active frame and then, frame by frame, the callers.
// An except block receives the failure value in register 0. A finally
// block runs with the failure pending, to be re-raised by EndFinally.
// Returning a non-nil error means no handler exists and the failure
// escapes the machine.
func (vm *VirtualMachine) raise(failure error) error {
	var structured *errz.StructuredError
	if errors.As(failure, &structured) && structured.IsFatal() {
		return vm.withStack(structured)
	}
	for {
		frame := vm.activeFrame
		for {
			block, ok := frame.popBlock()
			if !ok {
				break
			}
			switch block.kind {
			case blockExcept:
				frame.registers[0] = object.NewRef(failureValue(failure))
				vm.ip = block.handler
				return nil
			case blockFinally:
				frame.pending = failure
				vm.ip = block.handler
				return nil
			}
			// Loop and with blocks unwind silently.
		}
		if vm.fp == 0 {
			return vm.attachContext(failure)
		}
		// No handler here: pop the frame and search the caller. The
		// globals snapshot is abandoned, not merged.
		vm.ip = frame.returnAddr
		vm.fp--
		vm.activeFrame = &vm.frames[vm.fp]
		vm.activeCode = vm.activeFrame.code
	}
}

// failureValue converts a failure into the value bound by an except
// clause: raised values pass through, runtime errors become error values.
func failureValue(failure error) object.Object {
	var raised *object.RaisedError
	if errors.As(failure, &raised) {
		return raised.Value
	}
	var structured *errz.StructuredError
	if errors.As(failure, &structured) {
		return object.NewError(structured.Message)
	}
	return object.NewError(failure.Error())
}

// attachContext decorates an escaping failure with location and stack
// information for diagnostics.
func (vm *VirtualMachine) attachContext(failure error) error {
	var structured *errz.StructuredError
	if errors.As(failure, &structured) {
		return vm.withStack(structured)
	}
	return failure
}

func (vm *VirtualMachine) withStack(err *errz.StructuredError) *errz.StructuredError {
	if err.Location.IsZero() {
		err.Location = vm.currentLocation()
	}
	if err.Stack == nil {
		err.Stack = vm.captureStack()
	}
	return err
}

func (vm *VirtualMachine) currentLocation() errz.SourceLocation {
	ip := vm.ip - 1
	if ip < 0 || ip >= len(vm.activeCode.Instructions) {
		return errz.SourceLocation{}
	}
	return errz.SourceLocation{
		Filename: vm.activeCode.Filename(),
		Line:     vm.activeCode.Instructions[ip].Line,
	}
}

func (vm *VirtualMachine) captureStack() []errz.StackFrame {
	var stack []errz.StackFrame
	for fp := vm.fp; fp >= 0; fp-- {
		frame := &vm.frames[fp]
		name := ""
		if frame.fn != nil {
			name = frame.fn.Name()
		}
		stack = append(stack, errz.StackFrame{
			Function: name,
			Location: errz.SourceLocation{Filename: frame.code.Filename()},
		})
	}
	return stack
}

func (vm *VirtualMachine) nameError(format string, args ...any) error {
	return errz.Newf(errz.ErrName, format, args...)
}

func (vm *VirtualMachine) fatalError(format string, args ...any) error {
	return vm.withStack(errz.Newf(errz.ErrIndex, format, args...))
}

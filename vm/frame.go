package vm

import (
	"github.com/pyrite-lang/pyrite/object"
)

type blockKind int

const (
	blockLoop blockKind = iota
	blockExcept
	blockFinally
	blockWith
)

// controlBlock is one entry on a frame's block stack. Loop and with blocks
// are bookkeeping popped during unwinding; except and finally blocks carry
// the handler target the unwinder resumes at.
type controlBlock struct {
	kind    blockKind
	handler int // jump target for except/finally
	exit    int // loop/with exit target
	cont    int // loop continue target
}

type methodCacheKey struct {
	class *object.Class
	name  string
}

type methodCacheEntry struct {
	version uint64
	fn      *object.Function
}

// frame is one activation record: a register file sized by the compiler's
// high-water mark, a locals array, a snapshot of the globals taken when the
// call was made, and a control block stack for loops and exception
// handling.
type frame struct {
	returnAddr int
	dstReg     int // caller register receiving the return value
	fn         *object.Function
	code       *loadedCode
	registers  []*object.Ref
	locals     []*object.Ref
	globals    map[string]*object.Ref
	blocks     []controlBlock

	// pending holds the in-flight failure while a finally body runs;
	// EndFinally re-raises it.
	pending error

	// constructed holds the new instance while an init method runs. The
	// call site receives it instead of init's return value.
	constructed *object.Ref

	// methodCache holds per-frame method resolutions validated against
	// the VM-wide class version.
	methodCache map[methodCacheKey]methodCacheEntry
}

func (f *frame) activate(code *loadedCode, fn *object.Function, globals map[string]*object.Ref, returnAddr, dstReg int) {
	f.code = code
	f.fn = fn
	f.globals = globals
	f.returnAddr = returnAddr
	f.dstReg = dstReg
	f.pending = nil
	f.constructed = nil
	f.blocks = f.blocks[:0]
	f.methodCache = nil

	if cap(f.registers) >= code.RegisterFile {
		f.registers = f.registers[:code.RegisterFile]
		for i := range f.registers {
			f.registers[i] = nil
		}
	} else {
		f.registers = make([]*object.Ref, code.RegisterFile)
	}
	localsCount := code.LocalsCount()
	if cap(f.locals) >= localsCount {
		f.locals = f.locals[:localsCount]
		for i := range f.locals {
			f.locals[i] = nil
		}
	} else {
		f.locals = make([]*object.Ref, localsCount)
	}
}

func (f *frame) pushBlock(b controlBlock) {
	f.blocks = append(f.blocks, b)
}

func (f *frame) popBlock() (controlBlock, bool) {
	if len(f.blocks) == 0 {
		return controlBlock{}, false
	}
	b := f.blocks[len(f.blocks)-1]
	f.blocks = f.blocks[:len(f.blocks)-1]
	return b, true
}

// lookupMethod consults the frame's method cache before resolving through
// the class. Entries stay valid while the VM-wide class version is
// unchanged.
func (f *frame) lookupMethod(class *object.Class, name string, classVersion uint64) (*object.Function, bool) {
	key := methodCacheKey{class: class, name: name}
	if entry, ok := f.methodCache[key]; ok && entry.version == classVersion {
		return entry.fn, true
	}
	fn, found := class.Method(name)
	if !found {
		return nil, false
	}
	if f.methodCache == nil {
		f.methodCache = map[methodCacheKey]methodCacheEntry{}
	}
	f.methodCache[key] = methodCacheEntry{version: classVersion, fn: fn}
	return fn, true
}

package compiler

import (
	"fmt"

	"github.com/pyrite-lang/pyrite/op"
)

// Instruction is one fixed-shape bytecode instruction: an opcode plus
// three integer operands and the source line it was compiled from. Not
// every opcode uses all three operands.
type Instruction struct {
	Op   op.Code
	A    int
	B    int
	C    int
	Line int
}

func (i Instruction) String() string {
	info := op.GetInfo(i.Op)
	switch info.OperandCount {
	case 0:
		return info.Name
	case 1:
		return fmt.Sprintf("%s %d", info.Name, i.A)
	case 2:
		return fmt.Sprintf("%s %d %d", info.Name, i.A, i.B)
	default:
		return fmt.Sprintf("%s %d %d %d", info.Name, i.A, i.B, i.C)
	}
}

// MethodCallSite describes one method call location: the index of the
// method name in the code's name table plus the argument count. CallMethod
// instructions reference sites by index in operand C.
type MethodCallSite struct {
	NameIndex int
	Argc      int
}

type loop struct {
	code        *Code
	setupPos    int
	continuePos []int
	breakPos    []int

	// Control blocks opened inside this loop and not yet closed. A break
	// or continue pops these before jumping.
	openBlocks int
}

func (l *loop) end() {
	code := l.code
	code.loops = code.loops[:len(code.loops)-1]
}

// Code is one compiled code unit: the module body or one function body.
// Function bodies are self-contained children referenced from the parent's
// constant pool.
type Code struct {
	id           string
	name         string
	parent       *Code
	children     []*Code
	symbols      *SymbolTable
	instructions []Instruction
	constants    []any
	names        []string
	nameIndexes  map[string]int
	methodSites  []MethodCallSite
	registers    int
	cacheSlots   int
	source       string
	filename     string

	// Used during compilation only
	loops   []*loop
	nextReg int
}

func (c *Code) ID() string {
	return c.id
}

func (c *Code) CodeName() string {
	return c.name
}

func (c *Code) Parent() *Code {
	return c.parent
}

func (c *Code) Root() *Code {
	current := c
	for current.parent != nil {
		current = current.parent
	}
	return current
}

func (c *Code) IsRoot() bool {
	return c.parent == nil
}

func (c *Code) newChild(name string) *Code {
	child := &Code{
		id:          fmt.Sprintf("%s.%d", c.id, len(c.children)),
		name:        name,
		parent:      c,
		symbols:     c.symbols.NewChild(),
		nameIndexes: map[string]int{},
		filename:    c.filename,
	}
	c.children = append(c.children, child)
	return child
}

func (c *Code) InstructionCount() int {
	return len(c.instructions)
}

func (c *Code) Instruction(index int) Instruction {
	return c.instructions[index]
}

func (c *Code) ConstantsCount() int {
	return len(c.constants)
}

func (c *Code) Constant(index int) any {
	return c.constants[index]
}

// addName interns a name, returning its index. Unlike constants, names
// are deduplicated.
func (c *Code) addName(name string) int {
	if idx, ok := c.nameIndexes[name]; ok {
		return idx
	}
	idx := len(c.names)
	c.names = append(c.names, name)
	c.nameIndexes[name] = idx
	return idx
}

func (c *Code) NameCount() int {
	return len(c.names)
}

func (c *Code) Name(index int) string {
	return c.names[index]
}

func (c *Code) MethodSiteCount() int {
	return len(c.methodSites)
}

func (c *Code) MethodSite(index int) MethodCallSite {
	return c.methodSites[index]
}

// Registers returns the register file size this code requires: the
// high-water mark of register allocation during compilation.
func (c *Code) Registers() int {
	return c.registers
}

// CacheSlots returns the number of inline cache slots this code requires,
// one per LoadGlobal site.
func (c *Code) CacheSlots() int {
	return c.cacheSlots
}

func (c *Code) LocalsCount() int {
	return c.symbols.Count()
}

func (c *Code) Local(index int) *Symbol {
	return c.symbols.Symbol(index)
}

func (c *Code) GlobalsCount() int {
	return c.symbols.Root().Count()
}

func (c *Code) GlobalNames() []string {
	root := c.symbols.Root()
	names := make([]string, root.Count())
	for i := range names {
		names[i] = root.Symbol(i).Name()
	}
	return names
}

func (c *Code) Source() string {
	return c.source
}

func (c *Code) Filename() string {
	return c.filename
}

// Flatten returns this code and all nested function codes.
func (c *Code) Flatten() []*Code {
	codes := []*Code{c}
	for _, child := range c.children {
		codes = append(codes, child.Flatten()...)
	}
	return codes
}

// Function is an immutable compiled function template: a signature plus
// the code for its body. The runtime wraps it together with captured cells
// to form callable values.
type Function struct {
	name       string
	parameters []string
	defaults   []any
	code       *Code
}

func (f *Function) Name() string {
	return f.name
}

func (f *Function) Parameters() []string {
	return f.parameters
}

func (f *Function) Defaults() []any {
	return f.defaults
}

func (f *Function) Code() *Code {
	return f.code
}

// NewFunction creates a compiled function template.
func NewFunction(name string, parameters []string, defaults []any, code *Code) *Function {
	return &Function{name: name, parameters: parameters, defaults: defaults, code: code}
}

// Class is a compiled class template: a name plus compiled method
// templates in declaration order.
type Class struct {
	name    string
	methods []*Function
}

func (c *Class) Name() string {
	return c.name
}

func (c *Class) Methods() []*Function {
	return c.methods
}

// NewClass creates a compiled class template.
func NewClass(name string, methods []*Function) *Class {
	return &Class{name: name, methods: methods}
}

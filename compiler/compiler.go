// Package compiler lowers a Pyrite abstract syntax tree into register-based
// bytecode.
//
// # Register Allocation
//
// Each code unit owns a virtual register file. Registers are allocated in a
// strictly increasing sequence and never reused within a code unit; the
// high-water mark becomes the frame's register file size. Register 0 is
// reserved as the exception register: when a raised value is caught, the
// virtual machine places it there before resuming at the handler.
//
// Local variables do not live in registers. They occupy a per-frame locals
// array indexed by symbol table position, and move between locals and
// registers via LoadLocal/StoreLocal. This keeps register numbering purely
// monotonic while still giving closures stable cells to capture.
//
// # Jump Back-Patching
//
// Forward jump targets are emitted as a placeholder operand and patched once
// the target position is known. Loops collect their break and continue jump
// positions and patch them when the loop ends. Exception handler targets on
// SetupExcept/SetupFinally follow the same protocol: the try body is
// compiled exactly once and the recorded setup positions are resolved
// afterwards.
//
// # Symbol Scopes
//
// The compiler tracks three variable scopes:
//
//   - Global: module-level variables, accessed via LoadGlobal/StoreGlobal
//     with a per-site inline cache slot
//   - Local: function-local variables, accessed via LoadLocal/StoreLocal
//   - Free: captured closure variables, accessed via LoadFree/StoreFree
//
// When a function references a variable from an enclosing function, the
// compiler emits MakeCell instructions to capture the variable's cell into
// the closure.
package compiler

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/pyrite-lang/pyrite/ast"
	"github.com/pyrite-lang/pyrite/errz"
	"github.com/pyrite-lang/pyrite/op"
)

const (
	// MaxArgs is the maximum number of arguments a function can have.
	MaxArgs = 255

	// Placeholder is a temporary operand written during compilation, which
	// is always replaced before compilation is complete.
	Placeholder = -1

	// ExceptionRegister is reserved in every frame for caught values.
	ExceptionRegister = 0

	// maxImmediate bounds the immediate operand of the fused arithmetic
	// and comparison instructions.
	maxImmediate = 1 << 15
)

// Compiler lowers Pyrite AST nodes into bytecode.
type Compiler struct {
	// The entrypoint code we are compiling. This remains fixed throughout
	// the compilation process.
	main *Code

	// The current code we are compiling into. This changes as we enter
	// and leave functions.
	current *Code

	// Names of globals available during compilation
	globalNames []string

	// Source filename
	filename string

	// Original source code, for error messages
	source string

	// Current AST node being compiled, for source line tracking
	currentNode ast.Node
}

// Config holds compiler configuration options.
type Config struct {
	// GlobalNames are the names of global variables available during
	// compilation. These are typically the builtin names plus the keys of
	// the environment map passed to the VM.
	GlobalNames []string

	// Filename is the source filename, used for error messages.
	Filename string

	// Source is the original source code, used for error messages.
	Source string
}

// Compile compiles the given program and returns the resulting code.
// Pass nil for cfg to use default settings.
func Compile(node *ast.Program, cfg *Config) (*Code, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return c.CompileProgram(node)
}

// New creates and returns a new Compiler. Pass nil for cfg to use defaults.
func New(cfg *Config) (*Compiler, error) {
	c := &Compiler{}
	if cfg != nil {
		c.globalNames = make([]string, len(cfg.GlobalNames))
		copy(c.globalNames, cfg.GlobalNames) // isolate from caller
		c.filename = cfg.Filename
		c.source = cfg.Source
	}
	c.main = &Code{
		id:          "__main__",
		name:        "__main__",
		symbols:     NewSymbolTable(),
		nameIndexes: map[string]int{},
		filename:    c.filename,
		source:      c.source,
		nextReg:     1, // register 0 is the exception register
	}
	// Insert the supplied global names into the root symbol table so that
	// references to them resolve during compilation.
	sort.Strings(c.globalNames)
	for _, name := range c.globalNames {
		if c.main.symbols.IsDefined(name) {
			continue
		}
		if _, err := c.main.symbols.Insert(name); err != nil {
			return nil, err
		}
	}
	c.current = c.main
	return c, nil
}

// Code returns the compiled code for the entrypoint.
func (c *Compiler) Code() *Code {
	return c.main
}

// CompileProgram compiles a parsed program into the main code unit. The
// compiled program ends with a ReturnValue carrying the value of the last
// expression statement, or nil when the program ends with another kind of
// statement.
func (c *Compiler) CompileProgram(node *ast.Program) (*Code, error) {
	// First pass over the statement list registers top-level function and
	// class names, so that earlier functions can reference later ones.
	if err := c.collectDeclarations(node.Stmts); err != nil {
		return nil, err
	}
	// Each top-level statement compiles independently so that one failure
	// does not hide the others.
	var result error
	count := len(node.Stmts)
	for i, stmt := range node.Stmts {
		if i == count-1 {
			if expr, ok := stmt.(*ast.ExprStmt); ok {
				reg, err := c.compileExpr(expr.X)
				if err != nil {
					result = multierror.Append(result, err)
					break
				}
				c.emit(op.ReturnValue, reg)
				break
			}
		}
		if err := c.compileStmt(stmt); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		return nil, result
	}
	last := c.current.instructions
	if len(last) == 0 || last[len(last)-1].Op != op.ReturnValue {
		reg := c.allocReg()
		c.emit(op.LoadConst, reg, c.constant(nil))
		c.emit(op.ReturnValue, reg)
	}
	return c.main, nil
}

// collectDeclarations registers top-level function and class names before
// compilation so that forward references resolve.
func (c *Compiler) collectDeclarations(stmts []ast.Stmt) error {
	for _, stmt := range stmts {
		var name string
		var pos ast.Position
		switch stmt := stmt.(type) {
		case *ast.FuncDef:
			name, pos = stmt.Name, stmt.Pos()
		case *ast.ClassDef:
			name, pos = stmt.Name, stmt.Pos()
		default:
			continue
		}
		if _, found := c.current.symbols.Get(name); found {
			return c.formatError(fmt.Sprintf("%q redefined", name), pos)
		}
		if _, err := c.current.symbols.Insert(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(node ast.Stmt) error {
	c.currentNode = node
	switch node := node.(type) {
	case *ast.ExprStmt:
		return c.compileExprStmt(node)
	case *ast.Assign:
		return c.compileAssign(node)
	case *ast.SetIndex:
		return c.compileSetIndex(node)
	case *ast.SetAttr:
		return c.compileSetAttr(node)
	case *ast.Block:
		return c.compileBlock(node)
	case *ast.If:
		return c.compileIf(node)
	case *ast.While:
		return c.compileWhile(node)
	case *ast.For:
		return c.compileFor(node)
	case *ast.Break:
		return c.compileBreak(node)
	case *ast.Continue:
		return c.compileContinue(node)
	case *ast.Pass:
		return nil
	case *ast.FuncDef:
		return c.compileFuncDef(node)
	case *ast.ClassDef:
		return c.compileClassDef(node)
	case *ast.Return:
		return c.compileReturn(node)
	case *ast.Try:
		return c.compileTry(node)
	case *ast.Raise:
		return c.compileRaise(node)
	case *ast.Assert:
		return c.compileAssert(node)
	case *ast.With:
		return c.compileWith(node)
	case *ast.Match:
		return c.compileMatch(node)
	default:
		return c.formatError(fmt.Sprintf("unknown statement type: %T", node), node.Pos())
	}
}

// compileExpr compiles an expression and returns the register holding its
// result.
func (c *Compiler) compileExpr(node ast.Expr) (int, error) {
	c.currentNode = node
	switch node := node.(type) {
	case *ast.Int:
		return c.compileConstExpr(node.Value)
	case *ast.Float:
		return c.compileConstExpr(node.Value)
	case *ast.String:
		return c.compileConstExpr(node.Value)
	case *ast.Bool:
		return c.compileConstExpr(node.Value)
	case *ast.Nil:
		return c.compileConstExpr(nil)
	case *ast.Ident:
		return c.compileIdent(node)
	case *ast.Infix:
		return c.compileInfix(node)
	case *ast.Prefix:
		return c.compilePrefix(node)
	case *ast.Call:
		return c.compileCall(node)
	case *ast.MethodCall:
		return c.compileMethodCall(node)
	case *ast.GetAttr:
		return c.compileGetAttr(node)
	case *ast.Index:
		return c.compileIndex(node)
	case *ast.Slice:
		return c.compileSlice(node)
	case *ast.List:
		return c.compileAggregate(op.BuildList, node.Items)
	case *ast.Tuple:
		return c.compileAggregate(op.BuildTuple, node.Items)
	case *ast.Set:
		return c.compileAggregate(op.BuildSet, node.Items)
	case *ast.Map:
		return c.compileMap(node)
	case *ast.In:
		return c.compileIn(node)
	case *ast.Lambda:
		return c.compileLambda(node)
	case *ast.FormatString:
		return c.compileFormatString(node)
	case *ast.Comprehension:
		return 0, c.unsupported("comprehensions", node.Pos())
	case *ast.Await:
		return 0, c.unsupported("await", node.Pos())
	case *ast.Yield:
		return 0, c.unsupported("yield", node.Pos())
	default:
		return 0, c.formatError(fmt.Sprintf("unknown expression type: %T", node), node.Pos())
	}
}

func (c *Compiler) compileConstExpr(value any) (int, error) {
	dst := c.allocReg()
	c.emit(op.LoadConst, dst, c.constant(value))
	return dst, nil
}

func (c *Compiler) compileIdent(node *ast.Ident) (int, error) {
	resolution, found := c.current.symbols.Resolve(node.Name)
	if !found {
		return 0, c.formatError(fmt.Sprintf("undefined variable %q", node.Name), node.Pos())
	}
	dst := c.allocReg()
	c.emitLoad(dst, resolution, node.Name)
	return dst, nil
}

// emitLoad emits the load instruction matching the variable's scope.
// LoadGlobal sites each get their own inline cache slot.
func (c *Compiler) emitLoad(dst int, resolution *Resolution, name string) {
	switch resolution.scope {
	case Global:
		slot := c.current.cacheSlots
		c.current.cacheSlots++
		c.emit(op.LoadGlobal, dst, c.current.addName(name), slot)
	case Local:
		c.emit(op.LoadLocal, dst, resolution.symbol.Index())
	case Free:
		c.emit(op.LoadFree, dst, resolution.freeIndex)
	}
}

// emitStore emits the store instruction matching the variable's scope.
func (c *Compiler) emitStore(src int, resolution *Resolution, name string) {
	switch resolution.scope {
	case Global:
		c.emit(op.StoreGlobal, c.current.addName(name), src)
	case Local:
		c.emit(op.StoreLocal, resolution.symbol.Index(), src)
	case Free:
		c.emit(op.StoreFree, resolution.freeIndex, src)
	}
}

func (c *Compiler) compileExprStmt(node *ast.ExprStmt) error {
	reg, err := c.compileExpr(node.X)
	if err != nil {
		return err
	}
	// The result is discarded, so a freshly produced cell gives up this
	// reference. A bare name aliases the variable's cell without a
	// matching increment and keeps its count.
	if _, aliased := node.X.(*ast.Ident); !aliased {
		c.emit(op.DecRef, reg)
	}
	return nil
}

// resolveAssignTarget resolves the target of an assignment, defining the
// name in the current scope when it is not yet bound.
func (c *Compiler) resolveAssignTarget(name string) (*Resolution, error) {
	if resolution, found := c.current.symbols.Resolve(name); found {
		// Assignment only targets module scope at module level. Inside a
		// function, assigning a name that resolved globally creates a
		// local that shadows it from this point on. Free variables stay
		// writable through their captured cells.
		if resolution.scope != Global || c.current.symbols.IsGlobal() {
			return resolution, nil
		}
	}
	symbol, err := c.current.symbols.Insert(name)
	if err != nil {
		return nil, err
	}
	scope := Local
	if c.current.symbols.IsGlobal() {
		scope = Global
	}
	return &Resolution{symbol: symbol, scope: scope}, nil
}

func (c *Compiler) compileAssign(node *ast.Assign) error {
	if node.Op != "=" {
		return c.compileAugAssign(node)
	}
	resolution, err := c.resolveAssignTarget(node.Name)
	if err != nil {
		return err
	}
	// Fused forms for local targets. These have semantics identical to the
	// unfused load/op/store sequences.
	if resolution.scope == Local {
		if done := c.fuseLocalAssign(node, resolution); done {
			return nil
		}
	}
	reg, err := c.compileExpr(node.Value)
	if err != nil {
		return err
	}
	// A bare name on the right-hand side aliases the cell rather than
	// producing a fresh value, so the cell gains a reference.
	if _, aliased := node.Value.(*ast.Ident); aliased {
		c.emit(op.IncRef, reg)
	}
	c.emitStore(reg, resolution, node.Name)
	return nil
}

// fuseLocalAssign recognizes the assignment shapes covered by the
// super-instructions and emits the fused form. Returns true if it emitted
// anything.
func (c *Compiler) fuseLocalAssign(node *ast.Assign, resolution *Resolution) bool {
	local := resolution.symbol.Index()
	switch value := node.Value.(type) {
	case *ast.Int:
		c.emit(op.StoreConst, local, c.constant(value.Value))
		return true
	case *ast.Float:
		c.emit(op.StoreConst, local, c.constant(value.Value))
		return true
	case *ast.String:
		c.emit(op.StoreConst, local, c.constant(value.Value))
		return true
	case *ast.Bool:
		c.emit(op.StoreConst, local, c.constant(value.Value))
		return true
	case *ast.Nil:
		c.emit(op.StoreConst, local, c.constant(nil))
		return true
	case *ast.Infix:
		lhs, lhsIsIdent := value.X.(*ast.Ident)
		rhs, rhsIsIdent := value.Y.(*ast.Ident)
		// x = x + k and x = x - k increment in place.
		if lhsIsIdent && lhs.Name == node.Name {
			if k, ok := value.Y.(*ast.Int); ok && smallImmediate(k.Value) {
				switch value.Op {
				case "+":
					c.emit(op.IncLocal, local, int(k.Value))
					return true
				case "-":
					c.emit(op.IncLocal, local, int(-k.Value))
					return true
				}
			}
		}
		// x = a + b over three locals fuses the whole sequence.
		if value.Op == "+" && lhsIsIdent && rhsIsIdent {
			lres, lok := c.current.symbols.Resolve(lhs.Name)
			rres, rok := c.current.symbols.Resolve(rhs.Name)
			if lok && rok && lres.scope == Local && rres.scope == Local {
				c.emit(op.AddStore, local, lres.symbol.Index(), rres.symbol.Index())
				return true
			}
		}
	}
	return false
}

func (c *Compiler) compileAugAssign(node *ast.Assign) error {
	resolution, found := c.current.symbols.Resolve(node.Name)
	if !found {
		return c.formatError(fmt.Sprintf("undefined variable %q", node.Name), node.Pos())
	}
	lhs := c.allocReg()
	c.emitLoad(lhs, resolution, node.Name)
	rhs, err := c.compileExpr(node.Value)
	if err != nil {
		return err
	}
	switch node.Op {
	case "+=":
		// InplaceAdd mutates the cell when it is unique and allocates a
		// fresh cell otherwise.
		c.emit(op.InplaceAdd, lhs, rhs)
		c.emitStore(lhs, resolution, node.Name)
		return nil
	case "-=", "*=", "/=", "%=":
		dst := c.allocReg()
		c.emit(binaryOpcodeFor(node.Op[:1]), dst, lhs, rhs)
		c.emitStore(dst, resolution, node.Name)
		return nil
	default:
		return c.formatError(fmt.Sprintf("unknown assignment operator %q", node.Op), node.Pos())
	}
}

func binaryOpcodeFor(operator string) op.Code {
	switch operator {
	case "+":
		return op.AddInt
	case "-":
		return op.SubInt
	case "*":
		return op.MulInt
	case "%":
		return op.ModInt
	case "/":
		return op.Div
	case "**":
		return op.Pow
	default:
		return op.Invalid
	}
}

func (c *Compiler) compileSetIndex(node *ast.SetIndex) error {
	obj, err := c.compileExpr(node.X)
	if err != nil {
		return err
	}
	target, isVar := node.X.(*ast.Ident)
	if isVar {
		// Copy-on-write: a shared cell is cloned before mutation so other
		// holders keep the old value, then the clone is written back.
		c.emit(op.CloneUnique, obj)
	}
	idx, err := c.compileExpr(node.Index)
	if err != nil {
		return err
	}
	value, err := c.compileExpr(node.Value)
	if err != nil {
		return err
	}
	c.emit(op.SetIndex, obj, idx, value)
	if isVar {
		resolution, found := c.current.symbols.Resolve(target.Name)
		if !found {
			return c.formatError(fmt.Sprintf("undefined variable %q", target.Name), node.Pos())
		}
		c.emitStore(obj, resolution, target.Name)
	}
	return nil
}

func (c *Compiler) compileSetAttr(node *ast.SetAttr) error {
	obj, err := c.compileExpr(node.X)
	if err != nil {
		return err
	}
	value, err := c.compileExpr(node.Value)
	if err != nil {
		return err
	}
	c.emit(op.SetAttr, obj, c.current.addName(node.Name), value)
	return nil
}

func (c *Compiler) compileBlock(node *ast.Block) error {
	for _, stmt := range node.Stmts {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileIf(node *ast.If) error {
	cond, err := c.compileExpr(node.Cond)
	if err != nil {
		return err
	}
	jumpElse := c.emit(op.JumpIfFalse, cond, Placeholder)
	if err := c.compileBlock(node.Consequence); err != nil {
		return err
	}
	if node.Alternative != nil {
		jumpEnd := c.emit(op.Jump, Placeholder)
		c.patchB(jumpElse, c.position())
		if err := c.compileBlock(node.Alternative); err != nil {
			return err
		}
		c.patchA(jumpEnd, c.position())
	} else {
		c.patchB(jumpElse, c.position())
	}
	return nil
}

// compileWhile emits a bottom-tested loop: a single unconditional jump to
// the condition, then LoopCond branches back to the body while it holds.
func (c *Compiler) compileWhile(node *ast.While) error {
	setupPos := c.emit(op.SetupLoop, Placeholder, Placeholder)
	l := c.startLoop(setupPos)
	defer l.end()

	jumpCond := c.emit(op.Jump, Placeholder)
	bodyPos := c.position()
	if err := c.compileBlock(node.Body); err != nil {
		return err
	}
	condPos := c.position()
	c.patchA(jumpCond, condPos)
	cond, err := c.compileExpr(node.Cond)
	if err != nil {
		return err
	}
	c.emit(op.LoopCond, cond, bodyPos, Placeholder)
	popPos := c.position()
	c.patchC(popPos-1, popPos)
	c.emit(op.PopBlock)
	exit := c.position()

	c.patchA(setupPos, exit)
	c.patchB(setupPos, condPos)
	c.patchJumps(l.breakPos, popPos)
	c.patchJumps(l.continuePos, condPos)
	return nil
}

func (c *Compiler) compileFor(node *ast.For) error {
	src, err := c.compileExpr(node.Iterable)
	if err != nil {
		return err
	}
	iter := c.allocReg()
	c.emit(op.GetIter, iter, src)

	resolution, err := c.resolveAssignTarget(node.Var)
	if err != nil {
		return err
	}

	setupPos := c.emit(op.SetupLoop, Placeholder, Placeholder)
	l := c.startLoop(setupPos)
	defer l.end()

	item := c.allocReg()
	loopPos := c.position()
	forPos := c.emit(op.ForIter, item, iter, Placeholder)
	c.emitStore(item, resolution, node.Var)
	if err := c.compileBlock(node.Body); err != nil {
		return err
	}
	c.emit(op.Jump, loopPos)
	popPos := c.position()
	c.emit(op.PopBlock)
	// The iterator is dead once the loop exits.
	c.emit(op.DecRef, iter)
	exit := c.position()

	c.patchC(forPos, popPos)
	c.patchA(setupPos, exit)
	c.patchB(setupPos, loopPos)
	c.patchJumps(l.breakPos, popPos)
	c.patchJumps(l.continuePos, loopPos)
	return nil
}

func (c *Compiler) startLoop(setupPos int) *loop {
	l := &loop{code: c.current, setupPos: setupPos}
	c.current.loops = append(c.current.loops, l)
	return l
}

func (c *Compiler) currentLoop() *loop {
	loops := c.current.loops
	if len(loops) == 0 {
		return nil
	}
	return loops[len(loops)-1]
}

// emitBlockUnwind pops the control blocks opened since the innermost loop,
// so that a break or continue leaves the block stack consistent.
func (c *Compiler) emitBlockUnwind(l *loop) {
	for i := 0; i < l.openBlocks; i++ {
		c.emit(op.PopBlock)
	}
}

func (c *Compiler) compileBreak(node *ast.Break) error {
	l := c.currentLoop()
	if l == nil {
		return c.formatError("break outside of a loop", node.Pos())
	}
	c.emitBlockUnwind(l)
	pos := c.emit(op.Jump, Placeholder)
	l.breakPos = append(l.breakPos, pos)
	return nil
}

func (c *Compiler) compileContinue(node *ast.Continue) error {
	l := c.currentLoop()
	if l == nil {
		return c.formatError("continue outside of a loop", node.Pos())
	}
	c.emitBlockUnwind(l)
	pos := c.emit(op.Jump, Placeholder)
	l.continuePos = append(l.continuePos, pos)
	return nil
}

// compileReturn handles returns inside functions and at module level,
// where the returned value becomes the program result.
func (c *Compiler) compileReturn(node *ast.Return) error {
	var reg int
	var err error
	if node.Value != nil {
		reg, err = c.compileExpr(node.Value)
		if err != nil {
			return err
		}
	} else {
		reg, _ = c.compileConstExpr(nil)
	}
	c.emit(op.ReturnValue, reg)
	return nil
}

func (c *Compiler) compileRaise(node *ast.Raise) error {
	reg, err := c.compileExpr(node.Value)
	if err != nil {
		return err
	}
	c.emit(op.Raise, reg)
	return nil
}

func (c *Compiler) compileAssert(node *ast.Assert) error {
	cond, err := c.compileExpr(node.Cond)
	if err != nil {
		return err
	}
	msg := -1
	if node.Message != "" {
		msg = c.constant(node.Message)
	}
	c.emit(op.Assert, cond, msg)
	return nil
}

// compileTry compiles a try statement in a single pass. Handler targets on
// the setup instructions are placeholders patched once the body has been
// emitted, so the body is never compiled twice.
//
// Layout with both clauses present:
//
//	SetupFinally  -> finallyPos
//	SetupExcept   -> handlerPos
//	<body>
//	PopBlock                 (except block, normal path)
//	Jump          -> afterExcept
//	handlerPos:   bind register 0, <except body>
//	afterExcept:  PopBlock   (finally block, normal path)
//	finallyPos:   <finally body>
//	EndFinally               (re-raises a pending failure)
func (c *Compiler) compileTry(node *ast.Try) error {
	if node.Except == nil && node.Finally == nil {
		return c.compileBlock(node.Body)
	}
	setupFinally := -1
	if node.Finally != nil {
		setupFinally = c.emit(op.SetupFinally, Placeholder)
		c.pushBlockMarker()
	}
	setupExcept := -1
	if node.Except != nil {
		setupExcept = c.emit(op.SetupExcept, Placeholder)
		c.pushBlockMarker()
	}

	if err := c.compileBlock(node.Body); err != nil {
		return err
	}

	if node.Except != nil {
		c.emit(op.PopBlock)
		c.popBlockMarker()
		jumpAfter := c.emit(op.Jump, Placeholder)

		c.patchA(setupExcept, c.position())
		if node.Except.Name != "" {
			resolution, err := c.resolveAssignTarget(node.Except.Name)
			if err != nil {
				return err
			}
			c.emitStore(ExceptionRegister, resolution, node.Except.Name)
		}
		if err := c.compileBlock(node.Except.Body); err != nil {
			return err
		}
		c.patchA(jumpAfter, c.position())
	}

	if node.Finally != nil {
		c.emit(op.PopBlock)
		c.popBlockMarker()
		c.patchA(setupFinally, c.position())
		if err := c.compileBlock(node.Finally); err != nil {
			return err
		}
		c.emit(op.EndFinally)
	}
	return nil
}

func (c *Compiler) compileWith(node *ast.With) error {
	resource, err := c.compileExpr(node.X)
	if err != nil {
		return err
	}
	setupPos := c.emit(op.SetupWith, Placeholder)
	c.pushBlockMarker()
	if node.Name != "" {
		resolution, err := c.resolveAssignTarget(node.Name)
		if err != nil {
			return err
		}
		c.emit(op.IncRef, resource)
		c.emitStore(resource, resolution, node.Name)
	}
	if err := c.compileBlock(node.Body); err != nil {
		return err
	}
	c.emit(op.PopBlock)
	c.popBlockMarker()
	// Release the resource register only when it holds a fresh cell; a
	// bare name aliases the variable's cell.
	if _, aliased := node.X.(*ast.Ident); !aliased {
		c.emit(op.DecRef, resource)
	}
	c.patchA(setupPos, c.position())
	return nil
}

func (c *Compiler) compileMatch(node *ast.Match) error {
	subject, err := c.compileExpr(node.Subject)
	if err != nil {
		return err
	}
	var endJumps []int
	for _, matchCase := range node.Cases {
		var failJumps []int
		if err := c.compilePattern(matchCase.Pattern, subject, &failJumps); err != nil {
			return err
		}
		if matchCase.Guard != nil {
			guard, err := c.compileExpr(matchCase.Guard)
			if err != nil {
				return err
			}
			failJumps = append(failJumps, c.emit(op.JumpIfFalse, guard, Placeholder))
		}
		if err := c.compileBlock(matchCase.Body); err != nil {
			return err
		}
		endJumps = append(endJumps, c.emit(op.Jump, Placeholder))
		for _, pos := range failJumps {
			c.patchFail(pos, c.position())
		}
	}
	end := c.position()
	c.patchJumps(endJumps, end)
	return nil
}

// compilePattern emits the tests and captures for one pattern. Jumps taken
// when the pattern fails are appended to failJumps for the caller to patch
// to the next case.
func (c *Compiler) compilePattern(pattern ast.Pattern, subject int, failJumps *[]int) error {
	switch pattern := pattern.(type) {
	case *ast.LiteralPattern:
		value, err := literalValue(pattern.Value)
		if err != nil {
			return c.formatError(err.Error(), pattern.Pos())
		}
		dst := c.allocReg()
		c.emit(op.MatchLiteral, dst, subject, c.constant(value))
		*failJumps = append(*failJumps, c.emit(op.JumpIfFalse, dst, Placeholder))
		return nil
	case *ast.CapturePattern:
		if pattern.Name == "" || pattern.Name == "_" {
			return nil // wildcard always matches
		}
		resolution, err := c.resolveAssignTarget(pattern.Name)
		if err != nil {
			return err
		}
		c.emit(op.IncRef, subject)
		c.emitStore(subject, resolution, pattern.Name)
		return nil
	case *ast.SequencePattern:
		dst := c.allocReg()
		c.emit(op.MatchSequence, dst, subject, len(pattern.Items))
		*failJumps = append(*failJumps, c.emit(op.JumpIfFalse, dst, Placeholder))
		for i, item := range pattern.Items {
			idx, _ := c.compileConstExpr(int64(i))
			element := c.allocReg()
			c.emit(op.GetIndex, element, subject, idx)
			if err := c.compilePattern(item, element, failJumps); err != nil {
				return err
			}
		}
		return nil
	case *ast.MappingPattern:
		keys := make([]any, len(pattern.Keys))
		for i, key := range pattern.Keys {
			keys[i] = key
		}
		dst := c.allocReg()
		c.emit(op.MatchMapping, dst, subject, c.constant(keys))
		*failJumps = append(*failJumps, c.emit(op.JumpIfFalse, dst, Placeholder))
		for i, key := range pattern.Keys {
			keyReg, _ := c.compileConstExpr(key)
			value := c.allocReg()
			c.emit(op.GetIndex, value, subject, keyReg)
			if err := c.compilePattern(pattern.Values[i], value, failJumps); err != nil {
				return err
			}
		}
		return nil
	case *ast.ClassPattern:
		dst := c.allocReg()
		c.emit(op.MatchClass, dst, subject, c.current.addName(pattern.Name))
		*failJumps = append(*failJumps, c.emit(op.JumpIfFalse, dst, Placeholder))
		return nil
	case *ast.OrPattern:
		var matchJumps []int
		for i, alt := range pattern.Alts {
			if i == len(pattern.Alts)-1 {
				if err := c.compilePattern(alt, subject, failJumps); err != nil {
					return err
				}
				break
			}
			var altFails []int
			if err := c.compilePattern(alt, subject, &altFails); err != nil {
				return err
			}
			matchJumps = append(matchJumps, c.emit(op.Jump, Placeholder))
			for _, pos := range altFails {
				c.patchFail(pos, c.position())
			}
		}
		c.patchJumps(matchJumps, c.position())
		return nil
	default:
		return c.formatError(fmt.Sprintf("unknown pattern type: %T", pattern), pattern.Pos())
	}
}

func literalValue(node ast.Expr) (any, error) {
	switch node := node.(type) {
	case *ast.Int:
		return node.Value, nil
	case *ast.Float:
		return node.Value, nil
	case *ast.String:
		return node.Value, nil
	case *ast.Bool:
		return node.Value, nil
	case *ast.Nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("pattern literal must be a constant (got %T)", node)
	}
}

func (c *Compiler) compileInfix(node *ast.Infix) (int, error) {
	switch node.Op {
	case "and":
		return c.compileAnd(node)
	case "or":
		return c.compileOr(node)
	}
	lhs, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	// Comparisons and integer arithmetic against a small integer literal
	// use the immediate forms, avoiding a constant load.
	if k, ok := node.Y.(*ast.Int); ok && smallImmediate(k.Value) {
		if opcode := immediateOpcode(node.Op); opcode != op.Invalid {
			dst := c.allocReg()
			c.emit(opcode, dst, lhs, int(k.Value))
			return dst, nil
		}
	}
	rhs, err := c.compileExpr(node.Y)
	if err != nil {
		return 0, err
	}
	opcode := infixOpcode(node.Op)
	if opcode == op.Invalid {
		return 0, c.formatError(fmt.Sprintf("unknown operator %q", node.Op), node.Pos())
	}
	dst := c.allocReg()
	c.emit(opcode, dst, lhs, rhs)
	return dst, nil
}

// infixOpcode maps an operator to its opcode. Addition, subtraction,
// multiplication, modulo and the ordered comparisons use the integer fast
// path, which falls back to the generic implementation on non-integer
// operands.
func infixOpcode(operator string) op.Code {
	switch operator {
	case "+":
		return op.AddInt
	case "-":
		return op.SubInt
	case "*":
		return op.MulInt
	case "%":
		return op.ModInt
	case "/":
		return op.Div
	case "**":
		return op.Pow
	case "==":
		return op.EqInt
	case "!=":
		return op.Ne
	case "<":
		return op.LtInt
	case "<=":
		return op.LeInt
	case ">":
		return op.GtInt
	case ">=":
		return op.GeInt
	default:
		return op.Invalid
	}
}

func immediateOpcode(operator string) op.Code {
	switch operator {
	case "+":
		return op.AddImm
	case "-":
		return op.SubImm
	case "*":
		return op.MulImm
	case "%":
		return op.ModImm
	case "==":
		return op.EqImm
	case "<":
		return op.LtImm
	case "<=":
		return op.LeImm
	case ">":
		return op.GtImm
	case ">=":
		return op.GeImm
	default:
		return op.Invalid
	}
}

func smallImmediate(value int64) bool {
	return value > -maxImmediate && value < maxImmediate
}

func (c *Compiler) compileAnd(node *ast.Infix) (int, error) {
	lhs, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(op.Move, dst, lhs)
	jumpEnd := c.emit(op.JumpIfFalse, lhs, Placeholder)
	rhs, err := c.compileExpr(node.Y)
	if err != nil {
		return 0, err
	}
	c.emit(op.Move, dst, rhs)
	c.patchB(jumpEnd, c.position())
	return dst, nil
}

func (c *Compiler) compileOr(node *ast.Infix) (int, error) {
	lhs, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(op.Move, dst, lhs)
	jumpEnd := c.emit(op.JumpIfTrue, lhs, Placeholder)
	rhs, err := c.compileExpr(node.Y)
	if err != nil {
		return 0, err
	}
	c.emit(op.Move, dst, rhs)
	c.patchB(jumpEnd, c.position())
	return dst, nil
}

func (c *Compiler) compilePrefix(node *ast.Prefix) (int, error) {
	src, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	switch node.Op {
	case "-":
		c.emit(op.UnaryNeg, dst, src)
	case "not":
		c.emit(op.UnaryNot, dst, src)
	default:
		return 0, c.formatError(fmt.Sprintf("unknown prefix operator %q", node.Op), node.Pos())
	}
	return dst, nil
}

// compileCall places the callee and arguments in a contiguous register run
// and emits Call. The contiguous layout lets the VM bind parameters with a
// single slice.
func (c *Compiler) compileCall(node *ast.Call) (int, error) {
	if len(node.Args) > MaxArgs {
		return 0, c.formatError("call exceeded argument limit of 255", node.Pos())
	}
	fn, err := c.compileExpr(node.Fun)
	if err != nil {
		return 0, err
	}
	args := make([]int, len(node.Args))
	for i, arg := range node.Args {
		args[i], err = c.compileExpr(arg)
		if err != nil {
			return 0, err
		}
	}
	base := c.allocRegs(1 + len(args))
	c.emit(op.Move, base, fn)
	for i, arg := range args {
		c.emit(op.Move, base+1+i, arg)
	}
	dst := c.allocReg()
	c.emit(op.Call, dst, base, len(args))
	return dst, nil
}

// compileMethodCall records a method call site (name plus argument count)
// in the per-code site table and emits CallMethod referencing it. When the
// receiver is a bare variable, the receiver register is written back after
// the call so mutating builtin methods observe copy-on-write semantics.
func (c *Compiler) compileMethodCall(node *ast.MethodCall) (int, error) {
	if len(node.Args) > MaxArgs {
		return 0, c.formatError("call exceeded argument limit of 255", node.Pos())
	}
	obj, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	args := make([]int, len(node.Args))
	for i, arg := range node.Args {
		args[i], err = c.compileExpr(arg)
		if err != nil {
			return 0, err
		}
	}
	base := c.allocRegs(1 + len(args))
	c.emit(op.Move, base, obj)
	for i, arg := range args {
		c.emit(op.Move, base+1+i, arg)
	}
	site := len(c.current.methodSites)
	c.current.methodSites = append(c.current.methodSites, MethodCallSite{
		NameIndex: c.current.addName(node.Name),
		Argc:      len(node.Args),
	})
	dst := c.allocReg()
	c.emit(op.CallMethod, dst, base, site)
	if target, isVar := node.X.(*ast.Ident); isVar {
		resolution, found := c.current.symbols.Resolve(target.Name)
		if !found {
			return 0, c.formatError(fmt.Sprintf("undefined variable %q", target.Name), node.Pos())
		}
		c.emitStore(base, resolution, target.Name)
	}
	return dst, nil
}

func (c *Compiler) compileGetAttr(node *ast.GetAttr) (int, error) {
	obj, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(op.GetAttr, dst, obj, c.current.addName(node.Name))
	return dst, nil
}

func (c *Compiler) compileIndex(node *ast.Index) (int, error) {
	obj, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	idx, err := c.compileExpr(node.Index)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(op.GetIndex, dst, obj, idx)
	return dst, nil
}

// compileSlice evaluates the bounds into a contiguous register pair. An
// omitted low bound is 0; an omitted high bound compiles to nil, which the
// VM reads as the container length.
func (c *Compiler) compileSlice(node *ast.Slice) (int, error) {
	obj, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	var low, high int
	if node.Low != nil {
		low, err = c.compileExpr(node.Low)
		if err != nil {
			return 0, err
		}
	} else {
		low, _ = c.compileConstExpr(int64(0))
	}
	if node.High != nil {
		high, err = c.compileExpr(node.High)
		if err != nil {
			return 0, err
		}
	} else {
		high, _ = c.compileConstExpr(nil)
	}
	bounds := c.allocRegs(2)
	c.emit(op.Move, bounds, low)
	c.emit(op.Move, bounds+1, high)
	dst := c.allocReg()
	c.emit(op.GetSlice, dst, obj, bounds)
	return dst, nil
}

func (c *Compiler) compileAggregate(opcode op.Code, items []ast.Expr) (int, error) {
	regs := make([]int, len(items))
	var err error
	for i, item := range items {
		regs[i], err = c.compileExpr(item)
		if err != nil {
			return 0, err
		}
	}
	base := 0
	if len(items) > 0 {
		base = c.allocRegs(len(items))
		for i, reg := range regs {
			c.emit(op.Move, base+i, reg)
		}
	}
	dst := c.allocReg()
	c.emit(opcode, dst, base, len(items))
	return dst, nil
}

func (c *Compiler) compileMap(node *ast.Map) (int, error) {
	count := len(node.Keys)
	base := 0
	if count > 0 {
		keys := make([]int, count)
		values := make([]int, count)
		var err error
		for i := range node.Keys {
			keys[i], err = c.compileExpr(node.Keys[i])
			if err != nil {
				return 0, err
			}
			values[i], err = c.compileExpr(node.Values[i])
			if err != nil {
				return 0, err
			}
		}
		base = c.allocRegs(2 * count)
		for i := 0; i < count; i++ {
			c.emit(op.Move, base+2*i, keys[i])
			c.emit(op.Move, base+2*i+1, values[i])
		}
	}
	dst := c.allocReg()
	c.emit(op.BuildMap, dst, base, count)
	return dst, nil
}

func (c *Compiler) compileIn(node *ast.In) (int, error) {
	item, err := c.compileExpr(node.X)
	if err != nil {
		return 0, err
	}
	container, err := c.compileExpr(node.Y)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(op.Contains, dst, container, item)
	if node.Negated {
		negated := c.allocReg()
		c.emit(op.UnaryNot, negated, dst)
		return negated, nil
	}
	return dst, nil
}

func (c *Compiler) compileFuncDef(node *ast.FuncDef) error {
	// Top-level declarations were registered by collectDeclarations, but
	// nested definitions bind their name here, before the body compiles,
	// so the body can reference it.
	resolution, err := c.resolveAssignTarget(node.Name)
	if err != nil {
		return err
	}
	fn, err := c.compileFunction(node.Name, node.Params, node.Body, node.Pos())
	if err != nil {
		return err
	}
	reg, err := c.emitFunctionLoad(fn)
	if err != nil {
		return err
	}
	c.emitStore(reg, resolution, node.Name)
	return nil
}

func (c *Compiler) compileLambda(node *ast.Lambda) (int, error) {
	body := &ast.Block{
		Position: node.Pos(),
		Stmts:    []ast.Stmt{&ast.Return{Position: node.Pos(), Value: node.Body}},
	}
	fn, err := c.compileFunction("", node.Params, body, node.Pos())
	if err != nil {
		return 0, err
	}
	return c.emitFunctionLoad(fn)
}

// compileFunction compiles a function body into a nested code unit and
// returns the immutable template.
func (c *Compiler) compileFunction(name string, params []string, body *ast.Block, pos ast.Position) (*Function, error) {
	if len(params) > MaxArgs {
		return nil, c.formatError("function exceeded parameter limit of 255", pos)
	}
	code := c.current.newChild(name)
	code.nextReg = 1
	c.current = code
	defer func() { c.current = code.parent }()

	for _, param := range params {
		if _, err := code.symbols.Insert(param); err != nil {
			return nil, err
		}
	}
	for _, stmt := range normalizeFunctionBody(body) {
		if err := c.compileStmt(stmt); err != nil {
			return nil, err
		}
	}
	return NewFunction(name, params, nil, code), nil
}

// normalizeFunctionBody guarantees the statement list ends with a return:
// either the first explicit return, or an implicit return of nil.
func normalizeFunctionBody(body *ast.Block) []ast.Stmt {
	stmts := body.Stmts
	for i, stmt := range stmts {
		if _, ok := stmt.(*ast.Return); ok {
			return stmts[:i+1]
		}
	}
	return append(append([]ast.Stmt{}, stmts...), &ast.Return{Position: body.Position})
}

// emitFunctionLoad emits the instructions that produce a function value. A
// function with free variables captures their cells via MakeCell placed in
// the registers directly after the closure's own, then MakeClosure bundles
// cells and template.
func (c *Compiler) emitFunctionLoad(fn *Function) (int, error) {
	code := fn.Code()
	freeCount := code.symbols.FreeCount()
	if freeCount == 0 {
		dst := c.allocReg()
		c.emit(op.LoadConst, dst, c.constant(fn))
		return dst, nil
	}
	dst := c.allocRegs(1 + freeCount)
	for i := 0; i < freeCount; i++ {
		resolution := code.symbols.FreeVar(i)
		name := resolution.symbol.Name()
		// The captured variable is either a local of this function or, for
		// deeper nesting, one of this function's own free variables.
		here, found := c.current.symbols.Resolve(name)
		if !found {
			return 0, fmt.Errorf("compile error: cannot capture %q", name)
		}
		switch here.scope {
		case Local:
			c.emit(op.MakeCell, dst+1+i, here.symbol.Index(), 0)
		case Free:
			c.emit(op.MakeCell, dst+1+i, here.freeIndex, 1)
		default:
			return 0, fmt.Errorf("compile error: cannot capture global %q", name)
		}
	}
	c.emit(op.MakeClosure, dst, c.constant(fn), freeCount)
	return dst, nil
}

func (c *Compiler) compileClassDef(node *ast.ClassDef) error {
	resolution, err := c.resolveAssignTarget(node.Name)
	if err != nil {
		return err
	}
	methods := make([]*Function, 0, len(node.Methods))
	for _, method := range node.Methods {
		fn, err := c.compileFunction(method.Name, method.Params, method.Body, method.Pos())
		if err != nil {
			return err
		}
		if fn.Code().symbols.FreeCount() > 0 {
			return c.formatError(
				fmt.Sprintf("method %q cannot capture enclosing variables", method.Name),
				method.Pos())
		}
		methods = append(methods, fn)
	}
	dst := c.allocReg()
	c.emit(op.MakeClass, dst, c.constant(NewClass(node.Name, methods)))
	c.emitStore(dst, resolution, node.Name)
	return nil
}

// compileFormatString concatenates literal fragments and stringified
// expression values left to right.
func (c *Compiler) compileFormatString(node *ast.FormatString) (int, error) {
	var parts []int
	for i := range node.Fragments {
		if node.Exprs[i] == nil {
			if node.Fragments[i] == "" {
				continue
			}
			reg, _ := c.compileConstExpr(node.Fragments[i])
			parts = append(parts, reg)
			continue
		}
		value, err := c.compileExpr(node.Exprs[i])
		if err != nil {
			return 0, err
		}
		// Interpolation formats through the str builtin.
		strFn := c.allocReg()
		slot := c.current.cacheSlots
		c.current.cacheSlots++
		c.emit(op.LoadGlobal, strFn, c.current.addName("str"), slot)
		base := c.allocRegs(2)
		c.emit(op.Move, base, strFn)
		c.emit(op.Move, base+1, value)
		dst := c.allocReg()
		c.emit(op.Call, dst, base, 1)
		parts = append(parts, dst)
	}
	if len(parts) == 0 {
		return c.compileConstExpr("")
	}
	result := parts[0]
	for _, part := range parts[1:] {
		dst := c.allocReg()
		c.emit(op.Add, dst, result, part)
		result = dst
	}
	return result, nil
}

func (c *Compiler) position() int {
	return len(c.current.instructions)
}

func (c *Compiler) constant(value any) int {
	code := c.current
	code.constants = append(code.constants, value)
	return len(code.constants) - 1
}

// allocReg claims the next register, bumping the code unit's high-water
// mark. Registers are never reused.
func (c *Compiler) allocReg() int {
	return c.allocRegs(1)
}

// allocRegs claims a contiguous run of registers and returns the first.
func (c *Compiler) allocRegs(n int) int {
	code := c.current
	first := code.nextReg
	code.nextReg += n
	if code.nextReg > code.registers {
		code.registers = code.nextReg
	}
	return first
}

func (c *Compiler) emit(opcode op.Code, operands ...int) int {
	code := c.current
	pos := len(code.instructions)
	inst := Instruction{Op: opcode, Line: c.currentLine()}
	switch len(operands) {
	case 3:
		inst.C = operands[2]
		fallthrough
	case 2:
		inst.B = operands[1]
		fallthrough
	case 1:
		inst.A = operands[0]
	}
	code.instructions = append(code.instructions, inst)
	return pos
}

func (c *Compiler) currentLine() int {
	if c.currentNode == nil {
		return 0
	}
	return c.currentNode.Pos().Line
}

func (c *Compiler) patchA(pos, target int) {
	c.current.instructions[pos].A = target
}

func (c *Compiler) patchB(pos, target int) {
	c.current.instructions[pos].B = target
}

func (c *Compiler) patchC(pos, target int) {
	c.current.instructions[pos].C = target
}

func (c *Compiler) patchJumps(positions []int, target int) {
	for _, pos := range positions {
		c.patchA(pos, target)
	}
}

// patchFail patches the pending-target operand of a pattern failure jump,
// which is operand B for JumpIfFalse.
func (c *Compiler) patchFail(pos, target int) {
	c.patchB(pos, target)
}

// pushBlockMarker records that a control block opened inside every loop
// currently being compiled, so break and continue emit the right number of
// PopBlock instructions.
func (c *Compiler) pushBlockMarker() {
	for _, l := range c.current.loops {
		l.openBlocks++
	}
}

func (c *Compiler) popBlockMarker() {
	for _, l := range c.current.loops {
		if l.openBlocks > 0 {
			l.openBlocks--
		}
	}
}

func (c *Compiler) formatError(msg string, pos ast.Position) error {
	return errz.NewWithLocation(errz.ErrCompile, msg, errz.SourceLocation{
		Filename: c.filename,
		Line:     pos.Line,
		Column:   pos.Column,
	}, nil)
}

func (c *Compiler) unsupported(what string, pos ast.Position) error {
	return errz.NewWithLocation(errz.ErrUnsupported,
		fmt.Sprintf("%s are not supported", what), errz.SourceLocation{
			Filename: c.filename,
			Line:     pos.Line,
			Column:   pos.Column,
		}, nil)
}

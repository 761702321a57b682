package vm

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pyrite-lang/pyrite/ast"
	"github.com/pyrite-lang/pyrite/builtins"
	"github.com/pyrite-lang/pyrite/compiler"
	"github.com/pyrite-lang/pyrite/object"
)

// AST construction helpers. The parser is an external collaborator, so
// tests assemble the trees it would produce.

func ident(name string) *ast.Ident         { return &ast.Ident{Name: name} }
func intLit(v int64) *ast.Int              { return &ast.Int{Value: v} }
func floatLit(v float64) *ast.Float        { return &ast.Float{Value: v} }
func strLit(v string) *ast.String          { return &ast.String{Value: v} }
func boolLit(v bool) *ast.Bool             { return &ast.Bool{Value: v} }
func exprStmt(x ast.Expr) *ast.ExprStmt    { return &ast.ExprStmt{X: x} }
func block(stmts ...ast.Stmt) *ast.Block   { return &ast.Block{Stmts: stmts} }
func assign(n string, v ast.Expr) ast.Stmt { return &ast.Assign{Name: n, Op: "=", Value: v} }

func infix(op string, x, y ast.Expr) *ast.Infix {
	return &ast.Infix{Op: op, X: x, Y: y}
}

func call(fn string, args ...ast.Expr) *ast.Call {
	return &ast.Call{Fun: ident(fn), Args: args}
}

func methodCall(recv ast.Expr, name string, args ...ast.Expr) *ast.MethodCall {
	return &ast.MethodCall{X: recv, Name: name, Args: args}
}

func funcDef(name string, params []string, stmts ...ast.Stmt) *ast.FuncDef {
	return &ast.FuncDef{Name: name, Params: params, Body: block(stmts...)}
}

func testEnv() map[string]object.Object {
	return builtins.BuiltinsTo(io.Discard)
}

func compileProgram(t *testing.T, stmts ...ast.Stmt) *compiler.Code {
	t.Helper()
	env := testEnv()
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	code, err := compiler.Compile(&ast.Program{Stmts: stmts}, &compiler.Config{
		GlobalNames: names,
	})
	require.Nil(t, err)
	return code
}

func run(t *testing.T, stmts ...ast.Stmt) object.Object {
	t.Helper()
	machine := New(compileProgram(t, stmts...), WithBuiltins(testEnv()))
	result, err := machine.Run(context.Background())
	require.Nil(t, err)
	return result
}

func runMachine(t *testing.T, stmts ...ast.Stmt) (*VirtualMachine, object.Object) {
	t.Helper()
	machine := New(compileProgram(t, stmts...), WithBuiltins(testEnv()))
	result, err := machine.Run(context.Background())
	require.Nil(t, err)
	return machine, result
}

func runError(t *testing.T, stmts ...ast.Stmt) error {
	t.Helper()
	machine := New(compileProgram(t, stmts...), WithBuiltins(testEnv()))
	_, err := machine.Run(context.Background())
	require.NotNil(t, err)
	return err
}

func TestAssignRoundTrip(t *testing.T) {
	result := run(t,
		assign("x", intLit(1)),
		assign("x", infix("+", ident("x"), intLit(1))),
		exprStmt(ident("x")),
	)
	require.Equal(t, object.NewInt(2), result)
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		op   string
		x, y int64
		want object.Object
	}{
		{"+", 3, 4, object.NewInt(7)},
		{"-", 10, 4, object.NewInt(6)},
		{"*", 3, 5, object.NewInt(15)},
		{"%", 7, 3, object.NewInt(1)},
		{"/", 7, 2, object.NewFloat(3.5)},
		{"/", 6, 3, object.NewFloat(2.0)},
		{"**", 2, 10, object.NewInt(1024)},
	}
	for _, tt := range tests {
		result := run(t, exprStmt(infix(tt.op, intLit(tt.x), intLit(tt.y))))
		require.Equal(t, tt.want, result, "%d %s %d", tt.x, tt.op, tt.y)
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		op   string
		x, y ast.Expr
		want bool
	}{
		{"==", intLit(2), intLit(2), true},
		{"!=", intLit(2), intLit(2), false},
		{"<", intLit(1), intLit(2), true},
		{"<=", intLit(2), intLit(2), true},
		{">", intLit(1), intLit(2), false},
		{">=", intLit(3), intLit(2), true},
		{"==", strLit("a"), strLit("a"), true},
		{"<", strLit("a"), strLit("b"), true},
		{"==", intLit(2), floatLit(2.0), true},
	}
	for _, tt := range tests {
		result := run(t, exprStmt(infix(tt.op, tt.x, tt.y)))
		require.Equal(t, object.NewBool(tt.want), result)
	}
}

// The fused integer instructions must agree with the generic path on
// non-integer operands.
func TestFastPathFallback(t *testing.T) {
	result := run(t, exprStmt(infix("+", strLit("ab"), strLit("cd"))))
	require.Equal(t, object.NewString("abcd"), result)

	result = run(t, exprStmt(infix("+", floatLit(1.5), intLit(1))))
	require.Equal(t, object.NewFloat(2.5), result)

	result = run(t, exprStmt(infix("*", strLit("ab"), intLit(3))))
	require.Equal(t, object.NewString("ababab"), result)

	result = run(t, exprStmt(infix("<", floatLit(1.5), intLit(2))))
	require.Equal(t, object.True, result)
}

// A short-circuited right-hand side never evaluates, so the division by
// zero below is unreachable.
func TestShortCircuit(t *testing.T) {
	result := run(t, exprStmt(infix("and", boolLit(false), infix("/", intLit(1), intLit(0)))))
	require.Equal(t, object.False, result)
}

func TestAndOr(t *testing.T) {
	result := run(t, exprStmt(infix("and", intLit(1), intLit(2))))
	require.Equal(t, object.NewInt(2), result)

	result = run(t, exprStmt(infix("and", intLit(0), intLit(2))))
	require.Equal(t, object.NewInt(0), result)

	result = run(t, exprStmt(infix("or", intLit(0), intLit(2))))
	require.Equal(t, object.NewInt(2), result)

	result = run(t, exprStmt(infix("or", intLit(1), intLit(2))))
	require.Equal(t, object.NewInt(1), result)
}

func TestUnary(t *testing.T) {
	result := run(t, exprStmt(&ast.Prefix{Op: "-", X: intLit(4)}))
	require.Equal(t, object.NewInt(-4), result)

	result = run(t, exprStmt(&ast.Prefix{Op: "not", X: boolLit(false)}))
	require.Equal(t, object.True, result)
}

func TestIfElse(t *testing.T) {
	result := run(t,
		assign("x", intLit(10)),
		&ast.If{
			Cond:        infix(">", ident("x"), intLit(5)),
			Consequence: block(assign("r", strLit("big"))),
			Alternative: block(assign("r", strLit("small"))),
		},
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("big"), result)
}

func TestWhileLoop(t *testing.T) {
	result := run(t,
		assign("i", intLit(0)),
		&ast.While{
			Cond: infix("<", ident("i"), intLit(5)),
			Body: block(assign("i", infix("+", ident("i"), intLit(1)))),
		},
		exprStmt(ident("i")),
	)
	require.Equal(t, object.NewInt(5), result)
}

func TestWhileFalseNeverRuns(t *testing.T) {
	result := run(t,
		assign("i", intLit(7)),
		&ast.While{
			Cond: boolLit(false),
			Body: block(assign("i", intLit(0))),
		},
		exprStmt(ident("i")),
	)
	require.Equal(t, object.NewInt(7), result)
}

func TestBreakContinue(t *testing.T) {
	// Sum odd numbers below 10, stopping at 7.
	result := run(t,
		assign("total", intLit(0)),
		&ast.For{Var: "n", Iterable: call("range", intLit(10)), Body: block(
			&ast.If{
				Cond:        infix("==", infix("%", ident("n"), intLit(2)), intLit(0)),
				Consequence: block(&ast.Continue{}),
			},
			&ast.If{
				Cond:        infix("==", ident("n"), intLit(7)),
				Consequence: block(&ast.Break{}),
			},
			assign("total", infix("+", ident("total"), ident("n"))),
		)},
		exprStmt(ident("total")),
	)
	require.Equal(t, object.NewInt(9), result) // 1 + 3 + 5
}

func TestForLoopSum(t *testing.T) {
	// Locals inside a function exercise the fused super-instructions.
	result := run(t,
		funcDef("total", []string{"n"},
			assign("s", intLit(0)),
			&ast.For{Var: "x", Iterable: call("range", ident("n")), Body: block(
				assign("s", infix("+", ident("s"), ident("x"))),
			)},
			&ast.Return{Value: ident("s")},
		),
		exprStmt(call("total", intLit(5))),
	)
	require.Equal(t, object.NewInt(10), result)
}

func TestForOverList(t *testing.T) {
	result := run(t,
		assign("total", intLit(0)),
		&ast.For{
			Var:      "x",
			Iterable: &ast.List{Items: []ast.Expr{intLit(2), intLit(4), intLit(6)}},
			Body:     block(assign("total", infix("+", ident("total"), ident("x")))),
		},
		exprStmt(ident("total")),
	)
	require.Equal(t, object.NewInt(12), result)
}

func TestFunctionCalls(t *testing.T) {
	result := run(t,
		funcDef("add", []string{"a", "b"}, &ast.Return{Value: infix("+", ident("a"), ident("b"))}),
		exprStmt(call("add", intLit(2), intLit(3))),
	)
	require.Equal(t, object.NewInt(5), result)
}

func TestRecursion(t *testing.T) {
	result := run(t,
		funcDef("fib", []string{"n"},
			&ast.If{
				Cond:        infix("<", ident("n"), intLit(2)),
				Consequence: block(&ast.Return{Value: ident("n")}),
			},
			&ast.Return{Value: infix("+",
				call("fib", infix("-", ident("n"), intLit(1))),
				call("fib", infix("-", ident("n"), intLit(2))))},
		),
		exprStmt(call("fib", intLit(10))),
	)
	require.Equal(t, object.NewInt(55), result)
}

func TestWrongArgCount(t *testing.T) {
	err := runError(t,
		funcDef("one", []string{"a"}, &ast.Return{Value: ident("a")}),
		exprStmt(call("one", intLit(1), intLit(2))),
	)
	require.Contains(t, err.Error(), "takes 1 arguments (2 given)")
}

func TestLambda(t *testing.T) {
	result := run(t,
		assign("double", &ast.Lambda{Params: []string{"x"}, Body: infix("*", ident("x"), intLit(2))}),
		exprStmt(call("double", intLit(21))),
	)
	require.Equal(t, object.NewInt(42), result)
}

func TestClosureCapture(t *testing.T) {
	result := run(t,
		funcDef("make_adder", []string{"n"},
			funcDef("add", []string{"x"}, &ast.Return{Value: infix("+", ident("x"), ident("n"))}),
			&ast.Return{Value: ident("add")},
		),
		assign("add2", call("make_adder", intLit(2))),
		assign("add10", call("make_adder", intLit(10))),
		exprStmt(infix("+", call("add2", intLit(1)), call("add10", intLit(1)))),
	)
	require.Equal(t, object.NewInt(14), result)
}

func TestNestedClosureCapture(t *testing.T) {
	// The middle function passes its own free variable down a level.
	result := run(t,
		funcDef("outer", []string{"a"},
			funcDef("middle", []string{},
				funcDef("inner", []string{}, &ast.Return{Value: ident("a")}),
				&ast.Return{Value: ident("inner")},
			),
			&ast.Return{Value: call("middle")},
		),
		assign("f", call("outer", intLit(7))),
		exprStmt(call("f")),
	)
	require.Equal(t, object.NewInt(7), result)
}

func TestGlobalsCapturedAtCall(t *testing.T) {
	result := run(t,
		assign("x", intLit(1)),
		funcDef("get", []string{}, &ast.Return{Value: ident("x")}),
		assign("first", call("get")),
		assign("x", intLit(2)),
		assign("second", call("get")),
		exprStmt(infix("+", ident("first"), ident("second"))),
	)
	require.Equal(t, object.NewInt(3), result)
}

func TestLocalShadowsGlobal(t *testing.T) {
	machine, result := runMachine(t,
		assign("x", intLit(1)),
		funcDef("shadow", []string{},
			assign("x", intLit(99)),
			&ast.Return{Value: ident("x")},
		),
		exprStmt(call("shadow")),
	)
	require.Equal(t, object.NewInt(99), result)
	// The global is untouched by the function-local shadow.
	global, err := machine.Get("x")
	require.Nil(t, err)
	require.Equal(t, object.NewInt(1), global)
}

func TestListLiteralAndIndex(t *testing.T) {
	result := run(t,
		assign("items", &ast.List{Items: []ast.Expr{intLit(10), intLit(20), intLit(30)}}),
		exprStmt(&ast.Index{X: ident("items"), Index: intLit(1)}),
	)
	require.Equal(t, object.NewInt(20), result)
}

func TestNegativeIndex(t *testing.T) {
	result := run(t,
		assign("items", &ast.List{Items: []ast.Expr{intLit(10), intLit(20), intLit(30)}}),
		exprStmt(&ast.Index{X: ident("items"), Index: intLit(-1)}),
	)
	require.Equal(t, object.NewInt(30), result)
}

func TestSetIndex(t *testing.T) {
	result := run(t,
		assign("items", &ast.List{Items: []ast.Expr{intLit(1), intLit(2)}}),
		&ast.SetIndex{X: ident("items"), Index: intLit(0), Value: intLit(9)},
		exprStmt(&ast.Index{X: ident("items"), Index: intLit(0)}),
	)
	require.Equal(t, object.NewInt(9), result)
}

func TestSlice(t *testing.T) {
	result := run(t,
		assign("s", strLit("hello")),
		exprStmt(&ast.Slice{X: ident("s"), Low: intLit(1), High: intLit(3)}),
	)
	require.Equal(t, object.NewString("el"), result)

	result = run(t,
		assign("s", strLit("hello")),
		exprStmt(&ast.Slice{X: ident("s"), High: intLit(2)}),
	)
	require.Equal(t, object.NewString("he"), result)

	result = run(t,
		assign("s", strLit("hello")),
		exprStmt(&ast.Slice{X: ident("s"), Low: intLit(3)}),
	)
	require.Equal(t, object.NewString("lo"), result)
}

func TestMapLiteral(t *testing.T) {
	result := run(t,
		assign("m", &ast.Map{
			Keys:   []ast.Expr{strLit("a"), strLit("b")},
			Values: []ast.Expr{intLit(1), intLit(2)},
		}),
		exprStmt(&ast.Index{X: ident("m"), Index: strLit("b")}),
	)
	require.Equal(t, object.NewInt(2), result)
}

func TestIn(t *testing.T) {
	result := run(t, exprStmt(&ast.In{
		X: intLit(2),
		Y: &ast.List{Items: []ast.Expr{intLit(1), intLit(2), intLit(3)}},
	}))
	require.Equal(t, object.True, result)

	result = run(t, exprStmt(&ast.In{
		X:       intLit(9),
		Y:       &ast.List{Items: []ast.Expr{intLit(1)}},
		Negated: true,
	}))
	require.Equal(t, object.True, result)
}

func TestMethodCall(t *testing.T) {
	result := run(t,
		assign("items", &ast.List{}),
		exprStmt(methodCall(ident("items"), "append", intLit(1))),
		exprStmt(methodCall(ident("items"), "append", intLit(2))),
		exprStmt(call("len", ident("items"))),
	)
	require.Equal(t, object.NewInt(2), result)
}

func TestCopyOnWriteAliasing(t *testing.T) {
	// Mutating through one alias never changes the other.
	machine, _ := runMachine(t,
		assign("a", &ast.List{Items: []ast.Expr{intLit(1)}}),
		assign("b", ident("a")),
		exprStmt(methodCall(ident("a"), "append", intLit(2))),
		exprStmt(ident("a")),
	)
	a, err := machine.Get("a")
	require.Nil(t, err)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2),
	}), a)

	b, err := machine.Get("b")
	require.Nil(t, err)
	require.Equal(t, object.NewList([]object.Object{object.NewInt(1)}), b)
}

func TestCopyOnWriteSetIndex(t *testing.T) {
	machine, _ := runMachine(t,
		assign("a", &ast.List{Items: []ast.Expr{intLit(1), intLit(2)}}),
		assign("b", ident("a")),
		&ast.SetIndex{X: ident("a"), Index: intLit(0), Value: intLit(9)},
	)
	a, err := machine.Get("a")
	require.Nil(t, err)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(9), object.NewInt(2),
	}), a)

	b, err := machine.Get("b")
	require.Nil(t, err)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2),
	}), b)
}

func TestAugmentedAssign(t *testing.T) {
	result := run(t,
		assign("x", intLit(10)),
		&ast.Assign{Name: "x", Op: "+=", Value: intLit(5)},
		&ast.Assign{Name: "x", Op: "-=", Value: intLit(3)},
		&ast.Assign{Name: "x", Op: "*=", Value: intLit(2)},
		exprStmt(ident("x")),
	)
	require.Equal(t, object.NewInt(24), result)
}

func TestClassInstance(t *testing.T) {
	result := run(t,
		&ast.ClassDef{Name: "Point", Methods: []*ast.FuncDef{
			funcDef("init", []string{"self", "x", "y"},
				&ast.SetAttr{X: ident("self"), Name: "x", Value: ident("x")},
				&ast.SetAttr{X: ident("self"), Name: "y", Value: ident("y")},
			),
			funcDef("total", []string{"self"},
				&ast.Return{Value: infix("+",
					&ast.GetAttr{X: ident("self"), Name: "x"},
					&ast.GetAttr{X: ident("self"), Name: "y"})},
			),
		}},
		assign("p", call("Point", intLit(3), intLit(4))),
		exprStmt(methodCall(ident("p"), "total")),
	)
	require.Equal(t, object.NewInt(7), result)
}

func TestClassWithoutInit(t *testing.T) {
	result := run(t,
		&ast.ClassDef{Name: "Empty", Methods: []*ast.FuncDef{
			funcDef("kind", []string{"self"}, &ast.Return{Value: strLit("empty")}),
		}},
		assign("e", call("Empty")),
		exprStmt(methodCall(ident("e"), "kind")),
	)
	require.Equal(t, object.NewString("empty"), result)
}

func TestInstanceAttributesAreReferences(t *testing.T) {
	// SetAttr does not copy: two names for one instance see the same state.
	result := run(t,
		&ast.ClassDef{Name: "Box", Methods: []*ast.FuncDef{
			funcDef("init", []string{"self"},
				&ast.SetAttr{X: ident("self"), Name: "v", Value: intLit(0)},
			),
		}},
		assign("a", call("Box")),
		assign("b", ident("a")),
		&ast.SetAttr{X: ident("b"), Name: "v", Value: intLit(5)},
		exprStmt(&ast.GetAttr{X: ident("a"), Name: "v"}),
	)
	require.Equal(t, object.NewInt(5), result)
}

func TestMethodCacheCoherence(t *testing.T) {
	// One call site dispatching over two classes must not leak a stale
	// resolution between them.
	result := run(t,
		&ast.ClassDef{Name: "A", Methods: []*ast.FuncDef{
			funcDef("name", []string{"self"}, &ast.Return{Value: strLit("a")}),
		}},
		&ast.ClassDef{Name: "B", Methods: []*ast.FuncDef{
			funcDef("name", []string{"self"}, &ast.Return{Value: strLit("b")}),
		}},
		funcDef("describe", []string{"x", "y"},
			&ast.Return{Value: infix("+",
				methodCall(ident("x"), "name"),
				methodCall(ident("y"), "name"))},
		),
		exprStmt(call("describe", call("A"), call("B"))),
	)
	require.Equal(t, object.NewString("ab"), result)
}

func TestInlineCacheCoherence(t *testing.T) {
	// A LoadGlobal site observed under one binding must see the rebound
	// value after a StoreGlobal invalidates the cache.
	result := run(t,
		assign("x", intLit(1)),
		assign("total", intLit(0)),
		&ast.For{Var: "i", Iterable: call("range", intLit(2)), Body: block(
			assign("total", infix("+", ident("total"), ident("x"))),
			assign("x", intLit(10)),
		)},
		exprStmt(ident("total")),
	)
	require.Equal(t, object.NewInt(11), result)
}

func TestMatchLiteralAndCapture(t *testing.T) {
	matchStmt := func(subject ast.Expr) *ast.Match {
		return &ast.Match{Subject: subject, Cases: []*ast.MatchCase{
			{
				Pattern: &ast.LiteralPattern{Value: intLit(1)},
				Body:    block(assign("r", strLit("one"))),
			},
			{
				Pattern: &ast.CapturePattern{Name: "other"},
				Body:    block(assign("r", ident("other"))),
			},
		}}
	}
	result := run(t, matchStmt(intLit(1)), exprStmt(ident("r")))
	require.Equal(t, object.NewString("one"), result)

	result = run(t, matchStmt(intLit(42)), exprStmt(ident("r")))
	require.Equal(t, object.NewInt(42), result)
}

func TestMatchSequence(t *testing.T) {
	result := run(t,
		assign("subject", &ast.List{Items: []ast.Expr{intLit(1), intLit(2)}}),
		&ast.Match{Subject: ident("subject"), Cases: []*ast.MatchCase{
			{
				Pattern: &ast.SequencePattern{Items: []ast.Pattern{
					&ast.LiteralPattern{Value: intLit(1)},
					&ast.CapturePattern{Name: "tail"},
				}},
				Body: block(assign("r", ident("tail"))),
			},
			{
				Pattern: &ast.CapturePattern{},
				Body:    block(assign("r", strLit("no match"))),
			},
		}},
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewInt(2), result)
}

func TestMatchGuard(t *testing.T) {
	result := run(t,
		assign("n", intLit(10)),
		&ast.Match{Subject: ident("n"), Cases: []*ast.MatchCase{
			{
				Pattern: &ast.CapturePattern{Name: "v"},
				Guard:   infix("<", ident("v"), intLit(5)),
				Body:    block(assign("r", strLit("small"))),
			},
			{
				Pattern: &ast.CapturePattern{},
				Body:    block(assign("r", strLit("large"))),
			},
		}},
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("large"), result)
}

func TestMatchOrPattern(t *testing.T) {
	result := run(t,
		&ast.Match{Subject: intLit(3), Cases: []*ast.MatchCase{
			{
				Pattern: &ast.OrPattern{Alts: []ast.Pattern{
					&ast.LiteralPattern{Value: intLit(2)},
					&ast.LiteralPattern{Value: intLit(3)},
				}},
				Body: block(assign("r", strLit("two or three"))),
			},
			{
				Pattern: &ast.CapturePattern{},
				Body:    block(assign("r", strLit("other"))),
			},
		}},
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("two or three"), result)
}

func TestFormatString(t *testing.T) {
	result := run(t,
		assign("name", strLit("world")),
		exprStmt(&ast.FormatString{
			Fragments: []string{"hello, ", "", "!"},
			Exprs:     []ast.Expr{nil, ident("name"), nil},
		}),
	)
	require.Equal(t, object.NewString("hello, world!"), result)
}

func TestFormatStringNonString(t *testing.T) {
	result := run(t,
		exprStmt(&ast.FormatString{
			Fragments: []string{"n=", ""},
			Exprs:     []ast.Expr{nil, intLit(42)},
		}),
	)
	require.Equal(t, object.NewString("n=42"), result)
}

func TestWith(t *testing.T) {
	result := run(t,
		&ast.With{X: &ast.List{Items: []ast.Expr{intLit(1)}}, Name: "res", Body: block(
			assign("r", call("len", ident("res"))),
		)},
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewInt(1), result)
}

func TestBuiltinCall(t *testing.T) {
	result := run(t, exprStmt(call("abs", intLit(-5))))
	require.Equal(t, object.NewInt(5), result)

	result = run(t, exprStmt(call("str", intLit(5))))
	require.Equal(t, object.NewString("5"), result)
}

func TestNotCallable(t *testing.T) {
	err := runError(t,
		assign("x", intLit(1)),
		exprStmt(&ast.Call{Fun: ident("x")}),
	)
	require.Contains(t, err.Error(), "not callable")
}

func TestUndefinedGlobal(t *testing.T) {
	code, err := compiler.Compile(&ast.Program{Stmts: []ast.Stmt{
		exprStmt(ident("missing")),
	}}, &compiler.Config{GlobalNames: []string{"missing"}})
	require.Nil(t, err)
	machine := New(code)
	_, err = machine.Run(context.Background())
	require.NotNil(t, err)
	require.Contains(t, err.Error(), `undefined variable "missing"`)
}

func TestGetGlobal(t *testing.T) {
	machine, _ := runMachine(t, assign("answer", intLit(42)))
	value, err := machine.Get("answer")
	require.Nil(t, err)
	require.Equal(t, object.NewInt(42), value)

	_, err = machine.Get("nope")
	require.Equal(t, ErrGlobalNotFound, err)
}

func TestGlobalsPersistAcrossRuns(t *testing.T) {
	machine, _ := runMachine(t, assign("counter", intLit(1)))
	result, err := machine.Run(context.Background())
	require.Nil(t, err)
	_ = result
	value, err := machine.Get("counter")
	require.Nil(t, err)
	require.Equal(t, object.NewInt(1), value)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	machine := New(compileProgram(t,
		&ast.While{Cond: boolLit(true), Body: block(&ast.Pass{})},
	), WithBuiltins(testEnv()), WithContextCheckInterval(10))
	_, err := machine.Run(ctx)
	require.Equal(t, context.Canceled, err)
}

func TestHotFunctionLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	machine := New(compileProgram(t,
		funcDef("noop", []string{}, &ast.Return{Value: intLit(0)}),
		&ast.For{Var: "i", Iterable: call("range", intLit(5)), Body: block(
			exprStmt(call("noop")),
		)},
		exprStmt(intLit(1)),
	), WithBuiltins(testEnv()), WithLogger(logger), WithHotThreshold(3))
	_, err := machine.Run(context.Background())
	require.Nil(t, err)
	require.Contains(t, buf.String(), "hot function detected")
}

func TestCompileDeterminism(t *testing.T) {
	stmts := func() []ast.Stmt {
		return []ast.Stmt{
			funcDef("f", []string{"a"}, &ast.Return{Value: infix("*", ident("a"), intLit(2))}),
			assign("x", call("f", intLit(3))),
			exprStmt(ident("x")),
		}
	}
	a := compileProgram(t, stmts()...)
	b := compileProgram(t, stmts()...)
	require.Equal(t, a.InstructionCount(), b.InstructionCount())
	for i := 0; i < a.InstructionCount(); i++ {
		require.Equal(t, a.Instruction(i), b.Instruction(i), "instruction %d", i)
	}
}

func TestReturnStatementAtModuleLevel(t *testing.T) {
	result := run(t,
		assign("x", intLit(1)),
		assign("x", infix("+", ident("x"), intLit(1))),
		&ast.Return{Value: ident("x")},
	)
	require.Equal(t, object.NewInt(2), result)
}

func TestModuleReturnStopsExecution(t *testing.T) {
	machine, result := runMachine(t,
		assign("x", intLit(1)),
		&ast.Return{Value: ident("x")},
		assign("x", intLit(99)),
	)
	require.Equal(t, object.NewInt(1), result)
	x, err := machine.Get("x")
	require.NoError(t, err)
	require.Equal(t, object.NewInt(1), x)
}

func TestDiscardedReadKeepsGlobal(t *testing.T) {
	// A bare name as a statement aliases the variable's cell; discarding
	// the read must not release the variable's reference.
	result := run(t,
		assign("x", intLit(1)),
		exprStmt(ident("x")),
		exprStmt(ident("x")),
	)
	require.Equal(t, object.NewInt(1), result)
}

func TestDiscardedReadKeepsLocal(t *testing.T) {
	result := run(t,
		funcDef("f", []string{},
			assign("x", intLit(1)),
			exprStmt(ident("x")),
			&ast.Return{Value: ident("x")},
		),
		exprStmt(call("f")),
	)
	require.Equal(t, object.NewInt(1), result)
}

func TestWithOverVariableKeepsResource(t *testing.T) {
	result := run(t,
		assign("xs", &ast.List{Items: []ast.Expr{intLit(1)}}),
		&ast.With{X: ident("xs"), Body: block(assign("t", intLit(0)))},
		exprStmt(ident("xs")),
	)
	require.Equal(t, object.NewList([]object.Object{object.NewInt(1)}), result)
}

func TestClosureSeesLocalRebinding(t *testing.T) {
	result := run(t,
		funcDef("outer", []string{},
			assign("n", intLit(1)),
			funcDef("get", []string{}, &ast.Return{Value: ident("n")}),
			assign("n", intLit(2)),
			&ast.Return{Value: call("get")},
		),
		exprStmt(call("outer")),
	)
	require.Equal(t, object.NewInt(2), result)
}

func TestClosureSeesLocalIncrement(t *testing.T) {
	result := run(t,
		funcDef("outer", []string{},
			assign("n", intLit(1)),
			funcDef("get", []string{}, &ast.Return{Value: ident("n")}),
			assign("n", infix("+", ident("n"), intLit(1))),
			&ast.Return{Value: call("get")},
		),
		exprStmt(call("outer")),
	)
	require.Equal(t, object.NewInt(2), result)
}

func TestClosureSeesFusedAddRebinding(t *testing.T) {
	result := run(t,
		funcDef("outer", []string{},
			assign("a", intLit(1)),
			assign("b", intLit(2)),
			assign("c", intLit(0)),
			funcDef("get", []string{}, &ast.Return{Value: ident("c")}),
			assign("c", infix("+", ident("a"), ident("b"))),
			&ast.Return{Value: call("get")},
		),
		exprStmt(call("outer")),
	)
	require.Equal(t, object.NewInt(3), result)
}

func TestClosureSeesRebindingToFreshValue(t *testing.T) {
	result := run(t,
		funcDef("outer", []string{},
			assign("n", intLit(1)),
			funcDef("get", []string{}, &ast.Return{Value: ident("n")}),
			assign("n", &ast.List{Items: []ast.Expr{intLit(7)}}),
			&ast.Return{Value: call("get")},
		),
		exprStmt(call("outer")),
	)
	require.Equal(t, object.NewList([]object.Object{object.NewInt(7)}), result)
}

package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pyrite-lang/pyrite/ast"
	"github.com/pyrite-lang/pyrite/object"
)

func tryExcept(body []ast.Stmt, name string, handler ...ast.Stmt) *ast.Try {
	return &ast.Try{
		Body:   block(body...),
		Except: &ast.ExceptClause{Name: name, Body: block(handler...)},
	}
}

func TestRaiseCaughtSameFrame(t *testing.T) {
	result := run(t,
		tryExcept(
			[]ast.Stmt{&ast.Raise{Value: strLit("boom")}},
			"e",
			assign("r", ident("e")),
		),
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("boom"), result)
}

func TestRaiseCrossFrame(t *testing.T) {
	result := run(t,
		funcDef("inner", []string{}, &ast.Raise{Value: strLit("deep")}),
		funcDef("middle", []string{}, &ast.Return{Value: call("inner")}),
		tryExcept(
			[]ast.Stmt{exprStmt(call("middle"))},
			"e",
			assign("r", ident("e")),
		),
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("deep"), result)
}

func TestRaisedValuePassesThrough(t *testing.T) {
	// Any value can be raised, not only strings.
	result := run(t,
		tryExcept(
			[]ast.Stmt{&ast.Raise{Value: &ast.List{Items: []ast.Expr{intLit(1), intLit(2)}}}},
			"e",
			assign("r", ident("e")),
		),
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2),
	}), result)
}

func TestUncaughtRaise(t *testing.T) {
	err := runError(t, &ast.Raise{Value: strLit("nobody home")})
	require.Contains(t, err.Error(), "nobody home")
}

func TestDivisionByZeroCaught(t *testing.T) {
	result := run(t,
		tryExcept(
			[]ast.Stmt{exprStmt(infix("/", intLit(1), intLit(0)))},
			"e",
			assign("r", ident("e")),
		),
		exprStmt(ident("r")),
	)
	caught, ok := result.(*object.Error)
	require.True(t, ok)
	require.Equal(t, "division by zero", caught.Message())
}

func TestDivisionByZeroUncaught(t *testing.T) {
	err := runError(t, exprStmt(infix("/", intLit(1), intLit(0))))
	require.Contains(t, err.Error(), "division by zero")
}

func TestModuloByZero(t *testing.T) {
	err := runError(t, exprStmt(infix("%", intLit(1), intLit(0))))
	require.Contains(t, err.Error(), "modulo by zero")
}

func TestIndexOutOfRangeCaught(t *testing.T) {
	result := run(t,
		assign("items", &ast.List{Items: []ast.Expr{intLit(1)}}),
		tryExcept(
			[]ast.Stmt{exprStmt(&ast.Index{X: ident("items"), Index: intLit(5)})},
			"e",
			assign("r", strLit("caught")),
		),
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("caught"), result)
}

func TestFinallyRunsOnNormalExit(t *testing.T) {
	result := run(t,
		assign("log", &ast.List{}),
		&ast.Try{
			Body:    block(exprStmt(methodCall(ident("log"), "append", intLit(1)))),
			Finally: block(exprStmt(methodCall(ident("log"), "append", intLit(2)))),
		},
		exprStmt(ident("log")),
	)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2),
	}), result)
}

func TestFinallyRunsAndReRaises(t *testing.T) {
	// The inner finally runs first, then EndFinally re-raises the failure
	// for the outer except to catch.
	result := run(t,
		assign("log", &ast.List{}),
		tryExcept(
			[]ast.Stmt{
				&ast.Try{
					Body:    block(&ast.Raise{Value: strLit("x")}),
					Finally: block(exprStmt(methodCall(ident("log"), "append", intLit(1)))),
				},
			},
			"e",
			exprStmt(methodCall(ident("log"), "append", ident("e"))),
		),
		exprStmt(ident("log")),
	)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(1), object.NewString("x"),
	}), result)
}

func TestExceptThenFinallyOrdering(t *testing.T) {
	result := run(t,
		assign("log", &ast.List{}),
		&ast.Try{
			Body: block(
				exprStmt(methodCall(ident("log"), "append", intLit(1))),
				&ast.Raise{Value: strLit("x")},
			),
			Except: &ast.ExceptClause{Name: "e", Body: block(
				exprStmt(methodCall(ident("log"), "append", intLit(2))),
			)},
			Finally: block(exprStmt(methodCall(ident("log"), "append", intLit(3)))),
		},
		exprStmt(ident("log")),
	)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2), object.NewInt(3),
	}), result)
}

func TestFinallyOrderingOnNormalPath(t *testing.T) {
	result := run(t,
		assign("log", &ast.List{}),
		&ast.Try{
			Body: block(exprStmt(methodCall(ident("log"), "append", intLit(1)))),
			Except: &ast.ExceptClause{Name: "e", Body: block(
				exprStmt(methodCall(ident("log"), "append", intLit(99))),
			)},
			Finally: block(exprStmt(methodCall(ident("log"), "append", intLit(2)))),
		},
		exprStmt(ident("log")),
	)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2),
	}), result)
}

func TestWithUnwindsOnRaise(t *testing.T) {
	result := run(t,
		tryExcept(
			[]ast.Stmt{
				&ast.With{X: &ast.List{}, Name: "res", Body: block(
					&ast.Raise{Value: strLit("inside")},
				)},
			},
			"e",
			assign("r", ident("e")),
		),
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("inside"), result)
}

func TestLoopUnwindsOnRaise(t *testing.T) {
	result := run(t,
		tryExcept(
			[]ast.Stmt{
				&ast.For{Var: "i", Iterable: call("range", intLit(10)), Body: block(
					&ast.If{
						Cond:        infix("==", ident("i"), intLit(3)),
						Consequence: block(&ast.Raise{Value: ident("i")}),
					},
				)},
			},
			"e",
			assign("r", ident("e")),
		),
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewInt(3), result)
}

func TestAssertPasses(t *testing.T) {
	result := run(t,
		&ast.Assert{Cond: infix("==", intLit(1), intLit(1))},
		exprStmt(strLit("ok")),
	)
	require.Equal(t, object.NewString("ok"), result)
}

func TestAssertFails(t *testing.T) {
	err := runError(t, &ast.Assert{Cond: boolLit(false), Message: "must hold"})
	require.Contains(t, err.Error(), "must hold")
}

func TestAssertFailureCaught(t *testing.T) {
	result := run(t,
		tryExcept(
			[]ast.Stmt{&ast.Assert{Cond: boolLit(false), Message: "nope"}},
			"e",
			assign("r", ident("e")),
		),
		exprStmt(ident("r")),
	)
	caught, ok := result.(*object.Error)
	require.True(t, ok)
	require.Equal(t, "nope", caught.Message())
}

func TestReRaiseFromHandler(t *testing.T) {
	result := run(t,
		tryExcept(
			[]ast.Stmt{
				tryExcept(
					[]ast.Stmt{&ast.Raise{Value: strLit("original")}},
					"inner",
					&ast.Raise{Value: strLit("wrapped")},
				),
			},
			"outer",
			assign("r", ident("outer")),
		),
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("wrapped"), result)
}

func TestHandlerExceptionPropagates(t *testing.T) {
	// A failure raised inside a handler is not caught by that handler's
	// own (already popped) block.
	err := runError(t,
		tryExcept(
			[]ast.Stmt{&ast.Raise{Value: strLit("first")}},
			"e",
			&ast.Raise{Value: strLit("second")},
		),
	)
	require.Contains(t, err.Error(), "second")
}

func TestTypeErrorCaught(t *testing.T) {
	result := run(t,
		tryExcept(
			[]ast.Stmt{exprStmt(infix("-", strLit("a"), intLit(1)))},
			"e",
			assign("r", strLit("caught")),
		),
		exprStmt(ident("r")),
	)
	require.Equal(t, object.NewString("caught"), result)
}

func TestFrameDepthExceeded(t *testing.T) {
	err := runError(t,
		funcDef("forever", []string{}, &ast.Return{Value: call("forever")}),
		exprStmt(call("forever")),
	)
	require.Contains(t, err.Error(), "maximum frame depth exceeded")
}

package dis

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pyrite-lang/pyrite/ast"
	"github.com/pyrite-lang/pyrite/compiler"
)

func compileProgram(t *testing.T, stmts ...ast.Stmt) *compiler.Code {
	t.Helper()
	code, err := compiler.Compile(&ast.Program{Stmts: stmts}, nil)
	require.Nil(t, err)
	return code
}

func TestDisassemble(t *testing.T) {
	code := compileProgram(t,
		&ast.Assign{Name: "x", Op: "=", Value: &ast.Int{Value: 42}},
		&ast.ExprStmt{X: &ast.Ident{Name: "x"}},
	)
	instructions, err := Disassemble(code)
	require.Nil(t, err)
	require.True(t, len(instructions) > 0)

	var names []string
	for _, inst := range instructions {
		names = append(names, inst.Name)
	}
	require.Contains(t, names, "STORE_GLOBAL")
	require.Contains(t, names, "RETURN_VALUE")

	// Every store of a global should be annotated with its name.
	for _, inst := range instructions {
		if inst.Name == "STORE_GLOBAL" {
			require.Equal(t, "x", inst.Annotation)
		}
	}
}

func TestDisassembleConstants(t *testing.T) {
	code := compileProgram(t,
		&ast.ExprStmt{X: &ast.String{Value: "hello"}},
	)
	instructions, err := Disassemble(code)
	require.Nil(t, err)

	var found bool
	for _, inst := range instructions {
		if inst.Name == "LOAD_CONST" && inst.Constant == "hello" {
			found = true
		}
	}
	require.True(t, found)
}

func TestDisassembleMethodSite(t *testing.T) {
	code := compileProgram(t,
		&ast.Assign{Name: "items", Op: "=", Value: &ast.List{}},
		&ast.ExprStmt{X: &ast.MethodCall{
			X:    &ast.Ident{Name: "items"},
			Name: "append",
			Args: []ast.Expr{&ast.Int{Value: 1}},
		}},
	)
	instructions, err := Disassemble(code)
	require.Nil(t, err)

	var found bool
	for _, inst := range instructions {
		if inst.Name == "CALL_METHOD" {
			require.Equal(t, "append/1", inst.Annotation)
			found = true
		}
	}
	require.True(t, found)
}

func TestPrint(t *testing.T) {
	code := compileProgram(t,
		&ast.Assign{Name: "x", Op: "=", Value: &ast.Int{Value: 1}},
	)
	instructions, err := Disassemble(code)
	require.Nil(t, err)

	var buf bytes.Buffer
	require.Nil(t, Print(instructions, &buf))
	output := buf.String()
	require.Contains(t, output, "OFFSET")
	require.Contains(t, output, "STORE_GLOBAL")
}

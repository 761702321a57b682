package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymbolTableInsert(t *testing.T) {
	table := NewSymbolTable()
	a, err := table.Insert("a")
	require.NoError(t, err)
	require.Equal(t, "a", a.Name())
	require.Equal(t, 0, a.Index())

	b, err := table.Insert("b")
	require.NoError(t, err)
	require.Equal(t, 1, b.Index())

	// Inserting a name twice hands back the existing symbol.
	again, err := table.Insert("a")
	require.NoError(t, err)
	require.Same(t, a, again)
	require.Equal(t, 2, table.Count())
}

func TestSymbolTableResolveGlobal(t *testing.T) {
	table := NewSymbolTable()
	_, err := table.Insert("x")
	require.NoError(t, err)

	res, found := table.Resolve("x")
	require.True(t, found)
	require.Equal(t, Global, res.Scope())

	// Globals resolve as Global from any nesting depth.
	inner := table.NewChild().NewChild()
	res, found = inner.Resolve("x")
	require.True(t, found)
	require.Equal(t, Global, res.Scope())
	require.Equal(t, 0, inner.FreeCount())
}

func TestSymbolTableResolveLocal(t *testing.T) {
	root := NewSymbolTable()
	fn := root.NewChild()
	_, err := fn.Insert("x")
	require.NoError(t, err)

	res, found := fn.Resolve("x")
	require.True(t, found)
	require.Equal(t, Local, res.Scope())
	require.Equal(t, 0, res.Symbol().Index())
}

func TestSymbolTableResolveFree(t *testing.T) {
	root := NewSymbolTable()
	outer := root.NewChild()
	_, err := outer.Insert("captured")
	require.NoError(t, err)

	inner := outer.NewChild()
	res, found := inner.Resolve("captured")
	require.True(t, found)
	require.Equal(t, Free, res.Scope())
	require.Equal(t, 1, res.Depth())
	require.Equal(t, 0, res.FreeIndex())
	require.Equal(t, 1, inner.FreeCount())

	// Resolving again reuses the registered free variable.
	again, found := inner.Resolve("captured")
	require.True(t, found)
	require.Same(t, res, again)
	require.Equal(t, 1, inner.FreeCount())
}

func TestSymbolTableChainedCapture(t *testing.T) {
	// A name referenced two function levels below its definition registers
	// as a free variable at each intervening level.
	root := NewSymbolTable()
	outer := root.NewChild()
	_, err := outer.Insert("x")
	require.NoError(t, err)
	middle := outer.NewChild()
	inner := middle.NewChild()

	res, found := inner.Resolve("x")
	require.True(t, found)
	require.Equal(t, Free, res.Scope())
	require.Equal(t, 2, res.Depth())
	require.Equal(t, 1, middle.FreeCount())
	require.Equal(t, 1, inner.FreeCount())
	require.Equal(t, Free, middle.FreeVar(0).Scope())
}

func TestSymbolTableUndefined(t *testing.T) {
	root := NewSymbolTable()
	inner := root.NewChild()
	_, found := inner.Resolve("nope")
	require.False(t, found)
}

func TestSymbolTableShadowing(t *testing.T) {
	root := NewSymbolTable()
	_, err := root.Insert("x")
	require.NoError(t, err)
	fn := root.NewChild()
	shadow, err := fn.Insert("x")
	require.NoError(t, err)

	res, found := fn.Resolve("x")
	require.True(t, found)
	require.Equal(t, Local, res.Scope())
	require.Same(t, shadow, res.Symbol())
}

func TestSymbolTableAccessors(t *testing.T) {
	root := NewSymbolTable()
	require.True(t, root.IsGlobal())
	child := root.NewChild()
	require.False(t, child.IsGlobal())
	require.Same(t, root, child.Root())

	_, err := root.Insert("a")
	require.NoError(t, err)
	_, err = root.Insert("b")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, root.AllNames())
	require.Equal(t, "b", root.Symbol(1).Name())
	require.Nil(t, root.Symbol(5))
	require.True(t, root.IsDefined("a"))
	require.False(t, root.IsDefined("z"))
}

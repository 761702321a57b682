package compiler

import (
	"fmt"
	"math"
)

// Scope identifies where a resolved variable lives.
type Scope string

const (
	// Global scope is the module-level scope.
	Global Scope = "global"

	// Local scope is the scope within the current function.
	Local Scope = "local"

	// Free scope refers to a variable captured from an enclosing function.
	Free Scope = "free"
)

// Symbol is one named variable within a single scope. Its index is the
// variable's position in the scope's locals array (or the globals table for
// the root scope).
type Symbol struct {
	name  string
	index int
}

// Name returns the symbol's name.
func (s *Symbol) Name() string {
	return s.name
}

// Index returns the symbol's position within its scope.
func (s *Symbol) Index() int {
	return s.index
}

func (s *Symbol) String() string {
	return fmt.Sprintf("symbol(%s, %d)", s.name, s.index)
}

// Resolution describes how a name resolves from a given scope: the symbol,
// the scope it was found in relative to the resolver, and for free
// variables the index into the capturing function's free variable list.
type Resolution struct {
	symbol    *Symbol
	scope     Scope
	depth     int
	freeIndex int
}

// Symbol returns the resolved symbol.
func (r *Resolution) Symbol() *Symbol {
	return r.symbol
}

// Scope returns the scope the symbol resolved to.
func (r *Resolution) Scope() Scope {
	return r.scope
}

// Depth returns the number of function boundaries between the resolving
// scope and the symbol's defining scope.
func (r *Resolution) Depth() int {
	return r.depth
}

// FreeIndex returns the index of this variable in the resolving function's
// free variable list. Only meaningful when Scope is Free.
func (r *Resolution) FreeIndex() int {
	return r.freeIndex
}

// SymbolTable tracks the variables of one function scope. Tables form a
// tree mirroring function nesting; there is no block scoping, so an if or
// loop body shares its enclosing function's table.
type SymbolTable struct {
	parent        *SymbolTable
	children      []*SymbolTable
	symbolsByName map[string]*Symbol
	symbols       []*Symbol
	freeByName    map[string]*Resolution
	free          []*Resolution
}

// NewSymbolTable creates a new root (module-level) symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		symbolsByName: map[string]*Symbol{},
		freeByName:    map[string]*Resolution{},
	}
}

// NewChild creates a child table for a nested function scope.
func (t *SymbolTable) NewChild() *SymbolTable {
	child := NewSymbolTable()
	child.parent = t
	t.children = append(t.children, child)
	return child
}

// IsGlobal reports whether this is the module-level table.
func (t *SymbolTable) IsGlobal() bool {
	return t.parent == nil
}

// Root returns the module-level table.
func (t *SymbolTable) Root() *SymbolTable {
	current := t
	for current.parent != nil {
		current = current.parent
	}
	return current
}

// Insert defines a new variable in this scope and returns its symbol.
// Inserting a name twice returns the existing symbol.
func (t *SymbolTable) Insert(name string) (*Symbol, error) {
	if existing, ok := t.symbolsByName[name]; ok {
		return existing, nil
	}
	if len(t.symbols) >= math.MaxUint16 {
		return nil, fmt.Errorf("compile error: scope exceeded variable limit (%d)", math.MaxUint16)
	}
	symbol := &Symbol{name: name, index: len(t.symbols)}
	t.symbols = append(t.symbols, symbol)
	t.symbolsByName[name] = symbol
	return symbol, nil
}

// Get returns the symbol defined in this scope with the given name,
// without consulting enclosing scopes.
func (t *SymbolTable) Get(name string) (*Symbol, bool) {
	symbol, ok := t.symbolsByName[name]
	return symbol, ok
}

// IsDefined reports whether the name is defined in this scope.
func (t *SymbolTable) IsDefined(name string) bool {
	_, ok := t.symbolsByName[name]
	return ok
}

// Resolve looks up a name in this scope and its ancestors. A hit in the
// module-level table resolves as Global regardless of distance. A hit in
// an intermediate function registers the name in this table's free
// variable list, deduplicated by name, and resolves as Free.
func (t *SymbolTable) Resolve(name string) (*Resolution, bool) {
	if symbol, ok := t.symbolsByName[name]; ok {
		scope := Local
		if t.parent == nil {
			scope = Global
		}
		return &Resolution{symbol: symbol, scope: scope}, true
	}
	if existing, ok := t.freeByName[name]; ok {
		return existing, true
	}
	if t.parent == nil {
		return nil, false
	}
	parentRes, found := t.parent.Resolve(name)
	if !found {
		return nil, false
	}
	if parentRes.scope == Global {
		return parentRes, true
	}
	resolution := &Resolution{
		symbol:    parentRes.symbol,
		scope:     Free,
		depth:     parentRes.depth + 1,
		freeIndex: len(t.free),
	}
	t.free = append(t.free, resolution)
	t.freeByName[name] = resolution
	return resolution, true
}

// Count returns the number of variables defined in this scope.
func (t *SymbolTable) Count() int {
	return len(t.symbols)
}

// Symbol returns the variable at the given index, or nil when the index is
// out of range.
func (t *SymbolTable) Symbol(index int) *Symbol {
	if index < 0 || index >= len(t.symbols) {
		return nil
	}
	return t.symbols[index]
}

// FreeCount returns the number of free variables captured by this scope.
func (t *SymbolTable) FreeCount() int {
	return len(t.free)
}

// FreeVar returns the resolution of the free variable at the given index.
func (t *SymbolTable) FreeVar(index int) *Resolution {
	return t.free[index]
}

// AllNames returns the names defined in this scope, in definition order.
func (t *SymbolTable) AllNames() []string {
	names := make([]string, len(t.symbols))
	for i, symbol := range t.symbols {
		names[i] = symbol.name
	}
	return names
}

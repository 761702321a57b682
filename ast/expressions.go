package ast

// Ident is a reference to a named variable.
type Ident struct {
	Position Position
	Name     string
}

func (x *Ident) exprNode()     {}
func (x *Ident) Pos() Position { return x.Position }

// Int is an integer literal.
type Int struct {
	Position Position
	Value    int64
}

func (x *Int) exprNode()     {}
func (x *Int) Pos() Position { return x.Position }

// Float is a floating point literal.
type Float struct {
	Position Position
	Value    float64
}

func (x *Float) exprNode()     {}
func (x *Float) Pos() Position { return x.Position }

// String is a string literal.
type String struct {
	Position Position
	Value    string
}

func (x *String) exprNode()     {}
func (x *String) Pos() Position { return x.Position }

// Bool is a boolean literal.
type Bool struct {
	Position Position
	Value    bool
}

func (x *Bool) exprNode()     {}
func (x *Bool) Pos() Position { return x.Position }

// Nil is the null literal.
type Nil struct {
	Position Position
}

func (x *Nil) exprNode()     {}
func (x *Nil) Pos() Position { return x.Position }

// Infix is a binary arithmetic or comparison expression.
type Infix struct {
	Position Position
	Op       string // "+", "-", "*", "/", "%", "**", "==", "<", "and", ...
	X        Expr
	Y        Expr
}

func (x *Infix) exprNode()     {}
func (x *Infix) Pos() Position { return x.Position }

// Prefix is a unary expression: "-x" or "not x".
type Prefix struct {
	Position Position
	Op       string
	X        Expr
}

func (x *Prefix) exprNode()     {}
func (x *Prefix) Pos() Position { return x.Position }

// Call invokes a function with positional arguments.
type Call struct {
	Position Position
	Fun      Expr
	Args     []Expr
}

func (x *Call) exprNode()     {}
func (x *Call) Pos() Position { return x.Position }

// MethodCall invokes a named method on a receiver object.
type MethodCall struct {
	Position Position
	X        Expr
	Name     string
	Args     []Expr
}

func (x *MethodCall) exprNode()     {}
func (x *MethodCall) Pos() Position { return x.Position }

// GetAttr reads an attribute from an object: x.name
type GetAttr struct {
	Position Position
	X        Expr
	Name     string
}

func (x *GetAttr) exprNode()     {}
func (x *GetAttr) Pos() Position { return x.Position }

// Index is a subscript expression: x[i]
type Index struct {
	Position Position
	X        Expr
	Index    Expr
}

func (x *Index) exprNode()     {}
func (x *Index) Pos() Position { return x.Position }

// Slice is a range subscript expression: x[low:high]
type Slice struct {
	Position Position
	X        Expr
	Low      Expr // may be nil
	High     Expr // may be nil
}

func (x *Slice) exprNode()     {}
func (x *Slice) Pos() Position { return x.Position }

// List is a list literal.
type List struct {
	Position Position
	Items    []Expr
}

func (x *List) exprNode()     {}
func (x *List) Pos() Position { return x.Position }

// Tuple is a tuple literal.
type Tuple struct {
	Position Position
	Items    []Expr
}

func (x *Tuple) exprNode()     {}
func (x *Tuple) Pos() Position { return x.Position }

// Map is a mapping literal with expression keys and values.
type Map struct {
	Position Position
	Keys     []Expr
	Values   []Expr
}

func (x *Map) exprNode()     {}
func (x *Map) Pos() Position { return x.Position }

// Set is a set literal.
type Set struct {
	Position Position
	Items    []Expr
}

func (x *Set) exprNode()     {}
func (x *Set) Pos() Position { return x.Position }

// In tests membership: x in y
type In struct {
	Position Position
	X        Expr
	Y        Expr
	Negated  bool
}

func (x *In) exprNode()     {}
func (x *In) Pos() Position { return x.Position }

// Lambda is an anonymous single-expression function.
type Lambda struct {
	Position Position
	Params   []string
	Body     Expr
}

func (x *Lambda) exprNode()     {}
func (x *Lambda) Pos() Position { return x.Position }

// FormatString is an interpolated string: a sequence of literal fragments
// and embedded expressions, concatenated in order. A nil expression slot
// corresponds to a literal fragment.
type FormatString struct {
	Position  Position
	Fragments []string // literal text; empty where an expression goes
	Exprs     []Expr   // nil where a literal fragment goes
}

func (x *FormatString) exprNode()     {}
func (x *FormatString) Pos() Position { return x.Position }

// Comprehension is a list/set/map comprehension. The compiler does not
// implement comprehensions and rejects them with an unsupported-syntax
// error.
type Comprehension struct {
	Position Position
	Kind     string // "list", "set", "map"
	Body     Expr
	Var      string
	Iterable Expr
	Cond     Expr
}

func (x *Comprehension) exprNode()     {}
func (x *Comprehension) Pos() Position { return x.Position }

// Await waits on an asynchronous value. Not implemented by the compiler;
// rejected with an unsupported-syntax error.
type Await struct {
	Position Position
	X        Expr
}

func (x *Await) exprNode()     {}
func (x *Await) Pos() Position { return x.Position }

// Yield produces a value from a generator. Not implemented by the
// compiler; rejected with an unsupported-syntax error.
type Yield struct {
	Position Position
	X        Expr
}

func (x *Yield) exprNode()     {}
func (x *Yield) Pos() Position { return x.Position }

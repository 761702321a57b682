package ast

// ExprStmt is an expression evaluated for its side effects.
type ExprStmt struct {
	Position Position
	X        Expr
}

func (s *ExprStmt) stmtNode()     {}
func (s *ExprStmt) Pos() Position { return s.Position }

// Assign binds a value to a name: "x = expr" or a compound form such as
// "x += expr".
type Assign struct {
	Position Position
	Name     string
	Op       string // "=", "+=", "-=", "*=", "/="
	Value    Expr
}

func (s *Assign) stmtNode()     {}
func (s *Assign) Pos() Position { return s.Position }

// SetIndex assigns to a subscript: "x[i] = expr".
type SetIndex struct {
	Position Position
	X        Expr
	Index    Expr
	Value    Expr
}

func (s *SetIndex) stmtNode()     {}
func (s *SetIndex) Pos() Position { return s.Position }

// SetAttr assigns to an attribute: "x.name = expr".
type SetAttr struct {
	Position Position
	X        Expr
	Name     string
	Value    Expr
}

func (s *SetAttr) stmtNode()     {}
func (s *SetAttr) Pos() Position { return s.Position }

// Block is a sequence of statements.
type Block struct {
	Position Position
	Stmts    []Stmt
}

func (s *Block) stmtNode()     {}
func (s *Block) Pos() Position { return s.Position }

// If is a conditional statement with an optional else branch.
type If struct {
	Position    Position
	Cond        Expr
	Consequence *Block
	Alternative *Block // may be nil
}

func (s *If) stmtNode()     {}
func (s *If) Pos() Position { return s.Position }

// While loops as long as the condition is truthy.
type While struct {
	Position Position
	Cond     Expr
	Body     *Block
}

func (s *While) stmtNode()     {}
func (s *While) Pos() Position { return s.Position }

// For iterates a variable over an iterable.
type For struct {
	Position Position
	Var      string
	Iterable Expr
	Body     *Block
}

func (s *For) stmtNode()     {}
func (s *For) Pos() Position { return s.Position }

// Break exits the innermost loop.
type Break struct {
	Position Position
}

func (s *Break) stmtNode()     {}
func (s *Break) Pos() Position { return s.Position }

// Continue resumes at the condition of the innermost loop.
type Continue struct {
	Position Position
}

func (s *Continue) stmtNode()     {}
func (s *Continue) Pos() Position { return s.Position }

// Pass is an explicit no-op statement.
type Pass struct {
	Position Position
}

func (s *Pass) stmtNode()     {}
func (s *Pass) Pos() Position { return s.Position }

// FuncDef defines a named function.
type FuncDef struct {
	Position Position
	Name     string
	Params   []string
	Body     *Block
}

func (s *FuncDef) stmtNode()     {}
func (s *FuncDef) Pos() Position { return s.Position }

// ClassDef defines a class with a set of methods.
type ClassDef struct {
	Position Position
	Name     string
	Methods  []*FuncDef
}

func (s *ClassDef) stmtNode()     {}
func (s *ClassDef) Pos() Position { return s.Position }

// Return exits the enclosing function with a value.
type Return struct {
	Position Position
	Value    Expr // nil returns the null value
}

func (s *Return) stmtNode()     {}
func (s *Return) Pos() Position { return s.Position }

// ExceptClause handles exceptions raised in the associated try body.
type ExceptClause struct {
	Position Position
	Name     string // bound name for the caught value; "" for none
	Body     *Block
}

// Try is a try/except/finally statement.
type Try struct {
	Position Position
	Body     *Block
	Except   *ExceptClause // may be nil
	Finally  *Block        // may be nil
}

func (s *Try) stmtNode()     {}
func (s *Try) Pos() Position { return s.Position }

// Raise surfaces a value as an exception.
type Raise struct {
	Position Position
	Value    Expr
}

func (s *Raise) stmtNode()     {}
func (s *Raise) Pos() Position { return s.Position }

// Assert fails with an assertion error when the condition is falsy.
type Assert struct {
	Position Position
	Cond     Expr
	Message  string // optional
}

func (s *Assert) stmtNode()     {}
func (s *Assert) Pos() Position { return s.Position }

// With runs a block with a bound resource.
type With struct {
	Position Position
	X        Expr
	Name     string // "" for no binding
	Body     *Block
}

func (s *With) stmtNode()     {}
func (s *With) Pos() Position { return s.Position }

// Pattern is a structural pattern in a match case.
type Pattern interface {
	Node
	patternNode()
}

// LiteralPattern matches a literal value exactly.
type LiteralPattern struct {
	Position Position
	Value    Expr // Int, Float, String, Bool or Nil literal
}

func (p *LiteralPattern) patternNode()  {}
func (p *LiteralPattern) Pos() Position { return p.Position }

// CapturePattern matches anything and binds it to a name. An empty name is
// the wildcard "_".
type CapturePattern struct {
	Position Position
	Name     string
}

func (p *CapturePattern) patternNode()  {}
func (p *CapturePattern) Pos() Position { return p.Position }

// SequencePattern matches a list or tuple of a fixed length, element-wise.
type SequencePattern struct {
	Position Position
	Items    []Pattern
}

func (p *SequencePattern) patternNode()  {}
func (p *SequencePattern) Pos() Position { return p.Position }

// MappingPattern matches a mapping containing the given string keys, binding
// each key's value to the corresponding sub-pattern.
type MappingPattern struct {
	Position Position
	Keys     []string
	Values   []Pattern
}

func (p *MappingPattern) patternNode()  {}
func (p *MappingPattern) Pos() Position { return p.Position }

// ClassPattern matches an instance of the named class.
type ClassPattern struct {
	Position Position
	Name     string
}

func (p *ClassPattern) patternNode()  {}
func (p *ClassPattern) Pos() Position { return p.Position }

// OrPattern matches if any alternative matches.
type OrPattern struct {
	Position Position
	Alts     []Pattern
}

func (p *OrPattern) patternNode()  {}
func (p *OrPattern) Pos() Position { return p.Position }

// MatchCase is one case of a match statement: a pattern, an optional guard
// expression, and a body.
type MatchCase struct {
	Position Position
	Pattern  Pattern
	Guard    Expr // may be nil
	Body     *Block
}

// Match is a structural pattern matching statement.
type Match struct {
	Position Position
	Subject  Expr
	Cases    []*MatchCase
}

func (s *Match) stmtNode()     {}
func (s *Match) Pos() Position { return s.Position }

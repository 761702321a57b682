// Package op defines the opcodes used by the Pyrite compiler and virtual
// machine.
//
// Pyrite bytecode is register-based: every instruction is a fixed-shape
// record of one opcode and three integer operands (A, B, C), plus the source
// line it was compiled from. Operands are register indices, constant or name
// table indices, immediate integers, or absolute jump targets, depending on
// the opcode.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint16

const (
	Invalid Code = 0

	// Execution
	Nop         Code = 1
	Halt        Code = 2
	Call        Code = 3 // A=dst B=fn C=argc, args in fn+1..fn+argc
	CallMethod  Code = 4 // A=dst B=obj C=method site index
	ReturnValue Code = 5 // A=src

	// Jumps (absolute targets)
	Jump        Code = 10 // A=target
	JumpIfFalse Code = 11 // A=cond B=target
	JumpIfTrue  Code = 12 // A=cond B=target
	LoopCond    Code = 13 // A=cond B=body target C=exit target

	// Load
	LoadConst  Code = 20 // A=dst B=constant index
	Move       Code = 21 // A=dst B=src
	LoadLocal  Code = 22 // A=dst B=local register
	LoadGlobal Code = 23 // A=dst B=name index C=cache slot
	LoadFree   Code = 24 // A=dst B=free variable index

	// Store
	StoreLocal  Code = 30 // A=local register B=src
	StoreGlobal Code = 31 // A=name index B=src
	StoreFree   Code = 32 // A=free variable index B=src

	// Arithmetic, generic path: A=dst B=lhs C=rhs
	Add Code = 40
	Sub Code = 41
	Mul Code = 42
	Div Code = 43
	Mod Code = 44
	Pow Code = 45

	// Arithmetic, integer fast path. Falls back to the generic path when
	// either operand is not an integer.
	AddInt Code = 46
	SubInt Code = 47
	MulInt Code = 48
	ModInt Code = 49

	// Arithmetic with an immediate operand: A=dst B=lhs C=immediate
	AddImm Code = 50
	SubImm Code = 51
	MulImm Code = 52
	ModImm Code = 53

	// InplaceAdd mutates the lhs cell when its refcount shows it is unique,
	// and allocates otherwise. A=dst/lhs B=rhs.
	InplaceAdd Code = 54

	UnaryNeg Code = 55 // A=dst B=src
	UnaryNot Code = 56 // A=dst B=src

	// Comparison, generic path: A=dst B=lhs C=rhs
	Eq Code = 60
	Ne Code = 61
	Lt Code = 62
	Le Code = 63
	Gt Code = 64
	Ge Code = 65

	// Comparison, integer fast path
	EqInt Code = 66
	LtInt Code = 67
	LeInt Code = 68
	GtInt Code = 69
	GeInt Code = 70

	// Comparison with an immediate operand: A=dst B=lhs C=immediate
	EqImm Code = 71
	LtImm Code = 72
	LeImm Code = 73
	GtImm Code = 74
	GeImm Code = 75

	// Aggregate construction from a contiguous register run:
	// A=dst B=first register C=count (BuildMap: C is the pair count and
	// consumes 2*C registers, alternating key, value)
	BuildList  Code = 80
	BuildTuple Code = 81
	BuildMap   Code = 82
	BuildSet   Code = 83

	// Containers
	GetIndex Code = 90 // A=dst B=obj C=idx
	SetIndex Code = 91 // A=obj B=idx C=src
	GetAttr  Code = 92 // A=dst B=obj C=name index
	SetAttr  Code = 93 // A=obj B=name index C=src
	GetSlice Code = 94 // A=dst B=obj C=first of two registers (start, stop)
	Contains Code = 95 // A=dst B=container C=item

	// Iteration
	GetIter Code = 100 // A=dst B=src
	ForIter Code = 101 // A=dst B=iterator C=exit target

	// Functions, closures, classes
	MakeClosure Code = 110 // A=dst B=constant index C=free count, cells in dst+1..
	MakeCell    Code = 111 // A=dst B=index C=1 if B indexes free variables
	MakeClass   Code = 112 // A=dst B=constant index

	// Super-instructions. Pure throughput fusions with semantics identical
	// to the unfused sequences.
	IncLocal   Code = 120 // A=local slot B=signed immediate
	StoreConst Code = 121 // A=local register B=constant index
	AddStore   Code = 122 // A=local register B=lhs C=rhs

	// Reference counting
	IncRef      Code = 130 // A=reg
	DecRef      Code = 131 // A=reg
	CloneUnique Code = 132 // A=reg, clone in place if the cell is shared

	// Control blocks and exceptions
	SetupLoop    Code = 140 // A=exit target B=continue target
	SetupExcept  Code = 141 // A=handler target
	SetupFinally Code = 142 // A=handler target
	SetupWith    Code = 143 // A=exit target
	PopBlock     Code = 144
	Raise        Code = 145 // A=src
	Assert       Code = 146 // A=cond B=message constant index (-1 for none)
	EndFinally   Code = 147

	// Pattern matching. Each writes a bool into A.
	MatchLiteral  Code = 150 // A=dst B=subject C=constant index
	MatchSequence Code = 151 // A=dst B=subject C=expected length
	MatchMapping  Code = 152 // A=dst B=subject C=constant index of key tuple
	MatchClass    Code = 153 // A=dst B=subject C=name index
)

// BinaryOpType describes a type of binary operation, as in an operation that
// takes two operands. For example, addition, subtraction, multiplication.
type BinaryOpType uint16

const (
	BinaryAdd BinaryOpType = 1
	BinarySub BinaryOpType = 2
	BinaryMul BinaryOpType = 3
	BinaryDiv BinaryOpType = 4
	BinaryMod BinaryOpType = 5
	BinaryPow BinaryOpType = 6
)

// String returns a string representation of the binary operation.
// For example "+" for addition.
func (bop BinaryOpType) String() string {
	switch bop {
	case BinaryAdd:
		return "+"
	case BinarySub:
		return "-"
	case BinaryMul:
		return "*"
	case BinaryDiv:
		return "/"
	case BinaryMod:
		return "%"
	case BinaryPow:
		return "**"
	default:
		return ""
	}
}

// CompareOpType describes a type of comparison operation. For example, less
// than, greater than, equal.
type CompareOpType uint16

const (
	CompareEq CompareOpType = 1
	CompareNe CompareOpType = 2
	CompareLt CompareOpType = 3
	CompareLe CompareOpType = 4
	CompareGt CompareOpType = 5
	CompareGe CompareOpType = 6
)

// String returns a string representation of the comparison operation.
// For example "<" for less than.
func (cop CompareOpType) String() string {
	switch cop {
	case CompareEq:
		return "=="
	case CompareNe:
		return "!="
	case CompareLt:
		return "<"
	case CompareLe:
		return "<="
	case CompareGt:
		return ">"
	case CompareGe:
		return ">="
	default:
		return ""
	}
}

// BinaryOpcode returns the generic arithmetic opcode for the operator.
func BinaryOpcode(bop BinaryOpType) Code {
	switch bop {
	case BinaryAdd:
		return Add
	case BinarySub:
		return Sub
	case BinaryMul:
		return Mul
	case BinaryDiv:
		return Div
	case BinaryMod:
		return Mod
	case BinaryPow:
		return Pow
	default:
		return Invalid
	}
}

// CompareOpcode returns the generic comparison opcode for the operator.
func CompareOpcode(cop CompareOpType) Code {
	switch cop {
	case CompareEq:
		return Eq
	case CompareNe:
		return Ne
	case CompareLt:
		return Lt
	case CompareLe:
		return Le
	case CompareGt:
		return Gt
	case CompareGe:
		return Ge
	default:
		return Invalid
	}
}

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{Nop, "NOP", 0},
		{Halt, "HALT", 0},
		{Call, "CALL", 3},
		{CallMethod, "CALL_METHOD", 3},
		{ReturnValue, "RETURN_VALUE", 1},
		{Jump, "JUMP", 1},
		{JumpIfFalse, "JUMP_IF_FALSE", 2},
		{JumpIfTrue, "JUMP_IF_TRUE", 2},
		{LoopCond, "LOOP_COND", 3},
		{LoadConst, "LOAD_CONST", 2},
		{Move, "MOVE", 2},
		{LoadLocal, "LOAD_LOCAL", 2},
		{LoadGlobal, "LOAD_GLOBAL", 3},
		{LoadFree, "LOAD_FREE", 2},
		{StoreLocal, "STORE_LOCAL", 2},
		{StoreGlobal, "STORE_GLOBAL", 2},
		{StoreFree, "STORE_FREE", 2},
		{Add, "ADD", 3},
		{Sub, "SUB", 3},
		{Mul, "MUL", 3},
		{Div, "DIV", 3},
		{Mod, "MOD", 3},
		{Pow, "POW", 3},
		{AddInt, "ADD_INT", 3},
		{SubInt, "SUB_INT", 3},
		{MulInt, "MUL_INT", 3},
		{ModInt, "MOD_INT", 3},
		{AddImm, "ADD_IMM", 3},
		{SubImm, "SUB_IMM", 3},
		{MulImm, "MUL_IMM", 3},
		{ModImm, "MOD_IMM", 3},
		{InplaceAdd, "INPLACE_ADD", 2},
		{UnaryNeg, "UNARY_NEG", 2},
		{UnaryNot, "UNARY_NOT", 2},
		{Eq, "EQ", 3},
		{Ne, "NE", 3},
		{Lt, "LT", 3},
		{Le, "LE", 3},
		{Gt, "GT", 3},
		{Ge, "GE", 3},
		{EqInt, "EQ_INT", 3},
		{LtInt, "LT_INT", 3},
		{LeInt, "LE_INT", 3},
		{GtInt, "GT_INT", 3},
		{GeInt, "GE_INT", 3},
		{EqImm, "EQ_IMM", 3},
		{LtImm, "LT_IMM", 3},
		{LeImm, "LE_IMM", 3},
		{GtImm, "GT_IMM", 3},
		{GeImm, "GE_IMM", 3},
		{BuildList, "BUILD_LIST", 3},
		{BuildTuple, "BUILD_TUPLE", 3},
		{BuildMap, "BUILD_MAP", 3},
		{BuildSet, "BUILD_SET", 3},
		{GetIndex, "GET_INDEX", 3},
		{SetIndex, "SET_INDEX", 3},
		{GetAttr, "GET_ATTR", 3},
		{SetAttr, "SET_ATTR", 3},
		{GetSlice, "GET_SLICE", 3},
		{Contains, "CONTAINS", 3},
		{GetIter, "GET_ITER", 2},
		{ForIter, "FOR_ITER", 3},
		{MakeClosure, "MAKE_CLOSURE", 3},
		{MakeCell, "MAKE_CELL", 3},
		{MakeClass, "MAKE_CLASS", 2},
		{IncLocal, "INC_LOCAL", 2},
		{StoreConst, "STORE_CONST", 2},
		{AddStore, "ADD_STORE", 3},
		{IncRef, "INC_REF", 1},
		{DecRef, "DEC_REF", 1},
		{CloneUnique, "CLONE_UNIQUE", 1},
		{SetupLoop, "SETUP_LOOP", 2},
		{SetupExcept, "SETUP_EXCEPT", 1},
		{SetupFinally, "SETUP_FINALLY", 1},
		{SetupWith, "SETUP_WITH", 1},
		{PopBlock, "POP_BLOCK", 0},
		{Raise, "RAISE", 1},
		{Assert, "ASSERT", 2},
		{EndFinally, "END_FINALLY", 0},
		{MatchLiteral, "MATCH_LITERAL", 3},
		{MatchSequence, "MATCH_SEQUENCE", 3},
		{MatchMapping, "MATCH_MAPPING", 3},
		{MatchClass, "MATCH_CLASS", 3},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
		}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	return infos[op]
}

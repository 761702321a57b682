package object

import (
	"math"
	"strings"

	"github.com/pyrite-lang/pyrite/op"
)

// BinaryOp implements the generic path for arithmetic instructions. Integer
// fast-path opcodes in the VM fall back to this function when either
// operand is not an int.
func BinaryOp(opType op.BinaryOpType, a, b Object) (Object, error) {
	switch a := a.(type) {
	case *Int:
		switch b := b.(type) {
		case *Int:
			return intBinaryOp(opType, a.value, b.value)
		case *Float:
			return floatBinaryOp(opType, float64(a.value), b.value)
		}
	case *Float:
		switch b := b.(type) {
		case *Int:
			return floatBinaryOp(opType, a.value, float64(b.value))
		case *Float:
			return floatBinaryOp(opType, a.value, b.value)
		}
	case *String:
		switch b := b.(type) {
		case *String:
			if opType == op.BinaryAdd {
				return NewString(a.value + b.value), nil
			}
		case *Int:
			if opType == op.BinaryMul {
				if b.value < 0 {
					return NewString(""), nil
				}
				return NewString(strings.Repeat(a.value, int(b.value))), nil
			}
		}
	case *List:
		switch b := b.(type) {
		case *List:
			if opType == op.BinaryAdd {
				items := make([]Object, 0, len(a.items)+len(b.items))
				items = append(items, a.items...)
				items = append(items, b.items...)
				return NewList(items), nil
			}
		case *Int:
			if opType == op.BinaryMul {
				var items []Object
				for i := int64(0); i < b.value; i++ {
					items = append(items, a.items...)
				}
				return NewList(items), nil
			}
		}
	case *Tuple:
		if b, ok := b.(*Tuple); ok && opType == op.BinaryAdd {
			items := make([]Object, 0, len(a.items)+len(b.items))
			items = append(items, a.items...)
			items = append(items, b.items...)
			return NewTuple(items), nil
		}
	}
	return nil, TypeErrorf("unsupported operand types for %s: %s and %s",
		opType, a.Type(), b.Type())
}

func intBinaryOp(opType op.BinaryOpType, a, b int64) (Object, error) {
	switch opType {
	case op.BinaryAdd:
		return NewInt(a + b), nil
	case op.BinarySub:
		return NewInt(a - b), nil
	case op.BinaryMul:
		return NewInt(a * b), nil
	case op.BinaryDiv:
		// Division always produces a float, even for exact integer division.
		if b == 0 {
			return nil, ValueErrorf("division by zero")
		}
		return NewFloat(float64(a) / float64(b)), nil
	case op.BinaryMod:
		if b == 0 {
			return nil, ValueErrorf("modulo by zero")
		}
		return NewInt(a % b), nil
	case op.BinaryPow:
		if b >= 0 {
			result := int64(1)
			for i := int64(0); i < b; i++ {
				result *= a
			}
			return NewInt(result), nil
		}
		return NewFloat(math.Pow(float64(a), float64(b))), nil
	}
	return nil, TypeErrorf("unsupported int operation: %s", opType)
}

func floatBinaryOp(opType op.BinaryOpType, a, b float64) (Object, error) {
	switch opType {
	case op.BinaryAdd:
		return NewFloat(a + b), nil
	case op.BinarySub:
		return NewFloat(a - b), nil
	case op.BinaryMul:
		return NewFloat(a * b), nil
	case op.BinaryDiv:
		if b == 0 {
			return nil, ValueErrorf("division by zero")
		}
		return NewFloat(a / b), nil
	case op.BinaryMod:
		if b == 0 {
			return nil, ValueErrorf("modulo by zero")
		}
		return NewFloat(math.Mod(a, b)), nil
	case op.BinaryPow:
		return NewFloat(math.Pow(a, b)), nil
	}
	return nil, TypeErrorf("unsupported float operation: %s", opType)
}

// Compare implements the generic path for comparison instructions.
func Compare(opType op.CompareOpType, a, b Object) (Object, error) {
	switch opType {
	case op.CompareEq:
		return NewBool(a.Equals(b)), nil
	case op.CompareNe:
		return NewBool(!a.Equals(b)), nil
	}
	comparable, ok := a.(Comparable)
	if !ok {
		return nil, TypeErrorf("object is not comparable: %s", a.Type())
	}
	result, err := comparable.Compare(b)
	if err != nil {
		return nil, err
	}
	switch opType {
	case op.CompareLt:
		return NewBool(result < 0), nil
	case op.CompareLe:
		return NewBool(result <= 0), nil
	case op.CompareGt:
		return NewBool(result > 0), nil
	case op.CompareGe:
		return NewBool(result >= 0), nil
	}
	return nil, TypeErrorf("unsupported comparison: %s", opType)
}

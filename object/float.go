package object

import "strconv"

// Float wraps float64 and implements Object and Comparable.
type Float struct {
	base
	value float64
}

func (f *Float) Type() Type {
	return FLOAT
}

func (f *Float) Value() float64 {
	return f.value
}

func (f *Float) Inspect() string {
	return strconv.FormatFloat(f.value, 'g', -1, 64)
}

func (f *Float) String() string {
	return f.Inspect()
}

func (f *Float) Interface() interface{} {
	return f.value
}

func (f *Float) IsTruthy() bool {
	return f.value != 0
}

func (f *Float) Equals(other Object) bool {
	switch other := other.(type) {
	case *Float:
		return f.value == other.value
	case *Int:
		return f.value == float64(other.value)
	}
	return false
}

func (f *Float) Compare(other Object) (int, error) {
	var v float64
	switch other := other.(type) {
	case *Float:
		v = other.value
	case *Int:
		v = float64(other.value)
	default:
		return 0, TypeErrorf("unable to compare float and %s", other.Type())
	}
	if f.value < v {
		return -1, nil
	} else if f.value > v {
		return 1, nil
	}
	return 0, nil
}

func NewFloat(value float64) *Float {
	return &Float{value: value}
}

package object

import (
	"fmt"
	"strconv"
)

// Int wraps int64 and implements Object and Comparable.
type Int struct {
	base
	value int64
}

func (i *Int) Type() Type {
	return INT
}

func (i *Int) Value() int64 {
	return i.value
}

func (i *Int) Inspect() string {
	return strconv.FormatInt(i.value, 10)
}

func (i *Int) String() string {
	return i.Inspect()
}

func (i *Int) Interface() interface{} {
	return i.value
}

func (i *Int) IsTruthy() bool {
	return i.value != 0
}

func (i *Int) Equals(other Object) bool {
	switch other := other.(type) {
	case *Int:
		return i.value == other.value
	case *Float:
		return float64(i.value) == other.value
	}
	return false
}

func (i *Int) Compare(other Object) (int, error) {
	switch other := other.(type) {
	case *Int:
		if i.value < other.value {
			return -1, nil
		} else if i.value > other.value {
			return 1, nil
		}
		return 0, nil
	case *Float:
		v := float64(i.value)
		if v < other.value {
			return -1, nil
		} else if v > other.value {
			return 1, nil
		}
		return 0, nil
	}
	return 0, TypeErrorf("unable to compare int and %s", other.Type())
}

func NewInt(value int64) *Int {
	if value >= 0 && value < int64(len(smallInts)) {
		return smallInts[value]
	}
	return &Int{value: value}
}

// Small non-negative integers are interned.
var smallInts [256]*Int

func init() {
	for i := range smallInts {
		smallInts[i] = &Int{value: int64(i)}
	}
}

// AsInt returns the int64 held by the object, or a type error.
func AsInt(obj Object) (int64, error) {
	i, ok := obj.(*Int)
	if !ok {
		return 0, TypeErrorf("expected an int (%s given)", obj.Type())
	}
	return i.value, nil
}

// AsString returns the string held by the object, or a type error.
func AsString(obj Object) (string, error) {
	s, ok := obj.(*String)
	if !ok {
		return "", TypeErrorf("expected a string (%s given)", obj.Type())
	}
	return s.value, nil
}

var _ fmt.Stringer = (*Int)(nil)

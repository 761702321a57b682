package object

import (
	"fmt"
	"strings"
)

// String wraps string and implements Object, Container, and Comparable.
type String struct {
	base
	value string
}

func (s *String) Type() Type {
	return STRING
}

func (s *String) Value() string {
	return s.value
}

func (s *String) Inspect() string {
	return fmt.Sprintf("%q", s.value)
}

func (s *String) String() string {
	return s.value
}

func (s *String) Interface() interface{} {
	return s.value
}

func (s *String) IsTruthy() bool {
	return s.value != ""
}

func (s *String) Equals(other Object) bool {
	o, ok := other.(*String)
	return ok && s.value == o.value
}

func (s *String) Compare(other Object) (int, error) {
	o, ok := other.(*String)
	if !ok {
		return 0, TypeErrorf("unable to compare string and %s", other.Type())
	}
	return strings.Compare(s.value, o.value), nil
}

func (s *String) Len() int {
	return len([]rune(s.value))
}

func (s *String) GetItem(key Object) (Object, error) {
	idx, err := AsInt(key)
	if err != nil {
		return nil, err
	}
	runes := []rune(s.value)
	i, err := normalizeIndex(idx, int64(len(runes)))
	if err != nil {
		return nil, err
	}
	return NewString(string(runes[i])), nil
}

func (s *String) SetItem(key, value Object) error {
	return TypeErrorf("string does not support item assignment")
}

func (s *String) Contains(item Object) bool {
	sub, ok := item.(*String)
	if !ok {
		return false
	}
	return strings.Contains(s.value, sub.value)
}

func (s *String) GetSlice(start, stop int64) (Object, error) {
	runes := []rune(s.value)
	lo, hi, err := normalizeSlice(start, stop, int64(len(runes)))
	if err != nil {
		return nil, err
	}
	return NewString(string(runes[lo:hi])), nil
}

func (s *String) Iter() Iterator {
	runes := []rune(s.value)
	items := make([]Object, len(runes))
	for i, r := range runes {
		items[i] = NewString(string(r))
	}
	return &sliceIterator{items: items}
}

func NewString(value string) *String {
	return &String{value: value}
}

// normalizeIndex converts a possibly negative index into a bounds-checked
// non-negative one.
func normalizeIndex(idx, size int64) (int64, error) {
	i := idx
	if i < 0 {
		i += size
	}
	if i < 0 || i >= size {
		return 0, ValueErrorf("index out of range: %d", idx)
	}
	return i, nil
}

/// normalizeSlice clamps a half-open [start:stop) range to the container
// size, resolving negative offsets.
func normalizeSlice(start, stop, size int64) (int64, int64, error) {
	lo, hi := start, stop
	if lo < 0 {
		lo += size
	}
	if hi < 0 {
		hi += size
	}
	if lo < 0 {
		lo = 0
	}
	if hi > size {
		hi = size
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi, nil
}

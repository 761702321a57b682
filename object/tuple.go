package object

import "strings"

// Tuple is an immutable ordered sequence of objects.
type Tuple struct {
	base
	items []Object
}

func (t *Tuple) Type() Type {
	return TUPLE
}

func (t *Tuple) Value() []Object {
	return t.items
}

func (t *Tuple) Inspect() string {
	var out strings.Builder
	out.WriteString("(")
	for i, item := range t.items {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(item.Inspect())
	}
	if len(t.items) == 1 {
		out.WriteString(",")
	}
	out.WriteString(")")
	return out.String()
}

func (t *Tuple) String() string {
	return t.Inspect()
}

func (t *Tuple) Interface() interface{} {
	items := make([]interface{}, len(t.items))
	for i, item := range t.items {
		items[i] = item.Interface()
	}
	return items
}

func (t *Tuple) IsTruthy() bool {
	return len(t.items) > 0
}

func (t *Tuple) Equals(other Object) bool {
	o, ok := other.(*Tuple)
	if !ok || len(t.items) != len(o.items) {
		return false
	}
	for i, item := range t.items {
		if !item.Equals(o.items[i]) {
			return false
		}
	}
	return true
}

func (t *Tuple) Len() int {
	return len(t.items)
}

func (t *Tuple) GetItem(key Object) (Object, error) {
	idx, err := AsInt(key)
	if err != nil {
		return nil, err
	}
	i, err := normalizeIndex(idx, int64(len(t.items)))
	if err != nil {
		return nil, err
	}
	return t.items[i], nil
}

func (t *Tuple) SetItem(key, value Object) error {
	return TypeErrorf("tuple does not support item assignment")
}

func (t *Tuple) Contains(item Object) bool {
	for _, it := range t.items {
		if it.Equals(item) {
			return true
		}
	}
	return false
}

func (t *Tuple) GetSlice(start, stop int64) (Object, error) {
	lo, hi, err := normalizeSlice(start, stop, int64(len(t.items)))
	if err != nil {
		return nil, err
	}
	items := make([]Object, hi-lo)
	copy(items, t.items[lo:hi])
	return NewTuple(items), nil
}

func (t *Tuple) Iter() Iterator {
	items := make([]Object, len(t.items))
	copy(items, t.items)
	return &sliceIterator{items: items}
}

func NewTuple(items []Object) *Tuple {
	if items == nil {
		items = []Object{}
	}
	return &Tuple{items: items}
}

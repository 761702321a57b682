package object

import (
	"fmt"
	"strings"
)

// List is a mutable ordered sequence of objects.
type List struct {
	base
	items []Object
}

func (l *List) Type() Type {
	return LIST
}

func (l *List) Value() []Object {
	return l.items
}

func (l *List) Inspect() string {
	var out strings.Builder
	out.WriteString("[")
	for i, item := range l.items {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(item.Inspect())
	}
	out.WriteString("]")
	return out.String()
}

func (l *List) String() string {
	return l.Inspect()
}

func (l *List) Interface() interface{} {
	items := make([]interface{}, len(l.items))
	for i, item := range l.items {
		items[i] = item.Interface()
	}
	return items
}

func (l *List) IsTruthy() bool {
	return len(l.items) > 0
}

func (l *List) Equals(other Object) bool {
	o, ok := other.(*List)
	if !ok || len(l.items) != len(o.items) {
		return false
	}
	for i, item := range l.items {
		if !item.Equals(o.items[i]) {
			return false
		}
	}
	return true
}

func (l *List) Len() int {
	return len(l.items)
}

func (l *List) GetItem(key Object) (Object, error) {
	idx, err := AsInt(key)
	if err != nil {
		return nil, err
	}
	i, err := normalizeIndex(idx, int64(len(l.items)))
	if err != nil {
		return nil, err
	}
	return l.items[i], nil
}

func (l *List) SetItem(key, value Object) error {
	idx, err := AsInt(key)
	if err != nil {
		return err
	}
	i, err := normalizeIndex(idx, int64(len(l.items)))
	if err != nil {
		return err
	}
	l.items[i] = value
	return nil
}

func (l *List) Contains(item Object) bool {
	for _, it := range l.items {
		if it.Equals(item) {
			return true
		}
	}
	return false
}

func (l *List) GetSlice(start, stop int64) (Object, error) {
	lo, hi, err := normalizeSlice(start, stop, int64(len(l.items)))
	if err != nil {
		return nil, err
	}
	items := make([]Object, hi-lo)
	copy(items, l.items[lo:hi])
	return NewList(items), nil
}

func (l *List) Iter() Iterator {
	items := make([]Object, len(l.items))
	copy(items, l.items)
	return &sliceIterator{items: items}
}

// Append adds an item in place.
func (l *List) Append(item Object) {
	l.items = append(l.items, item)
}

// Copy returns a shallow copy of the list.
func (l *List) Copy() *List {
	items := make([]Object, len(l.items))
	copy(items, l.items)
	return NewList(items)
}

func NewList(items []Object) *List {
	if items == nil {
		items = []Object{}
	}
	return &List{items: items}
}

var _ fmt.Stringer = (*List)(nil)

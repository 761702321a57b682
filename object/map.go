package object

import (
	"sort"
	"strings"
)

// Map is a mutable mapping from string keys to objects.
type Map struct {
	base
	items map[string]Object
}

func (m *Map) Type() Type {
	return MAP
}

func (m *Map) Value() map[string]Object {
	return m.items
}

// SortedKeys returns the map keys in sorted order.
func (m *Map) SortedKeys() []string {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) Inspect() string {
	var out strings.Builder
	out.WriteString("{")
	for i, k := range m.SortedKeys() {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(NewString(k).Inspect())
		out.WriteString(": ")
		out.WriteString(m.items[k].Inspect())
	}
	out.WriteString("}")
	return out.String()
}

func (m *Map) String() string {
	return m.Inspect()
}

func (m *Map) Interface() interface{} {
	items := make(map[string]interface{}, len(m.items))
	for k, v := range m.items {
		items[k] = v.Interface()
	}
	return items
}

func (m *Map) IsTruthy() bool {
	return len(m.items) > 0
}

func (m *Map) Equals(other Object) bool {
	o, ok := other.(*Map)
	if !ok || len(m.items) != len(o.items) {
		return false
	}
	for k, v := range m.items {
		ov, found := o.items[k]
		if !found || !v.Equals(ov) {
			return false
		}
	}
	return true
}

func (m *Map) Len() int {
	return len(m.items)
}

func (m *Map) GetItem(key Object) (Object, error) {
	k, err := AsString(key)
	if err != nil {
		return nil, err
	}
	value, found := m.items[k]
	if !found {
		return nil, ValueErrorf("key not found: %q", k)
	}
	return value, nil
}

func (m *Map) SetItem(key, value Object) error {
	k, err := AsString(key)
	if err != nil {
		return err
	}
	m.items[k] = value
	return nil
}

func (m *Map) Contains(item Object) bool {
	k, ok := item.(*String)
	if !ok {
		return false
	}
	_, found := m.items[k.value]
	return found
}

// Iter iterates the map keys in sorted order.
func (m *Map) Iter() Iterator {
	keys := m.SortedKeys()
	items := make([]Object, len(keys))
	for i, k := range keys {
		items[i] = NewString(k)
	}
	return &sliceIterator{items: items}
}

// Copy returns a shallow copy of the map.
func (m *Map) Copy() *Map {
	items := make(map[string]Object, len(m.items))
	for k, v := range m.items {
		items[k] = v
	}
	return NewMap(items)
}

func NewMap(items map[string]Object) *Map {
	if items == nil {
		items = map[string]Object{}
	}
	return &Map{items: items}
}

package object

import (
	"sort"
	"strings"
)

// Set is a mutable collection of unique objects, keyed by their inspect
// representation.
type Set struct {
	base
	items map[string]Object
}

func (s *Set) Type() Type {
	return SET
}

// SortedItems returns the set items ordered by their key representation.
func (s *Set) SortedItems() []Object {
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]Object, len(keys))
	for i, k := range keys {
		items[i] = s.items[k]
	}
	return items
}

func (s *Set) Inspect() string {
	var out strings.Builder
	out.WriteString("{")
	for i, item := range s.SortedItems() {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(item.Inspect())
	}
	out.WriteString("}")
	return out.String()
}

func (s *Set) String() string {
	return s.Inspect()
}

func (s *Set) Interface() interface{} {
	items := s.SortedItems()
	result := make([]interface{}, len(items))
	for i, item := range items {
		result[i] = item.Interface()
	}
	return result
}

func (s *Set) IsTruthy() bool {
	return len(s.items) > 0
}

func (s *Set) Equals(other Object) bool {
	o, ok := other.(*Set)
	if !ok || len(s.items) != len(o.items) {
		return false
	}
	for k := range s.items {
		if _, found := o.items[k]; !found {
			return false
		}
	}
	return true
}

func (s *Set) Len() int {
	return len(s.items)
}

func (s *Set) GetItem(key Object) (Object, error) {
	return nil, TypeErrorf("set does not support subscript access")
}

func (s *Set) SetItem(key, value Object) error {
	return TypeErrorf("set does not support item assignment")
}

func (s *Set) Contains(item Object) bool {
	_, found := s.items[item.Inspect()]
	return found
}

// Add inserts an item in place.
func (s *Set) Add(item Object) {
	s.items[item.Inspect()] = item
}

// Remove deletes an item in place. Removal of a missing item fails.
func (s *Set) Remove(item Object) error {
	key := item.Inspect()
	if _, found := s.items[key]; !found {
		return ValueErrorf("item not found in set: %s", key)
	}
	delete(s.items, key)
	return nil
}

func (s *Set) Iter() Iterator {
	return &sliceIterator{items: s.SortedItems()}
}

// Copy returns a shallow copy of the set.
func (s *Set) Copy() *Set {
	set := NewSet(nil)
	for k, v := range s.items {
		set.items[k] = v
	}
	return set
}

func NewSet(items []Object) *Set {
	set := &Set{items: map[string]Object{}}
	for _, item := range items {
		set.Add(item)
	}
	return set
}

package object

import "fmt"

// sliceIterator iterates over a fixed snapshot of items.
type sliceIterator struct {
	base
	items []Object
	pos   int
}

func (it *sliceIterator) Type() Type {
	return ITERATOR
}

func (it *sliceIterator) Inspect() string {
	return fmt.Sprintf("iterator(pos=%d, len=%d)", it.pos, len(it.items))
}

func (it *sliceIterator) String() string {
	return it.Inspect()
}

func (it *sliceIterator) Interface() interface{} {
	return nil
}

func (it *sliceIterator) IsTruthy() bool {
	return it.pos < len(it.items)
}

func (it *sliceIterator) Equals(other Object) bool {
	return it == other
}

func (it *sliceIterator) Next() (Object, bool) {
	if it.pos >= len(it.items) {
		return nil, false
	}
	item := it.items[it.pos]
	it.pos++
	return item, true
}

// rangeIterator yields successive integers of a Range without materializing
// them.
type rangeIterator struct {
	base
	r   *Range
	pos int64
}

func (it *rangeIterator) Type() Type {
	return ITERATOR
}

func (it *rangeIterator) Inspect() string {
	return fmt.Sprintf("iterator(%s)", it.r.Inspect())
}

func (it *rangeIterator) String() string {
	return it.Inspect()
}

func (it *rangeIterator) Interface() interface{} {
	return nil
}

func (it *rangeIterator) IsTruthy() bool {
	if it.r.step > 0 {
		return it.pos < it.r.stop
	}
	return it.pos > it.r.stop
}

func (it *rangeIterator) Equals(other Object) bool {
	return it == other
}

func (it *rangeIterator) Next() (Object, bool) {
	if it.r.step > 0 {
		if it.pos >= it.r.stop {
			return nil, false
		}
	} else if it.pos <= it.r.stop {
		return nil, false
	}
	value := NewInt(it.pos)
	it.pos += it.r.step
	return value, true
}

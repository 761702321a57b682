package object

import "fmt"

// Ref is a reference-counted cell pairing a value with an explicit count.
// Registers in a VM frame hold *Ref; moving a value between registers
// shares the cell, and the compiler emits explicit increment instructions
// for aliasing assignments.
//
// The count is the mechanism for deciding whether an operation may mutate
// the held value in place: count == 1 means no other register aliases the
// value, licensing mutation; count > 1 forces copy-on-write. There is no
// automatic cycle collection, so cyclic structures leak.
type Ref struct {
	value Object
	count int

	// captured marks cells shared with a closure. Stores to a captured
	// local write through the cell so every closure holding it observes
	// the rebinding, the same way free-variable stores do.
	captured bool
}

// NewRef creates a cell holding the given value with a count of 1.
func NewRef(value Object) *Ref {
	return &Ref{value: value, count: 1}
}

// Value returns the held value.
func (r *Ref) Value() Object {
	return r.value
}

// SetValue replaces the held value, leaving the count unchanged.
func (r *Ref) SetValue(value Object) {
	r.value = value
}

// Count returns the current reference count.
func (r *Ref) Count() int {
	return r.count
}

// Unique reports whether this cell is the only reference to its value.
func (r *Ref) Unique() bool {
	return r.count == 1
}

// Inc increments the reference count.
func (r *Ref) Inc() {
	r.count++
}

// MarkCaptured flags the cell as shared with a closure.
func (r *Ref) MarkCaptured() {
	r.captured = true
}

// Captured reports whether a closure holds this cell.
func (r *Ref) Captured() bool {
	return r.captured
}

// Dec decrements the reference count. Decrementing a count of 1 never
// underflows: the cell instead drops its value, replacing it with nil.
// This is an eager deallocation-by-replacement policy, not a destructor.
func (r *Ref) Dec() {
	if r.count <= 1 {
		r.count = 1
		r.value = Nil
		return
	}
	r.count--
}

// CloneUnique returns a cell that is safe to mutate. A unique cell is
// returned as-is. A shared cell's count is decremented and a fresh cell
// holding a shallow copy of the value is returned.
func (r *Ref) CloneUnique() *Ref {
	if r.count == 1 {
		return r
	}
	r.count--
	return NewRef(CopyValue(r.value))
}

func (r *Ref) String() string {
	return fmt.Sprintf("ref(%s, count=%d)", r.value.Inspect(), r.count)
}

// CopyValue returns a shallow copy of mutable container values. Immutable
// values are returned unchanged.
func CopyValue(obj Object) Object {
	switch obj := obj.(type) {
	case *List:
		return obj.Copy()
	case *Map:
		return obj.Copy()
	case *Set:
		return obj.Copy()
	default:
		return obj
	}
}

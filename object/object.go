// Package object provides the standard set of Pyrite runtime value types.
//
// Values are represented as a closed set of types implementing the
// object.Object interface. Consumers typically type-assert to a concrete
// type:
//
//	switch obj := obj.(type) {
//	case *object.String:
//		// do something with obj.Value()
//	case *object.Int:
//		// do something with obj.Value()
//	}
//
// The Type() method of each object may also be used to get a string name
// of the object type, such as "string" or "int".
package object

// Type of an object as a string.
type Type string

// Type constants
const (
	BOOL     Type = "bool"
	BUILTIN  Type = "builtin"
	CLASS    Type = "class"
	ERROR    Type = "error"
	FLOAT    Type = "float"
	FUNCTION Type = "function"
	INSTANCE Type = "instance"
	INT      Type = "int"
	ITERATOR Type = "iterator"
	LIST     Type = "list"
	MAP      Type = "map"
	NIL      Type = "nil"
	RANGE    Type = "range"
	SET      Type = "set"
	STRING   Type = "string"
	TUPLE    Type = "tuple"
)

var (
	Nil   = &NilType{}
	True  = &Bool{value: true}
	False = &Bool{value: false}
)

// Object is the interface that all value types in Pyrite implement.
type Object interface {
	// Type of the object.
	Type() Type

	// Inspect returns a string representation of the given object.
	Inspect() string

	// String returns the display form of the object, as produced by the
	// str builtin and string interpolation. For strings this is the raw
	// text without quotes; for other types it matches Inspect.
	String() string

	// Interface converts the given object to a native Go value.
	Interface() interface{}

	// Equals returns true if the given object is equal to this object.
	Equals(other Object) bool

	// IsTruthy returns true if the object is considered "truthy".
	IsTruthy() bool

	// GetAttr returns the attribute with the given name from this object.
	GetAttr(name string) (Object, bool)

	// SetAttr sets the attribute with the given name on this object.
	SetAttr(name string, value Object) error
}

// Container is implemented by types supporting subscript access.
type Container interface {
	// GetItem implements the [key] operator for a container type.
	GetItem(key Object) (Object, error)

	// SetItem implements the [key] = value operator for a container type.
	SetItem(key, value Object) error

	// Contains returns true if the given item is found in this container.
	Contains(item Object) bool

	// Len returns the number of items in this container.
	Len() int
}

// Sliceable is implemented by containers supporting [start:stop] access.
type Sliceable interface {
	GetSlice(start, stop int64) (Object, error)
}

// Iterable is implemented by types that can produce an iterator.
type Iterable interface {
	Iter() Iterator
}

// Iterator advances over the items of an iterable. Next returns the next
// item, or false once the iterator is exhausted.
type Iterator interface {
	Object
	Next() (Object, bool)
}

// Comparable is an interface used to order two objects.
//
//	-1 if this < other
//	 0 if this == other
//	 1 if this > other
type Comparable interface {
	Compare(other Object) (int, error)
}

// NewBool returns the interned Bool for the given value.
func NewBool(value bool) *Bool {
	if value {
		return True
	}
	return False
}

// Not returns the inverse of the given Bool.
func Not(b *Bool) *Bool {
	if b.value {
		return False
	}
	return True
}

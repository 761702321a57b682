package object

// NilType represents the null value. There is exactly one instance,
// object.Nil.
type NilType struct {
	base
}

func (n *NilType) Type() Type {
	return NIL
}

func (n *NilType) Inspect() string {
	return "nil"
}

func (n *NilType) String() string {
	return n.Inspect()
}

func (n *NilType) Interface() interface{} {
	return nil
}

func (n *NilType) IsTruthy() bool {
	return false
}

func (n *NilType) Equals(other Object) bool {
	_, ok := other.(*NilType)
	return ok
}

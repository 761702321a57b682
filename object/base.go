package object

// base provides default implementations of the attribute methods for types
// without attributes. Embed it in concrete object types.
type base struct{}

func (base) GetAttr(name string) (Object, bool) {
	return nil, false
}

func (base) SetAttr(name string, value Object) error {
	return TypeErrorf("object has no attribute %q", name)
}

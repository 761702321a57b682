package object

// Bool wraps bool and implements Object. The two instances are interned as
// object.True and object.False.
type Bool struct {
	base
	value bool
}

func (b *Bool) Type() Type {
	return BOOL
}

func (b *Bool) Value() bool {
	return b.value
}

func (b *Bool) Inspect() string {
	if b.value {
		return "true"
	}
	return "false"
}

func (b *Bool) String() string {
	return b.Inspect()
}

func (b *Bool) Interface() interface{} {
	return b.value
}

func (b *Bool) IsTruthy() bool {
	return b.value
}

func (b *Bool) Equals(other Object) bool {
	o, ok := other.(*Bool)
	return ok && b.value == o.value
}

func (b *Bool) Compare(other Object) (int, error) {
	o, ok := other.(*Bool)
	if !ok {
		return 0, TypeErrorf("unable to compare bool and %s", other.Type())
	}
	if b.value == o.value {
		return 0, nil
	}
	if b.value {
		return 1, nil
	}
	return -1, nil
}

package object

import (
	"fmt"

	"github.com/pyrite-lang/pyrite/compiler"
)

// Class is a runtime class value: a name plus a method table. Mutating the
// method table invalidates method caches via the VM's class version
// counter.
type Class struct {
	base
	name    string
	methods map[string]*Function
}

func (c *Class) Type() Type {
	return CLASS
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.name
}

// Method resolves a method by name.
func (c *Class) Method(name string) (*Function, bool) {
	m, found := c.methods[name]
	return m, found
}

func (c *Class) Inspect() string {
	return fmt.Sprintf("class %s", c.name)
}

func (c *Class) String() string {
	return c.Inspect()
}

func (c *Class) Interface() interface{} {
	return c
}

func (c *Class) IsTruthy() bool {
	return true
}

func (c *Class) Equals(other Object) bool {
	return c == other
}

func (c *Class) GetAttr(name string) (Object, bool) {
	if m, found := c.methods[name]; found {
		return m, true
	}
	return nil, false
}

// SetAttr replaces or adds a method on the class.
func (c *Class) SetAttr(name string, value Object) error {
	fn, ok := value.(*Function)
	if !ok {
		return TypeErrorf("class attribute must be a function (%s given)", value.Type())
	}
	c.methods[name] = fn
	return nil
}

// NewClass builds a runtime class from a compiled class template, wrapping
// each compiled method as a function value.
func NewClass(cc *compiler.Class) *Class {
	methods := make(map[string]*Function, len(cc.Methods()))
	for _, m := range cc.Methods() {
		methods[m.Name()] = NewFunction(m)
	}
	return &Class{name: cc.Name(), methods: methods}
}

// Instance is an object instantiated from a class. Attribute storage is
// per-instance; methods resolve through the class.
type Instance struct {
	base
	class *Class
	attrs map[string]Object
}

func (i *Instance) Type() Type {
	return INSTANCE
}

// Class returns the instance's class.
func (i *Instance) Class() *Class {
	return i.class
}

func (i *Instance) Inspect() string {
	return fmt.Sprintf("%s()", i.class.name)
}

func (i *Instance) String() string {
	return i.Inspect()
}

func (i *Instance) Interface() interface{} {
	attrs := make(map[string]interface{}, len(i.attrs))
	for k, v := range i.attrs {
		attrs[k] = v.Interface()
	}
	return attrs
}

func (i *Instance) IsTruthy() bool {
	return true
}

func (i *Instance) Equals(other Object) bool {
	return i == other
}

func (i *Instance) GetAttr(name string) (Object, bool) {
	if v, found := i.attrs[name]; found {
		return v, true
	}
	if m, found := i.class.Method(name); found {
		return m, true
	}
	return nil, false
}

func (i *Instance) SetAttr(name string, value Object) error {
	i.attrs[name] = value
	return nil
}

// NewInstance creates an empty instance of the given class.
func NewInstance(class *Class) *Instance {
	return &Instance{class: class, attrs: map[string]Object{}}
}

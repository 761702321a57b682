package object

import (
	"sort"
	"strings"
)

// MethodFunc implements a builtin method on one of the core types. The
// receiver is passed explicitly so a single function can serve every
// instance of the type.
type MethodFunc func(recv Object, args []Object) (Object, error)

// Method describes one entry in the builtin method table. Mutates tells
// the caller that the receiver is modified in place, so a shared cell
// must be made unique before dispatch.
type Method struct {
	Name    string
	Mutates bool
	Func    MethodFunc
}

type methodKey struct {
	typ  Type
	name string
}

var methodTable map[methodKey]*Method

// LookupMethod returns the builtin method with the given name for the
// given type, or nil if the type has no such method.
func LookupMethod(typ Type, name string) *Method {
	return methodTable[methodKey{typ: typ, name: name}]
}

func registerMethod(typ Type, name string, mutates bool, fn MethodFunc) {
	methodTable[methodKey{typ: typ, name: name}] = &Method{
		Name:    name,
		Mutates: mutates,
		Func:    fn,
	}
}

func checkArgs(name string, args []Object, want int) error {
	if len(args) != want {
		return TypeErrorf("%s() takes %d arguments (%d given)", name, want, len(args))
	}
	return nil
}

func init() {
	methodTable = map[methodKey]*Method{}

	registerMethod(LIST, "append", true, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("append", args, 1); err != nil {
			return nil, err
		}
		recv.(*List).Append(args[0])
		return Nil, nil
	})
	registerMethod(LIST, "extend", true, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("extend", args, 1); err != nil {
			return nil, err
		}
		list := recv.(*List)
		iterable, ok := args[0].(Iterable)
		if !ok {
			return nil, TypeErrorf("extend() argument is not iterable: %s", args[0].Type())
		}
		iter := iterable.Iter()
		for {
			item, ok := iter.Next()
			if !ok {
				break
			}
			list.Append(item)
		}
		return Nil, nil
	})
	registerMethod(LIST, "pop", true, func(recv Object, args []Object) (Object, error) {
		if len(args) > 1 {
			return nil, TypeErrorf("pop() takes at most 1 argument (%d given)", len(args))
		}
		list := recv.(*List)
		if len(list.items) == 0 {
			return nil, ValueErrorf("pop from empty list")
		}
		idx := int64(len(list.items) - 1)
		if len(args) == 1 {
			var err error
			if idx, err = AsInt(args[0]); err != nil {
				return nil, err
			}
			if idx, err = normalizeIndex(idx, int64(len(list.items))); err != nil {
				return nil, err
			}
		}
		item := list.items[idx]
		list.items = append(list.items[:idx], list.items[idx+1:]...)
		return item, nil
	})
	registerMethod(LIST, "index", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("index", args, 1); err != nil {
			return nil, err
		}
		for i, item := range recv.(*List).items {
			if item.Equals(args[0]) {
				return NewInt(int64(i)), nil
			}
		}
		return nil, ValueErrorf("%s is not in list", args[0].Inspect())
	})
	registerMethod(LIST, "reverse", true, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("reverse", args, 0); err != nil {
			return nil, err
		}
		items := recv.(*List).items
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
		return Nil, nil
	})
	registerMethod(LIST, "copy", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("copy", args, 0); err != nil {
			return nil, err
		}
		return recv.(*List).Copy(), nil
	})

	registerMethod(MAP, "get", false, func(recv Object, args []Object) (Object, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, TypeErrorf("get() takes 1 or 2 arguments (%d given)", len(args))
		}
		key, err := AsString(args[0])
		if err != nil {
			return nil, err
		}
		if value, ok := recv.(*Map).items[key]; ok {
			return value, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return Nil, nil
	})
	registerMethod(MAP, "keys", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("keys", args, 0); err != nil {
			return nil, err
		}
		m := recv.(*Map)
		keys := make([]Object, 0, len(m.items))
		for _, k := range m.SortedKeys() {
			keys = append(keys, NewString(k))
		}
		return NewList(keys), nil
	})
	registerMethod(MAP, "values", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("values", args, 0); err != nil {
			return nil, err
		}
		m := recv.(*Map)
		values := make([]Object, 0, len(m.items))
		for _, k := range m.SortedKeys() {
			values = append(values, m.items[k])
		}
		return NewList(values), nil
	})
	registerMethod(MAP, "items", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("items", args, 0); err != nil {
			return nil, err
		}
		m := recv.(*Map)
		items := make([]Object, 0, len(m.items))
		for _, k := range m.SortedKeys() {
			items = append(items, NewTuple([]Object{NewString(k), m.items[k]}))
		}
		return NewList(items), nil
	})
	registerMethod(MAP, "pop", true, func(recv Object, args []Object) (Object, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, TypeErrorf("pop() takes 1 or 2 arguments (%d given)", len(args))
		}
		key, err := AsString(args[0])
		if err != nil {
			return nil, err
		}
		m := recv.(*Map)
		if value, ok := m.items[key]; ok {
			delete(m.items, key)
			return value, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, ValueErrorf("key not found: %q", key)
	})

	registerMethod(STRING, "upper", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("upper", args, 0); err != nil {
			return nil, err
		}
		return NewString(strings.ToUpper(recv.(*String).value)), nil
	})
	registerMethod(STRING, "lower", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("lower", args, 0); err != nil {
			return nil, err
		}
		return NewString(strings.ToLower(recv.(*String).value)), nil
	})
	registerMethod(STRING, "strip", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("strip", args, 0); err != nil {
			return nil, err
		}
		return NewString(strings.TrimSpace(recv.(*String).value)), nil
	})
	registerMethod(STRING, "split", false, func(recv Object, args []Object) (Object, error) {
		if len(args) > 1 {
			return nil, TypeErrorf("split() takes at most 1 argument (%d given)", len(args))
		}
		s := recv.(*String).value
		var parts []string
		if len(args) == 0 {
			parts = strings.Fields(s)
		} else {
			sep, err := AsString(args[0])
			if err != nil {
				return nil, err
			}
			parts = strings.Split(s, sep)
		}
		items := make([]Object, 0, len(parts))
		for _, part := range parts {
			items = append(items, NewString(part))
		}
		return NewList(items), nil
	})
	registerMethod(STRING, "join", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("join", args, 1); err != nil {
			return nil, err
		}
		iterable, ok := args[0].(Iterable)
		if !ok {
			return nil, TypeErrorf("join() argument is not iterable: %s", args[0].Type())
		}
		var parts []string
		iter := iterable.Iter()
		for {
			item, ok := iter.Next()
			if !ok {
				break
			}
			s, err := AsString(item)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		return NewString(strings.Join(parts, recv.(*String).value)), nil
	})
	registerMethod(STRING, "startswith", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("startswith", args, 1); err != nil {
			return nil, err
		}
		prefix, err := AsString(args[0])
		if err != nil {
			return nil, err
		}
		return NewBool(strings.HasPrefix(recv.(*String).value, prefix)), nil
	})
	registerMethod(STRING, "endswith", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("endswith", args, 1); err != nil {
			return nil, err
		}
		suffix, err := AsString(args[0])
		if err != nil {
			return nil, err
		}
		return NewBool(strings.HasSuffix(recv.(*String).value, suffix)), nil
	})

	registerMethod(SET, "add", true, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("add", args, 1); err != nil {
			return nil, err
		}
		recv.(*Set).Add(args[0])
		return Nil, nil
	})
	registerMethod(SET, "remove", true, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("remove", args, 1); err != nil {
			return nil, err
		}
		if err := recv.(*Set).Remove(args[0]); err != nil {
			return nil, err
		}
		return Nil, nil
	})
	registerMethod(SET, "contains", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("contains", args, 1); err != nil {
			return nil, err
		}
		return NewBool(recv.(*Set).Contains(args[0])), nil
	})

	registerMethod(TUPLE, "index", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("index", args, 1); err != nil {
			return nil, err
		}
		for i, item := range recv.(*Tuple).items {
			if item.Equals(args[0]) {
				return NewInt(int64(i)), nil
			}
		}
		return nil, ValueErrorf("%s is not in tuple", args[0].Inspect())
	})
	registerMethod(TUPLE, "count", false, func(recv Object, args []Object) (Object, error) {
		if err := checkArgs("count", args, 1); err != nil {
			return nil, err
		}
		var count int64
		for _, item := range recv.(*Tuple).items {
			if item.Equals(args[0]) {
				count++
			}
		}
		return NewInt(count), nil
	})
}

// SortObjects sorts a slice of objects in place using Compare where
// available, falling back to Inspect ordering for mixed types.
func SortObjects(items []Object) {
	sort.SliceStable(items, func(i, j int) bool {
		if cmp, ok := items[i].(Comparable); ok {
			result, err := cmp.Compare(items[j])
			if err == nil {
				return result < 0
			}
		}
		return items[i].Inspect() < items[j].Inspect()
	})
}

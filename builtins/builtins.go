// Package builtins defines the default set of built-in functions.
package builtins

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pyrite-lang/pyrite/object"
)

func Len(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len: expected 1 argument, got %d", len(args))
	}
	switch arg := args[0].(type) {
	case object.Container:
		return object.NewInt(int64(arg.Len())), nil
	default:
		return nil, object.TypeErrorf("len() unsupported argument (%s given)", args[0].Type())
	}
}

func Range(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) < 1 || len(args) > 3 {
		return nil, fmt.Errorf("range: expected 1-3 arguments, got %d", len(args))
	}
	var start, stop int64
	step := int64(1)
	var err error
	switch len(args) {
	case 1:
		stop, err = object.AsInt(args[0])
	case 2:
		if start, err = object.AsInt(args[0]); err == nil {
			stop, err = object.AsInt(args[1])
		}
	case 3:
		if start, err = object.AsInt(args[0]); err == nil {
			if stop, err = object.AsInt(args[1]); err == nil {
				step, err = object.AsInt(args[2])
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return object.NewRange(start, stop, step)
}

func TypeOf(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("type: expected 1 argument, got %d", len(args))
	}
	return object.NewString(string(args[0].Type())), nil
}

func Str(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("str: expected 1 argument, got %d", len(args))
	}
	if s, ok := args[0].(*object.String); ok {
		return s, nil
	}
	return object.NewString(args[0].String()), nil
}

func Int(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("int: expected 1 argument, got %d", len(args))
	}
	switch arg := args[0].(type) {
	case *object.Int:
		return arg, nil
	case *object.Float:
		return object.NewInt(int64(arg.Value())), nil
	case *object.Bool:
		if arg.Value() {
			return object.NewInt(1), nil
		}
		return object.NewInt(0), nil
	case *object.String:
		value, err := strconv.ParseInt(strings.TrimSpace(arg.Value()), 10, 64)
		if err != nil {
			return nil, object.ValueErrorf("invalid literal for int(): %q", arg.Value())
		}
		return object.NewInt(value), nil
	default:
		return nil, object.TypeErrorf("int() unsupported argument (%s given)", args[0].Type())
	}
}

func Float(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("float: expected 1 argument, got %d", len(args))
	}
	switch arg := args[0].(type) {
	case *object.Float:
		return arg, nil
	case *object.Int:
		return object.NewFloat(float64(arg.Value())), nil
	case *object.String:
		value, err := strconv.ParseFloat(strings.TrimSpace(arg.Value()), 64)
		if err != nil {
			return nil, object.ValueErrorf("invalid literal for float(): %q", arg.Value())
		}
		return object.NewFloat(value), nil
	default:
		return nil, object.TypeErrorf("float() unsupported argument (%s given)", args[0].Type())
	}
}

func Abs(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs: expected 1 argument, got %d", len(args))
	}
	switch arg := args[0].(type) {
	case *object.Int:
		if arg.Value() < 0 {
			return object.NewInt(-arg.Value()), nil
		}
		return arg, nil
	case *object.Float:
		if arg.Value() < 0 {
			return object.NewFloat(-arg.Value()), nil
		}
		return arg, nil
	default:
		return nil, object.TypeErrorf("abs() unsupported argument (%s given)", args[0].Type())
	}
}

func Sum(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sum: expected 1 argument, got %d", len(args))
	}
	iterable, ok := args[0].(object.Iterable)
	if !ok {
		return nil, object.TypeErrorf("sum() unsupported argument (%s given)", args[0].Type())
	}
	intSum := int64(0)
	floatSum := 0.0
	isFloat := false
	iter := iterable.Iter()
	for {
		item, ok := iter.Next()
		if !ok {
			break
		}
		switch item := item.(type) {
		case *object.Int:
			intSum += item.Value()
		case *object.Float:
			isFloat = true
			floatSum += item.Value()
		default:
			return nil, object.TypeErrorf("sum() unsupported item (%s given)", item.Type())
		}
	}
	if isFloat {
		return object.NewFloat(floatSum + float64(intSum)), nil
	}
	return object.NewInt(intSum), nil
}

func Sorted(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sorted: expected 1 argument, got %d", len(args))
	}
	iterable, ok := args[0].(object.Iterable)
	if !ok {
		return nil, object.TypeErrorf("sorted() unsupported argument (%s given)", args[0].Type())
	}
	var items []object.Object
	iter := iterable.Iter()
	for {
		item, ok := iter.Next()
		if !ok {
			break
		}
		items = append(items, item)
	}
	object.SortObjects(items)
	return object.NewList(items), nil
}

func Min(ctx context.Context, args ...object.Object) (object.Object, error) {
	return extreme("min", -1, args)
}

func Max(ctx context.Context, args ...object.Object) (object.Object, error) {
	return extreme("max", 1, args)
}

// extreme returns the item ordered first (want = -1) or last (want = 1).
func extreme(name string, want int, args []object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s: expected 1 argument, got %d", name, len(args))
	}
	iterable, ok := args[0].(object.Iterable)
	if !ok {
		return nil, object.TypeErrorf("%s() unsupported argument (%s given)", name, args[0].Type())
	}
	var best object.Object
	iter := iterable.Iter()
	for {
		item, ok := iter.Next()
		if !ok {
			break
		}
		if best == nil {
			best = item
			continue
		}
		cmp, ok := item.(object.Comparable)
		if !ok {
			return nil, object.TypeErrorf("%s() unsupported item (%s given)", name, item.Type())
		}
		order, err := cmp.Compare(best)
		if err != nil {
			return nil, err
		}
		if order == want {
			best = item
		}
	}
	if best == nil {
		return nil, object.ValueErrorf("%s() arg is an empty sequence", name)
	}
	return best, nil
}

func Bool(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("bool: expected 1 argument, got %d", len(args))
	}
	return object.NewBool(args[0].IsTruthy()), nil
}

func ErrorFn(ctx context.Context, args ...object.Object) (object.Object, error) {
	if len(args) < 1 || len(args) > 64 {
		return nil, fmt.Errorf("error: expected 1-64 arguments, got %d", len(args))
	}
	format, err := object.AsString(args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return object.NewError(format), nil
	}
	fmtArgs := make([]interface{}, len(args)-1)
	for i, arg := range args[1:] {
		fmtArgs[i] = arg.Interface()
	}
	return object.NewError(fmt.Sprintf(format, fmtArgs...)), nil
}

// PrintTo builds a print builtin bound to the given writer, so tests and
// embedders can capture output.
func PrintTo(w io.Writer) object.BuiltinFunction {
	return func(ctx context.Context, args ...object.Object) (object.Object, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = arg.String()
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return nil, err
		}
		return object.Nil, nil
	}
}

// Builtins returns the default builtins, printing to stdout.
func Builtins() map[string]object.Object {
	return BuiltinsTo(os.Stdout)
}

// BuiltinsTo returns the default builtins with print bound to w.
func BuiltinsTo(w io.Writer) map[string]object.Object {
	return map[string]object.Object{
		"abs":    object.NewBuiltin("abs", Abs),
		"bool":   object.NewBuiltin("bool", Bool),
		"error":  object.NewBuiltin("error", ErrorFn),
		"float":  object.NewBuiltin("float", Float),
		"int":    object.NewBuiltin("int", Int),
		"len":    object.NewBuiltin("len", Len),
		"max":    object.NewBuiltin("max", Max),
		"min":    object.NewBuiltin("min", Min),
		"print":  object.NewBuiltin("print", PrintTo(w)),
		"range":  object.NewBuiltin("range", Range),
		"sorted": object.NewBuiltin("sorted", Sorted),
		"str":    object.NewBuiltin("str", Str),
		"sum":    object.NewBuiltin("sum", Sum),
		"type":   object.NewBuiltin("type", TypeOf),
	}
}

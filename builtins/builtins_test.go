package builtins

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pyrite-lang/pyrite/object"
)

func TestLen(t *testing.T) {
	ctx := context.Background()
	result, err := Len(ctx, object.NewString("hello"))
	require.Nil(t, err)
	require.Equal(t, object.NewInt(5), result)

	result, err = Len(ctx, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2),
	}))
	require.Nil(t, err)
	require.Equal(t, object.NewInt(2), result)

	_, err = Len(ctx, object.NewInt(7))
	require.NotNil(t, err)
}

func TestRange(t *testing.T) {
	ctx := context.Background()
	result, err := Range(ctx, object.NewInt(3))
	require.Nil(t, err)
	r, ok := result.(*object.Range)
	require.True(t, ok)

	var items []int64
	iter := r.Iter()
	for {
		item, ok := iter.Next()
		if !ok {
			break
		}
		items = append(items, item.(*object.Int).Value())
	}
	require.Equal(t, []int64{0, 1, 2}, items)

	result, err = Range(ctx, object.NewInt(10), object.NewInt(2), object.NewInt(-3))
	require.Nil(t, err)
	r = result.(*object.Range)
	require.Equal(t, int64(10), r.Start())
	require.Equal(t, int64(2), r.Stop())
	require.Equal(t, int64(-3), r.Step())

	_, err = Range(ctx, object.NewInt(0), object.NewInt(5), object.NewInt(0))
	require.NotNil(t, err)
}

func TestTypeOf(t *testing.T) {
	ctx := context.Background()
	result, err := TypeOf(ctx, object.NewInt(1))
	require.Nil(t, err)
	require.Equal(t, object.NewString("int"), result)

	result, err = TypeOf(ctx, object.NewList(nil))
	require.Nil(t, err)
	require.Equal(t, object.NewString("list"), result)
}

func TestStr(t *testing.T) {
	ctx := context.Background()
	result, err := Str(ctx, object.NewInt(42))
	require.Nil(t, err)
	require.Equal(t, object.NewString("42"), result)

	result, err = Str(ctx, object.NewBool(true))
	require.Nil(t, err)
	require.Equal(t, object.NewString("true"), result)
}

func TestIntConversions(t *testing.T) {
	ctx := context.Background()
	result, err := Int(ctx, object.NewFloat(3.9))
	require.Nil(t, err)
	require.Equal(t, object.NewInt(3), result)

	result, err = Int(ctx, object.NewString(" 12 "))
	require.Nil(t, err)
	require.Equal(t, object.NewInt(12), result)

	_, err = Int(ctx, object.NewString("twelve"))
	require.NotNil(t, err)
}

func TestFloatConversions(t *testing.T) {
	ctx := context.Background()
	result, err := Float(ctx, object.NewInt(2))
	require.Nil(t, err)
	require.Equal(t, object.NewFloat(2.0), result)

	result, err = Float(ctx, object.NewString("2.5"))
	require.Nil(t, err)
	require.Equal(t, object.NewFloat(2.5), result)
}

func TestAbs(t *testing.T) {
	ctx := context.Background()
	result, err := Abs(ctx, object.NewInt(-4))
	require.Nil(t, err)
	require.Equal(t, object.NewInt(4), result)

	result, err = Abs(ctx, object.NewFloat(-1.5))
	require.Nil(t, err)
	require.Equal(t, object.NewFloat(1.5), result)
}

func TestSum(t *testing.T) {
	ctx := context.Background()
	result, err := Sum(ctx, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2), object.NewInt(3),
	}))
	require.Nil(t, err)
	require.Equal(t, object.NewInt(6), result)

	result, err = Sum(ctx, object.NewList([]object.Object{
		object.NewInt(1), object.NewFloat(0.5),
	}))
	require.Nil(t, err)
	require.Equal(t, object.NewFloat(1.5), result)
}

func TestSorted(t *testing.T) {
	ctx := context.Background()
	result, err := Sorted(ctx, object.NewList([]object.Object{
		object.NewInt(3), object.NewInt(1), object.NewInt(2),
	}))
	require.Nil(t, err)
	require.Equal(t, object.NewList([]object.Object{
		object.NewInt(1), object.NewInt(2), object.NewInt(3),
	}), result)
}

func TestMinMax(t *testing.T) {
	ctx := context.Background()
	items := object.NewList([]object.Object{
		object.NewInt(3), object.NewInt(1), object.NewInt(2),
	})
	result, err := Min(ctx, items)
	require.Nil(t, err)
	require.Equal(t, object.NewInt(1), result)

	result, err = Max(ctx, items)
	require.Nil(t, err)
	require.Equal(t, object.NewInt(3), result)

	_, err = Min(ctx, object.NewList(nil))
	require.NotNil(t, err)
}

func TestErrorFn(t *testing.T) {
	ctx := context.Background()
	result, err := ErrorFn(ctx, object.NewString("boom"))
	require.Nil(t, err)
	e, ok := result.(*object.Error)
	require.True(t, ok)
	require.Equal(t, "boom", e.Message())

	result, err = ErrorFn(ctx, object.NewString("code %d"), object.NewInt(7))
	require.Nil(t, err)
	require.Equal(t, "code 7", result.(*object.Error).Message())
}

func TestPrintTo(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	print := PrintTo(&buf)
	result, err := print(ctx, object.NewString("a"), object.NewInt(1))
	require.Nil(t, err)
	require.Equal(t, object.Nil, result)
	require.Equal(t, "a 1\n", buf.String())
}

func TestBuiltinsMap(t *testing.T) {
	m := Builtins()
	for _, name := range []string{
		"abs", "bool", "error", "float", "int", "len", "max", "min",
		"print", "range", "sorted", "str", "sum", "type",
	} {
		builtin, ok := m[name]
		require.True(t, ok, name)
		require.Equal(t, object.BUILTIN, builtin.Type())
	}
}

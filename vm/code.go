package vm

import (
	"fmt"

	"github.com/pyrite-lang/pyrite/compiler"
	"github.com/pyrite-lang/pyrite/object"
)

// cacheSlot is one inline cache entry for a LoadGlobal site. A slot is
// valid while its version matches the VM's globals version; any StoreGlobal
// invalidates every slot at once by bumping that version.
type cacheSlot struct {
	version uint64
	ref     *object.Ref
	hits    uint64
}

// loadedCode wraps an immutable compiled code unit with its constants
// converted to runtime values, ready for execution. Loading happens once
// per code unit per VM; the result is cached.
type loadedCode struct {
	*compiler.Code
	Instructions []compiler.Instruction
	Constants    []object.Object
	Names        []string
	Sites        []compiler.MethodCallSite
	RegisterFile int

	// Inline caches for the code's LoadGlobal sites. Shared by every
	// frame executing this code, which is safe because validity is
	// checked against the VM-wide globals version.
	caches []cacheSlot
}

func wrapCode(cc *compiler.Code) (*loadedCode, error) {
	c := &loadedCode{
		Code:         cc,
		Instructions: make([]compiler.Instruction, cc.InstructionCount()),
		Constants:    make([]object.Object, cc.ConstantsCount()),
		Names:        make([]string, cc.NameCount()),
		Sites:        make([]compiler.MethodCallSite, cc.MethodSiteCount()),
		RegisterFile: cc.Registers(),
		caches:       make([]cacheSlot, cc.CacheSlots()),
	}
	for i := 0; i < cc.InstructionCount(); i++ {
		c.Instructions[i] = cc.Instruction(i)
	}
	for i := 0; i < cc.NameCount(); i++ {
		c.Names[i] = cc.Name(i)
	}
	for i := 0; i < cc.MethodSiteCount(); i++ {
		c.Sites[i] = cc.MethodSite(i)
	}
	for i := 0; i < cc.ConstantsCount(); i++ {
		obj, err := convertConstant(cc.Constant(i))
		if err != nil {
			return nil, err
		}
		c.Constants[i] = obj
	}
	return c, nil
}

// convertConstant translates a compiler constant into a runtime value.
func convertConstant(constant any) (object.Object, error) {
	switch constant := constant.(type) {
	case nil:
		return object.Nil, nil
	case bool:
		return object.NewBool(constant), nil
	case int64:
		return object.NewInt(constant), nil
	case float64:
		return object.NewFloat(constant), nil
	case string:
		return object.NewString(constant), nil
	case []any:
		// Key tuples from mapping patterns
		items := make([]object.Object, len(constant))
		for i, item := range constant {
			obj, err := convertConstant(item)
			if err != nil {
				return nil, err
			}
			items[i] = obj
		}
		return object.NewTuple(items), nil
	case *compiler.Function:
		return object.NewFunction(constant), nil
	case *compiler.Class:
		return object.NewClass(constant), nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", constant)
	}
}

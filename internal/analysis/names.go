// Package analysis holds naming helpers shared by the Go frontend.
package analysis

import (
	"go/types"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/tools/go/ssa"

	"github.com/715d/ptafilter/pkg/mir"
)

// NameCache provides efficient caching of function identities and type
// spellings. It is safe for concurrent use by lowering workers.
type NameCache struct {
	funcCache *xsync.Map[*ssa.Function, mir.FuncID]
	typeCache *xsync.Map[types.Type, mir.Type]
}

func NewNameCache() *NameCache {
	return &NameCache{
		funcCache: xsync.NewMap[*ssa.Function, mir.FuncID](),
		typeCache: xsync.NewMap[types.Type, mir.Type](),
	}
}

// FuncID returns the identity of fn.
//
// Package-level functions are "path.Name", methods "(path.T).M" or
// "(*path.T).M", anonymous functions take their parent's identity plus "$N",
// and instances append their type arguments: "path.Map[int, string]".
func (c *NameCache) FuncID(fn *ssa.Function) mir.FuncID {
	if fn == nil {
		return ""
	}
	if id, ok := c.funcCache.Load(fn); ok {
		return id
	}
	id := c.computeFuncID(fn)
	c.funcCache.Store(fn, id)
	return id
}

// Type returns the mir rendering of typ. Packages are spelled by name, so
// unsafe.Pointer reads as in source.
func (c *NameCache) Type(typ types.Type) mir.Type {
	if typ == nil {
		return mir.UnitType
	}
	if t, ok := c.typeCache.Load(typ); ok {
		return t
	}
	t := mir.Type{Kind: kindOf(typ), Name: TypeName(typ)}
	c.typeCache.Store(typ, t)
	return t
}

// TypeArgs renders a list of type arguments.
func (c *NameCache) TypeArgs(targs []types.Type) []mir.Type {
	if len(targs) == 0 {
		return nil
	}
	out := make([]mir.Type, len(targs))
	for i, t := range targs {
		out[i] = c.Type(t)
	}
	return out
}

func (c *NameCache) computeFuncID(fn *ssa.Function) mir.FuncID {
	if origin := fn.Origin(); origin != nil && origin != fn {
		var builder strings.Builder
		builder.WriteString(string(c.FuncID(origin)))
		builder.WriteByte('[')
		for i, t := range fn.TypeArgs() {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString(TypeName(t))
		}
		builder.WriteByte(']')
		return mir.FuncID(builder.String())
	}

	if parent := fn.Parent(); parent != nil {
		// Anonymous functions are named after their enclosing function.
		name := fn.Name()
		if i := strings.LastIndexByte(name, '$'); i >= 0 {
			name = name[i+1:]
		}
		return mir.FuncID(string(c.FuncID(parent)) + "$" + name)
	}

	obj, ok := fn.Object().(*types.Func)
	if !ok || obj == nil {
		// Synthetic wrappers and package initializers.
		return mir.FuncID(fn.String())
	}

	var builder strings.Builder
	builder.Grow(64)
	if recv := obj.Type().(*types.Signature).Recv(); recv != nil {
		builder.WriteByte('(')
		recvType := recv.Type()
		if ptr, ok := recvType.(*types.Pointer); ok {
			builder.WriteByte('*')
			recvType = ptr.Elem()
		}
		builder.WriteString(qualifiedName(recvType))
		builder.WriteString(").")
		builder.WriteString(obj.Name())
		return mir.FuncID(builder.String())
	}

	if pkg := obj.Pkg(); pkg != nil {
		builder.WriteString(pkg.Path())
		builder.WriteByte('.')
	}
	builder.WriteString(obj.Name())
	return mir.FuncID(builder.String())
}

// qualifiedName spells a receiver base type with its full package path and
// its type parameters, e.g. "example.com/p.Box[T]".
func qualifiedName(typ types.Type) string {
	named, ok := typ.(*types.Named)
	if !ok {
		return typ.String()
	}
	var builder strings.Builder
	if pkg := named.Obj().Pkg(); pkg != nil {
		builder.WriteString(pkg.Path())
		builder.WriteByte('.')
	}
	builder.WriteString(named.Obj().Name())
	formatTypeParamsToBuilder(&builder, named.TypeParams())
	return builder.String()
}

// TypeName spells typ with package names instead of paths.
func TypeName(typ types.Type) string {
	return types.TypeString(typ, func(p *types.Package) string { return p.Name() })
}

// formatTypeParamsToBuilder writes type parameters to an existing builder
func formatTypeParamsToBuilder(builder *strings.Builder, typeParams *types.TypeParamList) {
	if typeParams == nil || typeParams.Len() == 0 {
		return
	}
	builder.WriteByte('[')
	for i := range typeParams.Len() {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(typeParams.At(i).Obj().Name())
	}
	builder.WriteByte(']')
}

func kindOf(typ types.Type) mir.TypeKind {
	if _, ok := typ.(*types.TypeParam); ok {
		return mir.KindTypeParam
	}
	switch u := typ.Underlying().(type) {
	case *types.Basic:
		info := u.Info()
		switch {
		case u.Kind() == types.UnsafePointer:
			return mir.KindUnsafePointer
		case info&types.IsBoolean != 0:
			return mir.KindBool
		case info&types.IsUnsigned != 0:
			return mir.KindUint
		case info&types.IsInteger != 0:
			return mir.KindInt
		case info&types.IsFloat != 0:
			return mir.KindFloat
		case info&types.IsComplex != 0:
			return mir.KindComplex
		case info&types.IsString != 0:
			return mir.KindString
		}
	case *types.Pointer:
		return mir.KindPointer
	case *types.Slice:
		return mir.KindSlice
	case *types.Array:
		return mir.KindArray
	case *types.Map:
		return mir.KindMap
	case *types.Chan:
		return mir.KindChan
	case *types.Signature:
		return mir.KindFunc
	case *types.Interface:
		return mir.KindInterface
	case *types.Struct:
		return mir.KindStruct
	case *types.Tuple:
		if u.Len() == 0 {
			return mir.KindUnit
		}
		return mir.KindTuple
	}
	return mir.KindOpaque
}

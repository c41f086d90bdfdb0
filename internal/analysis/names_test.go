package analysis

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/715d/ptafilter/pkg/mir"
)

const namesSource = `package p

type T struct{ n int }

func (t *T) Ptr() int { return t.n }

func (t T) Val() int { return t.n }

type Box[E any] struct{ v E }

func (b *Box[E]) Get() E { return b.v }

func Map[K comparable, V any](m map[K]V) int { return len(m) }

func outer() func() func() int {
	return func() func() int {
		return func() int { return 1 }
	}
}

func use() int {
	var b Box[string]
	_ = b.Get()
	return Map(map[string]int{})
}
`

func buildSSA(t *testing.T) *ssa.Package {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", namesSource, parser.ParseComments)
	require.NoError(t, err)
	pkg, _, err := ssautil.BuildPackage(
		&types.Config{Importer: importer.Default()},
		fset,
		types.NewPackage("example.com/p", "p"),
		[]*ast.File{f},
		ssa.InstantiateGenerics,
	)
	require.NoError(t, err)
	return pkg
}

func method(t *testing.T, pkg *ssa.Package, typ, name string) *ssa.Function {
	t.Helper()
	named := pkg.Pkg.Scope().Lookup(typ).Type().(*types.Named)
	for i := range named.NumMethods() {
		if m := named.Method(i); m.Name() == name {
			fn := pkg.Prog.FuncValue(m)
			require.NotNil(t, fn)
			return fn
		}
	}
	t.Fatalf("no method %s.%s", typ, name)
	return nil
}

func TestFuncID(t *testing.T) {
	pkg := buildSSA(t)
	c := NewNameCache()

	require.Equal(t, mir.FuncID("example.com/p.use"), c.FuncID(pkg.Func("use")))
	require.Equal(t, mir.FuncID("(*example.com/p.T).Ptr"), c.FuncID(method(t, pkg, "T", "Ptr")))
	require.Equal(t, mir.FuncID("(example.com/p.T).Val"), c.FuncID(method(t, pkg, "T", "Val")))
	require.Equal(t, mir.FuncID("(*example.com/p.Box[E]).Get"), c.FuncID(method(t, pkg, "Box", "Get")))
	require.Equal(t, mir.FuncID("example.com/p.Map"), c.FuncID(pkg.Func("Map")))

	outer := pkg.Func("outer")
	require.Len(t, outer.AnonFuncs, 1)
	lit := outer.AnonFuncs[0]
	require.Equal(t, mir.FuncID("example.com/p.outer$1"), c.FuncID(lit))
	require.Len(t, lit.AnonFuncs, 1)
	require.Equal(t, mir.FuncID("example.com/p.outer$1$1"), c.FuncID(lit.AnonFuncs[0]))

	var instance *ssa.Function
	for fn := range ssautil.AllFunctions(pkg.Prog) {
		if fn.Origin() == pkg.Func("Map") && fn != pkg.Func("Map") {
			instance = fn
		}
	}
	require.NotNil(t, instance)
	require.Equal(t, mir.FuncID("example.com/p.Map[string, int]"), c.FuncID(instance))

	require.Empty(t, c.FuncID(nil))
}

func TestFuncIDConcurrent(t *testing.T) {
	pkg := buildSSA(t)
	c := NewNameCache()
	fn := method(t, pkg, "T", "Ptr")

	var wg sync.WaitGroup
	ids := make([]mir.FuncID, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = c.FuncID(fn)
		}()
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, mir.FuncID("(*example.com/p.T).Ptr"), id)
	}
}

func TestType(t *testing.T) {
	c := NewNameCache()
	pkg := types.NewPackage("example.com/p", "p")
	named := types.NewNamed(types.NewTypeName(token.NoPos, pkg, "T", nil), types.NewStruct(nil, nil), nil)
	tparam := types.NewTypeParam(types.NewTypeName(token.NoPos, pkg, "E", nil), types.NewInterfaceType(nil, nil))

	tests := []struct {
		name string
		typ  types.Type
		want mir.Type
	}{
		{"string", types.Typ[types.String], mir.Type{Kind: mir.KindString, Name: "string"}},
		{"int", types.Typ[types.Int], mir.Type{Kind: mir.KindInt, Name: "int"}},
		{"uintptr", types.Typ[types.Uintptr], mir.Type{Kind: mir.KindUint, Name: "uintptr"}},
		{"bool", types.Typ[types.Bool], mir.Type{Kind: mir.KindBool, Name: "bool"}},
		{"float", types.Typ[types.Float64], mir.Type{Kind: mir.KindFloat, Name: "float64"}},
		{"unsafe pointer", types.Typ[types.UnsafePointer], mir.Type{Kind: mir.KindUnsafePointer, Name: "unsafe.Pointer"}},
		{"pointer", types.NewPointer(types.Typ[types.Int]), mir.Type{Kind: mir.KindPointer, Name: "*int"}},
		{"slice", types.NewSlice(types.Typ[types.Uint8]), mir.Type{Kind: mir.KindSlice, Name: "[]uint8"}},
		{"map", types.NewMap(types.Typ[types.String], types.Typ[types.Int]), mir.Type{Kind: mir.KindMap, Name: "map[string]int"}},
		{"named struct", named, mir.Type{Kind: mir.KindStruct, Name: "p.T"}},
		{"pointer to named", types.NewPointer(named), mir.Type{Kind: mir.KindPointer, Name: "*p.T"}},
		{"type param", tparam, mir.Type{Kind: mir.KindTypeParam, Name: "E"}},
		{"empty tuple", types.NewTuple(), mir.Type{Kind: mir.KindUnit, Name: "()"}},
		{"nil", nil, mir.UnitType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, c.Type(tt.typ))
			require.Equal(t, tt.want, c.Type(tt.typ), "cached")
		})
	}

	require.Nil(t, c.TypeArgs(nil))
	require.Equal(t, []mir.Type{{Kind: mir.KindInt, Name: "int"}}, c.TypeArgs([]types.Type{types.Typ[types.Int]}))
}

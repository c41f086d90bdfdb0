package gofront

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"

	"github.com/715d/ptafilter/internal/scope"
	"github.com/715d/ptafilter/pkg/mir"
	"github.com/715d/ptafilter/pkg/ptafilter"
	"github.com/715d/ptafilter/pkg/resolve"
)

const source = `package p

import "unsafe"

func sink(p *int, v int) {}

func safeAdd(a, b int) int { return a + b }

//ptafilter:unsafe
func raw(p *int) uintptr {
	return uintptr(unsafe.Pointer(p))
}

//go:nocheckptr
func nocheck(p *int) *int { return p }

func mixed(p *int, q *int) int {
	x := *q
	//ptafilter:unsafe
	{
		sink(p, x)
	}
	return x
}

func peek(p *int) int {
	if p != nil {
		u := unsafe.Pointer(p)
		return *(*int)(u)
	}
	return 0
}

func wrap(p *int) func() *int {
	//ptafilter:unsafe
	{
		return func() *int { return p }
	}
}

func id[T any](v T) T { return v }

func twice[T any](v T) T { return id(v) }

func useID() int { return id[int](3) + twice[int](4) }
`

// buildTestPackage type-checks src the way go/packages would.
func buildTestPackage(t *testing.T, src string) *packages.Package {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "p.go", src, parser.ParseComments)
	require.NoError(t, err)

	pkg := &packages.Package{
		ID:         "p",
		Name:       "p",
		PkgPath:    "p",
		Syntax:     []*ast.File{file},
		Fset:       fset,
		TypesSizes: types.SizesFor("gc", "amd64"),
	}
	conf := types.Config{Importer: importer.Default()}
	info := &types.Info{
		Types:        make(map[ast.Expr]types.TypeAndValue),
		Defs:         make(map[*ast.Ident]types.Object),
		Uses:         make(map[*ast.Ident]types.Object),
		Implicits:    make(map[ast.Node]types.Object),
		Instances:    make(map[*ast.Ident]types.Instance),
		Scopes:       make(map[ast.Node]*types.Scope),
		Selections:   make(map[*ast.SelectorExpr]*types.Selection),
		FileVersions: make(map[*ast.File]string),
	}
	pkg.TypesInfo = info
	pkg.Types, err = conf.Check("p", fset, []*ast.File{file}, info)
	require.NoError(t, err)
	return pkg
}

func buildTestProgram(t *testing.T, opts Options) *Program {
	t.Helper()
	prog, err := Build([]*packages.Package{buildTestPackage(t, source)}, opts)
	require.NoError(t, err)
	return prog
}

func body(t *testing.T, prog *Program, fn mir.FuncID) *mir.Body {
	t.Helper()
	b, ok := prog.MirProgram().Lookup(fn)
	require.True(t, ok, "no body for %s", fn)
	return b
}

func unsafeCount(b *mir.Body) (unsafe, total int) {
	for _, inst := range b.Instructions() {
		total++
		if scope.IsUnsafe(b, inst) {
			unsafe++
		}
	}
	return unsafe, total
}

func TestBuildBodies(t *testing.T) {
	prog := buildTestProgram(t, Options{})

	for _, fn := range []mir.FuncID{"p.sink", "p.safeAdd", "p.raw", "p.mixed", "p.peek", "p.wrap", "p.wrap$1", "p.id", "p.id[T]", "p.id[int]", "p.twice", "p.twice[int]", "p.useID"} {
		b := body(t, prog, fn)
		require.NoError(t, b.Validate(), fn)
	}

	var prev mir.FuncID
	for _, b := range prog.Bodies {
		require.Less(t, string(prev), string(b.Func), "bodies are sorted")
		prev = b.Func
	}

	add := body(t, prog, "p.safeAdd")
	require.Equal(t, 2, add.ArgCount)
	require.Equal(t, "a", add.Locals[1].Name)
	require.Equal(t, mir.KindInt, add.Locals[0].Ty.Kind)

	closure := body(t, prog, "p.wrap$1")
	require.Equal(t, 1, closure.ArgCount, "free variables are arguments")
	require.Equal(t, mir.KindPointer, closure.Locals[1].Ty.Kind)
	require.Equal(t, []mir.FuncID{"p.wrap$1"}, prog.Closures())
	require.True(t, prog.IsClosure("p.wrap$1"))
	require.False(t, prog.IsClosure("p.wrap"))
}

func TestScopeSafety(t *testing.T) {
	prog := buildTestProgram(t, Options{})

	tests := []struct {
		fn   mir.FuncID
		want string
	}{
		{fn: "p.safeAdd", want: "none"},
		{fn: "p.raw", want: "all"},
		{fn: "p.nocheck", want: "all"},
		{fn: "p.wrap$1", want: "all"},
		{fn: "p.mixed", want: "some"},
		{fn: "p.peek", want: "none"},
	}
	for _, tt := range tests {
		t.Run(string(tt.fn), func(t *testing.T) {
			b := body(t, prog, tt.fn)
			unsafe, total := unsafeCount(b)
			require.Positive(t, total)
			switch tt.want {
			case "none":
				require.Zero(t, unsafe)
			case "all":
				require.Equal(t, total, unsafe)
			case "some":
				require.Positive(t, unsafe)
				require.Less(t, unsafe, total)
			}
		})
	}
}

func TestUnsafePackageScopes(t *testing.T) {
	prog := buildTestProgram(t, Options{UnsafePackageScopes: true})

	b := body(t, prog, "p.peek")
	require.Equal(t, mir.SafetySafe, b.Scopes[mir.OutermostScope].Safety)
	unsafe, total := unsafeCount(b)
	require.Positive(t, unsafe)
	require.Less(t, unsafe, total, "the nil check stays outside the unsafe block")

	add := body(t, prog, "p.safeAdd")
	unsafe, _ = unsafeCount(add)
	require.Zero(t, unsafe)
}

func TestFilterLoweredBody(t *testing.T) {
	prog := buildTestProgram(t, Options{})
	b := body(t, prog, "p.mixed")

	st := ptafilter.Pass{}.Run(b)
	require.Positive(t, st.Unsafe)
	require.Positive(t, st.FlaggedLocals)

	// sink(p, x) sits in the unsafe block; q is only read outside it.
	assert.False(t, b.Locals[1].Safe, "p is passed to sink")
	assert.True(t, b.Locals[2].Safe, "q is never touched by unsafe code")
}

func TestResolveInstances(t *testing.T) {
	prog := buildTestProgram(t, Options{})
	r := resolve.NewResolver(prog)

	targets := map[mir.FuncID]bool{}
	use := body(t, prog, "p.useID")
	for _, loc := range use.CallSites() {
		term := use.Terminator(loc.Block)
		id, ok := r.Resolve(prog, term)
		if ok {
			targets[id] = true
		}
	}
	require.True(t, targets["p.id[int]"], "got %v", targets)
	require.True(t, targets["p.twice[int]"], "got %v", targets)

	// Within the generic body the call goes through the instantiation wrapper
	// id[T], which devirtualizes to the generic origin.
	tw := body(t, prog, "p.twice")
	sites := tw.CallSites()
	require.Len(t, sites, 1)
	callee, ok := resolve.Callee(tw.Terminator(sites[0].Block))
	require.True(t, ok)
	require.Equal(t, mir.FuncID("p.id"), callee.Func)
	require.Equal(t, []mir.Type{{Kind: mir.KindTypeParam, Name: "T"}}, callee.Args)
	id, ok := r.Resolve(prog, tw.Terminator(sites[0].Block))
	require.True(t, ok)
	require.Equal(t, mir.FuncID("p.id"), id)

	wrapper, err := prog.ResolveInstance(prog, "p.id", callee.Args)
	require.NoError(t, err)
	require.NotNil(t, wrapper)
	require.Equal(t, mir.FuncID("p.id[T]"), wrapper.ID())
	require.Equal(t, mir.FuncID("p.id"), wrapper.Devirtualize(prog).ID())

	// The instance body calls the concrete instance.
	twInt := body(t, prog, "p.twice[int]")
	intSites := twInt.CallSites()
	require.Len(t, intSites, 1)
	id, ok = r.Resolve(prog, twInt.Terminator(intSites[0].Block))
	require.True(t, ok)
	require.Equal(t, mir.FuncID("p.id[int]"), id)

	inst, err := prog.ResolveInstance(prog, "p.id", []mir.Type{{Kind: mir.KindInt, Name: "int"}})
	require.NoError(t, err)
	require.NotNil(t, inst)
	require.Equal(t, mir.FuncID("p.id[int]"), inst.ID())
	require.Same(t, inst, inst.Devirtualize(prog))

	missing, err := prog.ResolveInstance(prog, "p.id", []mir.Type{{Kind: mir.KindString, Name: "string"}})
	require.NoError(t, err)
	require.Nil(t, missing)
}

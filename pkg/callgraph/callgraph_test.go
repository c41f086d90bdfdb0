package callgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/ptafilter/pkg/callsite"
	"github.com/715d/ptafilter/pkg/mir"
)

type staticResolver struct{}

func (staticResolver) Resolve(t *mir.Terminator) (mir.FuncID, bool) {
	call, _ := t.Call()
	fn, ok := call.Func.FnDef()
	return fn.Func, ok
}

// body builds fn calling each callee in order. An empty callee is a dynamic
// call through local _1.
func body(t *testing.T, fn mir.FuncID, callees ...mir.FuncID) *mir.Body {
	t.Helper()
	b := mir.NewBuilder(fn, mir.UnitType)
	f := b.AddArg("f", mir.ParseType("func()"))
	for _, callee := range callees {
		op := mir.FnOperand(callee)
		if callee == "" {
			op = mir.Copy(mir.LocalPlace(f))
		}
		b.Call(op, nil, mir.LocalPlace(mir.ReturnPlace))
	}
	b.Terminate(&mir.Return{})
	out, err := b.Finish()
	require.NoError(t, err)
	return out
}

func sample(t *testing.T) *Graph {
	reg := callsite.NewRegistry()
	bodies := []*mir.Body{
		body(t, "main", "a", "c", "", "a"),
		body(t, "a", "b"),
		body(t, "b", "a", "leaf"),
		body(t, "c", "c"),
		body(t, "unused"),
	}
	arenas := make([]*callsite.Arena, len(bodies))
	for i, b := range bodies {
		arenas[i] = reg.Register(b)
	}
	return Build(arenas, staticResolver{})
}

func TestBuild(t *testing.T) {
	g := sample(t)

	require.Equal(t, []mir.FuncID{"a", "b", "c", "leaf", "main", "unused"}, g.Funcs())
	require.Equal(t, 6, g.Order())
	require.Equal(t, 1, g.Dynamic())
	require.Len(t, g.Edges(), 7)
	require.True(t, g.HasBody("main"))
	require.False(t, g.HasBody("leaf"))

	require.Equal(t, []mir.FuncID{"a", "c"}, g.Callees("main"))
	require.Equal(t, []mir.FuncID{"a", "leaf"}, g.Callees("b"))
	require.Empty(t, g.Callees("leaf"))
	require.Nil(t, g.Callees("missing"))

	var mainToA []callsite.Handle
	for _, e := range g.Edges() {
		if e.Caller == "main" && e.Callee == "a" {
			mainToA = append(mainToA, e.Handle)
		}
	}
	require.Len(t, mainToA, 2)
	require.NotEqual(t, mainToA[0], mainToA[1])
}

func TestReachable(t *testing.T) {
	g := sample(t)
	require.Equal(t, []mir.FuncID{"a", "b", "c", "leaf", "main"}, g.Reachable("main"))
	require.Equal(t, []mir.FuncID{"a", "b", "leaf"}, g.Reachable("b"))
	require.Equal(t, []mir.FuncID{"c", "unused"}, g.Reachable("unused", "c", "nope"))
}

func TestBottomUp(t *testing.T) {
	g := sample(t)
	order := g.BottomUp()

	pos := map[mir.FuncID]int{}
	for i, scc := range order {
		for _, fn := range scc {
			pos[fn] = i
		}
	}
	require.Len(t, pos, 6)
	require.Equal(t, pos["a"], pos["b"], "a and b are mutually recursive")
	require.Less(t, pos["leaf"], pos["b"])
	require.Less(t, pos["a"], pos["main"])
	require.Less(t, pos["c"], pos["main"])
}

func TestCycles(t *testing.T) {
	g := sample(t)
	require.Equal(t, [][]mir.FuncID{{"a", "b"}, {"c"}}, g.Cycles())
	require.Equal(t, [][]mir.FuncID{{"a", "b"}}, g.ElementaryCycles())
}

package ptafilter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/ptafilter/pkg/mir"
)

// callBody builds
//
//	fn f(_1: *int, _2: *int) -> ()
//	scope 1 (unsafe)
//	bb0: _3 = const 1          (scope 0)
//	     _4 = &_1              (scope 1)
//	     _5 = const 2          (scope 1)
//	     _6 = g(copy _1, move _2) -> bb1   (scope 1)
//	bb1: return                (scope 0)
func callBody(t *testing.T) *mir.Body {
	t.Helper()
	b := mir.NewBuilder("f", mir.UnitType)
	p := b.AddArg("p", mir.ParseType("*int"))
	q := b.AddArg("q", mir.ParseType("*int"))
	x := b.AddLocal("x", mir.ParseType("int"))
	r := b.AddLocal("r", mir.ParseType("**int"))
	y := b.AddLocal("y", mir.ParseType("int"))
	d := b.AddLocal("d", mir.ParseType("*int"))
	unsafe := b.AddScope(mir.OutermostScope, mir.SafetyUnsafe)

	one := mir.Const(&mir.Constant{Ty: mir.ParseType("int"), Value: "1"})
	two := mir.Const(&mir.Constant{Ty: mir.ParseType("int"), Value: "2"})
	b.Assign(mir.LocalPlace(x), &mir.Use{Operand: one})
	b.SetScope(unsafe)
	b.Assign(mir.LocalPlace(r), &mir.Ref{Place: mir.LocalPlace(p)})
	b.Assign(mir.LocalPlace(y), &mir.Use{Operand: two})
	b.Call(mir.FnOperand("g"), []mir.Operand{mir.Copy(mir.LocalPlace(p)), mir.Move(mir.LocalPlace(q))}, mir.LocalPlace(d))
	b.SetScope(mir.OutermostScope)
	b.Terminate(&mir.Return{})
	body, err := b.Finish()
	require.NoError(t, err)
	return body
}

func safeFlags(body *mir.Body) []bool {
	out := make([]bool, len(body.Locals))
	for i, l := range body.Locals {
		out[i] = l.Safe
	}
	return out
}

func TestClassify(t *testing.T) {
	body := callBody(t)
	var p Pass
	m := p.Classify(body)

	require.False(t, m.Marked(mir.Location{Block: 0, Index: 0}))
	require.True(t, m.Marked(mir.Location{Block: 0, Index: 1}))
	require.True(t, m.Marked(mir.Location{Block: 0, Index: 2}))
	require.True(t, m.Marked(mir.Location{Block: 0, Index: 3}))
	require.False(t, m.Marked(mir.Location{Block: 1, Index: 0}))
	require.False(t, m.Marked(mir.Location{Block: 7, Index: 0}))
	require.Equal(t, 3, m.Len())
}

func TestMarkedOutOfRange(t *testing.T) {
	body := callBody(t)
	m := Pass{}.Classify(body)

	tests := []struct {
		name string
		loc  mir.Location
	}{
		{name: "past the terminator", loc: mir.Location{Block: 0, Index: 4}},
		{name: "negative index", loc: mir.Location{Block: 1, Index: -1}},
		{name: "past the last block", loc: mir.Location{Block: 1, Index: 1}},
		{name: "unknown block", loc: mir.Location{Block: 2, Index: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.False(t, m.Marked(tt.loc), "must not read a neighbouring block")
		})
	}
	require.True(t, m.Marked(mir.Location{Block: 0, Index: 3}))
}

func TestClassifyIdempotent(t *testing.T) {
	body := callBody(t)
	var p Pass
	first := p.Classify(body)
	second := p.Classify(body)
	require.True(t, first.Equal(second))
}

func TestFilter(t *testing.T) {
	body := callBody(t)
	var p Pass
	st := p.Run(body)

	// _0 ret, _1 p, _2 q, _3 x, _4 r, _5 y, _6 d
	require.Equal(t, []bool{true, false, false, true, true, false, false}, safeFlags(body))

	require.Equal(t, 5, st.Instructions)
	require.Equal(t, 3, st.Unsafe)
	require.Equal(t, 2, st.Selective)
	require.Equal(t, 1, st.Indeterminate)
	require.Equal(t, 4, st.FlaggedLocals)
	require.Equal(t, 1, st.UnsafeByKind["assign.ref"])
	require.Zero(t, st.SelectiveByKind["assign.ref"])
	require.Equal(t, 1, st.SelectiveByKind["call"])
	require.Equal(t, 1, st.TotalByKind["return"])
}

func TestFilterSkipsUnmarked(t *testing.T) {
	body := callBody(t)
	var p Pass
	marks := newMarks(body)
	st := p.Filter(body, marks)

	for i, safe := range safeFlags(body) {
		require.True(t, safe, "local %d", i)
	}
	require.Zero(t, st.Unsafe)
	require.Zero(t, st.Selective)
	require.Equal(t, 5, st.Instructions)
}

func TestFilterMonotonic(t *testing.T) {
	body := callBody(t)
	var p Pass
	p.Run(body)
	before := safeFlags(body)

	// A second run over the same body may only clear more flags.
	st := p.Run(body)
	after := safeFlags(body)
	for i := range before {
		if !before[i] {
			require.False(t, after[i], "local %d went back to safe", i)
		}
	}
	require.Zero(t, st.FlaggedLocals)
}

func TestFilterIndeterminateLeavesFlags(t *testing.T) {
	b := mir.NewBuilder("f", mir.UnitType)
	p := b.AddArg("p", mir.ParseType("*int"))
	r := b.AddLocal("r", mir.ParseType("**int"))
	b.SetScope(b.AddScope(mir.OutermostScope, mir.SafetyUnsafe))
	b.Assign(mir.LocalPlace(r), &mir.AddressOf{Place: mir.LocalPlace(p)})
	b.Terminate(&mir.Return{})
	body, err := b.Finish()
	require.NoError(t, err)

	var pass Pass
	st := pass.Run(body)
	require.Equal(t, []bool{true, true, true}, safeFlags(body))
	require.Equal(t, 2, st.Unsafe)
	require.Equal(t, 1, st.Indeterminate)
	require.Equal(t, 1, st.Selective)
}

func TestEnabled(t *testing.T) {
	var p Pass
	require.False(t, p.Enabled(-1))
	require.False(t, p.Enabled(MinOptLevel))
	require.True(t, p.Enabled(MinOptLevel+1))
	require.True(t, p.Enabled(3))
}

func TestStatsAdd(t *testing.T) {
	var total Stats
	total.Add(Stats{Instructions: 2, Unsafe: 1, TotalByKind: map[string]int{"call": 2}})
	total.Add(Stats{Instructions: 3, Selective: 1, TotalByKind: map[string]int{"call": 1, "return": 1}})
	require.Equal(t, 5, total.Instructions)
	require.Equal(t, 1, total.Unsafe)
	require.Equal(t, 1, total.Selective)
	require.Equal(t, map[string]int{"call": 3, "return": 1}, total.TotalByKind)
	require.Nil(t, total.UnsafeByKind)

	out := total.Report()
	require.Contains(t, out, "call")
	require.Contains(t, out, "indeterminate: 0, flagged locals: 0")
}

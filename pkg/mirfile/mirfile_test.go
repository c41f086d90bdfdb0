package mirfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/ptafilter/pkg/mir"
	"github.com/715d/ptafilter/pkg/resolve"
)

const sample = `
closures: [main.func1]
instances:
  - generic: id
    args: [int]
    instance: "id[int]"
  - generic: wrap
    args: ["*int"]
    instance: "wrap[*int]"
    devirtualized: wrap
  - generic: broken
    args: [string]
    error: ambiguous
bodies:
  - func: main
    arg_count: 1
    scopes:
      - {safety: safe}
      - {parent: 0, safety: unsafe}
      - {safety: inherit}
    locals:
      - {name: ret, type: "()"}
      - {name: p, type: "*int"}
      - {name: x, type: int}
      - {name: r, type: "**int", safe: false}
    blocks:
      - statements:
          - {kind: storage_live, local: 2}
          - {kind: assign, scope: 1, place: _2, rvalue: {use: "copy (*_1)"}}
          - {kind: assign, scope: 1, place: _3, rvalue: {ref: _1, mut: true}}
          - {kind: assign, place: _2, rvalue: {binary: Add, left: copy _2, right: "const 1: int"}}
          - {kind: nop}
        terminator:
          kind: call
          scope: 2
          func: fn id<int>
          args: [copy _1, "const 0"]
          destination: _2
          target: 1
      - terminator: {kind: switch_int, discr: copy _2, values: [0], targets: [2], otherwise: 2}
      - terminator: {kind: return}
`

func TestDecode(t *testing.T) {
	f, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Bodies, 1)

	b := f.Bodies[0]
	require.Equal(t, mir.FuncID("main"), b.Func)
	require.Equal(t, 1, b.ArgCount)
	require.Len(t, b.Scopes, 3)
	require.Equal(t, mir.NoScope, b.Scopes[0].Parent)
	require.Equal(t, mir.SafetyUnsafe, b.Scopes[1].Safety)
	require.Equal(t, mir.OutermostScope, b.Scopes[2].Parent)
	require.Equal(t, mir.SafetyInherit, b.Scopes[2].Safety)

	require.True(t, b.Locals[1].Safe)
	require.False(t, b.Locals[3].Safe)
	require.Equal(t, mir.KindPointer, b.Locals[1].Ty.Kind)
	require.Equal(t, mir.KindUnit, b.Locals[0].Ty.Kind)

	stmts := b.Blocks[0].Statements
	require.Len(t, stmts, 5)
	use := stmts[1].Kind.(*mir.Assign).Rvalue.(*mir.Use)
	require.Equal(t, "copy (*_1)", use.Operand.String())
	require.Equal(t, mir.ScopeID(1), stmts[1].Source.Scope)
	ref := stmts[2].Kind.(*mir.Assign).Rvalue.(*mir.Ref)
	require.True(t, ref.Mutable)
	bin := stmts[3].Kind.(*mir.Assign).Rvalue.(*mir.BinaryOp)
	require.Equal(t, "Add", bin.Op)
	require.Equal(t, "const 1: int", bin.Right.String())

	call, ok := b.Blocks[0].Terminator.Call()
	require.True(t, ok)
	fn, ok := call.Func.FnDef()
	require.True(t, ok)
	require.Equal(t, mir.FuncID("id"), fn.Func)
	require.Equal(t, []mir.Type{mir.ParseType("int")}, fn.Args)
	require.Len(t, call.Args, 2)
	require.Equal(t, mir.BlockID(1), *call.Target)
	require.Nil(t, call.Unwind)

	sw := b.Blocks[1].Terminator.Kind.(*mir.SwitchInt)
	require.Equal(t, []uint64{0}, sw.Values)
	require.Equal(t, []mir.BlockID{2}, sw.Targets)
}

func TestFileOracle(t *testing.T) {
	f, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	r := resolve.NewResolver(f)
	intT := mir.ParseType("int")

	require.True(t, f.IsClosure("main.func1"))
	require.False(t, f.IsClosure("main"))
	require.Equal(t, []mir.FuncID{"main.func1"}, f.Closures())

	tests := []struct {
		name string
		fn   mir.Operand
		want mir.FuncID
	}{
		{name: "listed instance", fn: mir.FnOperand("id", intT), want: "id[int]"},
		{name: "devirtualized", fn: mir.FnOperand("wrap", mir.ParseType("*int")), want: "wrap"},
		{name: "error falls back", fn: mir.FnOperand("broken", mir.ParseType("string")), want: "broken"},
		{name: "unlisted falls back", fn: mir.FnOperand("id", mir.ParseType("string")), want: "id"},
		{name: "closure", fn: mir.FnOperand("main.func1", intT), want: "main.func1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ResolveOperand(f, tt.fn)
			require.True(t, ok)
			require.Equal(t, tt.want, got)
		})
	}

	_, err = f.ResolveInstance(f, "broken", []mir.Type{mir.ParseType("string")})
	require.EqualError(t, err, "ambiguous")
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "unknown key",
			input: "bodies:\n  - func: f\n    bogus: 1\n",
			want:  "field bogus not found",
		},
		{
			name:  "missing terminator",
			input: "bodies:\n  - func: f\n    locals: [{type: int}]\n    blocks:\n      - statements: [{kind: nop}]\n",
			want:  "body f: bb0: missing terminator",
		},
		{
			name:  "bad place",
			input: "bodies:\n  - func: f\n    locals: [{type: int}]\n    blocks:\n      - statements: [{kind: fake_read, place: x1}]\n        terminator: {kind: return}\n",
			want:  "body f: bb0: statement 0: place \"x1\"",
		},
		{
			name:  "unknown statement",
			input: "bodies:\n  - func: f\n    locals: [{type: int}]\n    blocks:\n      - statements: [{kind: jump}]\n        terminator: {kind: return}\n",
			want:  "unknown statement kind \"jump\"",
		},
		{
			name:  "invalid body",
			input: "bodies:\n  - func: f\n    locals: [{type: int}]\n    blocks:\n      - terminator: {kind: goto, target: 4}\n",
			want:  "invalid body",
		},
		{
			name:  "duplicate",
			input: "bodies:\n  - func: f\n    locals: [{type: int}]\n    blocks: [{terminator: {kind: return}}]\n  - func: f\n    locals: [{type: int}]\n    blocks: [{terminator: {kind: return}}]\n",
			want:  "duplicate function",
		},
		{
			name:  "bad safety",
			input: "bodies:\n  - func: f\n    scopes: [{safety: maybe}]\n    locals: [{type: int}]\n    blocks: [{terminator: {kind: return}}]\n",
			want:  "scope 0: unknown safety \"maybe\"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Decode(strings.NewReader("bodies:\n  - func: f\n    locals: [{type: int}]\n    blocks: [{terminator: {kind: goto, target: 4}}]\n"))
	require.True(t, errors.Is(err, mir.ErrInvalidBody))
}

func TestDecodeEmpty(t *testing.T) {
	f, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, f.Bodies)
	require.False(t, f.IsClosure("x"))
}

func TestEncodeRoundTrip(t *testing.T) {
	f, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, f.Bodies, []mir.FuncID{"main.func1"}))

	again, err := Decode(&buf)
	require.NoError(t, err)
	require.True(t, again.IsClosure("main.func1"))
	require.Len(t, again.Bodies, 1)

	var want, got bytes.Buffer
	require.NoError(t, mir.Fprint(&want, f.Bodies[0], nil))
	require.NoError(t, mir.Fprint(&got, again.Bodies[0], nil))
	require.Equal(t, want.String(), got.String())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "body.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Program().Bodies, 1)
	_, ok := f.Program().Lookup("main")
	require.True(t, ok)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

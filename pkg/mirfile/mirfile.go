// Package mirfile reads and writes function bodies in a YAML form.
//
// A file lists bodies together with the type context the resolver needs:
// which functions are closures and how generic functions instantiate.
//
//	closures: [main.func1]
//	instances:
//	  - generic: id
//	    args: [int]
//	    instance: id[int]
//	bodies:
//	  - func: main
//	    arg_count: 1
//	    scopes:
//	      - {safety: safe}
//	      - {parent: 0, safety: unsafe}
//	    locals:
//	      - {name: ret, type: "()"}
//	      - {name: p, type: "*int"}
//	    blocks:
//	      - statements:
//	          - {kind: assign, scope: 1, place: _0, rvalue: {use: copy _1}}
//	        terminator: {kind: return}
package mirfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/715d/ptafilter/pkg/mir"
	"github.com/715d/ptafilter/pkg/resolve"
)

type fileYAML struct {
	Closures  []string       `yaml:"closures,omitempty"`
	Instances []instanceYAML `yaml:"instances,omitempty"`
	Bodies    []bodyYAML     `yaml:"bodies"`
}

type instanceYAML struct {
	Generic       string   `yaml:"generic"`
	Args          []string `yaml:"args"`
	Instance      string   `yaml:"instance,omitempty"`
	Devirtualized string   `yaml:"devirtualized,omitempty"`
	Error         string   `yaml:"error,omitempty"`
}

type bodyYAML struct {
	Func     string      `yaml:"func"`
	ArgCount int         `yaml:"arg_count,omitempty"`
	Scopes   []scopeYAML `yaml:"scopes,omitempty"`
	Locals   []localYAML `yaml:"locals"`
	Blocks   []blockYAML `yaml:"blocks"`
}

type scopeYAML struct {
	Parent *uint32 `yaml:"parent,omitempty"`
	Safety string  `yaml:"safety,omitempty"`
}

type localYAML struct {
	Name string `yaml:"name,omitempty"`
	Type string `yaml:"type"`
	Safe *bool  `yaml:"safe,omitempty"`
}

type blockYAML struct {
	Statements []statementYAML `yaml:"statements,omitempty"`
	Terminator *terminatorYAML `yaml:"terminator"`
}

type statementYAML struct {
	Kind     string      `yaml:"kind"`
	Scope    uint32      `yaml:"scope,omitempty"`
	Place    string      `yaml:"place,omitempty"`
	Rvalue   *rvalueYAML `yaml:"rvalue,omitempty"`
	Local    *uint32     `yaml:"local,omitempty"`
	Variant  int         `yaml:"variant,omitempty"`
	Counter  int         `yaml:"counter,omitempty"`
	Op       string      `yaml:"op,omitempty"`
	Operands []string    `yaml:"operands,omitempty"`
}

type rvalueYAML struct {
	Use          string   `yaml:"use,omitempty"`
	Repeat       string   `yaml:"repeat,omitempty"`
	Count        uint64   `yaml:"count,omitempty"`
	Ref          string   `yaml:"ref,omitempty"`
	AddrOf       string   `yaml:"addr_of,omitempty"`
	Mut          bool     `yaml:"mut,omitempty"`
	Binary       string   `yaml:"binary,omitempty"`
	Unary        string   `yaml:"unary,omitempty"`
	Left         string   `yaml:"left,omitempty"`
	Right        string   `yaml:"right,omitempty"`
	Operand      string   `yaml:"operand,omitempty"`
	Cast         string   `yaml:"cast,omitempty"`
	Type         string   `yaml:"type,omitempty"`
	Aggregate    string   `yaml:"aggregate,omitempty"`
	Closure      string   `yaml:"closure,omitempty"`
	Operands     []string `yaml:"operands,omitempty"`
	Len          string   `yaml:"len,omitempty"`
	Discriminant string   `yaml:"discriminant,omitempty"`
	Nullary      string   `yaml:"nullary,omitempty"`
}

type terminatorYAML struct {
	Kind        string   `yaml:"kind"`
	Scope       uint32   `yaml:"scope,omitempty"`
	Func        string   `yaml:"func,omitempty"`
	Args        []string `yaml:"args,omitempty"`
	Destination string   `yaml:"destination,omitempty"`
	Target      *uint32  `yaml:"target,omitempty"`
	Unwind      *uint32  `yaml:"unwind,omitempty"`
	Discr       string   `yaml:"discr,omitempty"`
	Values      []uint64 `yaml:"values,omitempty"`
	Targets     []uint32 `yaml:"targets,omitempty"`
	Otherwise   uint32   `yaml:"otherwise,omitempty"`
	Cond        string   `yaml:"cond,omitempty"`
	Expected    bool     `yaml:"expected,omitempty"`
	Msg         string   `yaml:"msg,omitempty"`
	Place       string   `yaml:"place,omitempty"`
}

type instanceKey struct {
	fn   mir.FuncID
	args string
}

type instanceEntry struct {
	inst *Instance
	err  error
}

// File is a decoded mirfile. It is the type context and instance oracle for
// its own bodies.
type File struct {
	Bodies    []*mir.Body
	closures  map[mir.FuncID]bool
	instances map[instanceKey]instanceEntry
}

var (
	_ resolve.TypeContext = (*File)(nil)
	_ resolve.Oracle      = (*File)(nil)
)

// Instance is an instance listed in a mirfile.
type Instance struct {
	id     mir.FuncID
	devirt mir.FuncID
}

// ID implements resolve.Instance.
func (i *Instance) ID() mir.FuncID { return i.id }

// Devirtualize implements resolve.Instance.
func (i *Instance) Devirtualize(resolve.TypeContext) resolve.Instance {
	if i.devirt == "" {
		return i
	}
	return &Instance{id: i.devirt}
}

// IsClosure implements resolve.TypeContext.
func (f *File) IsClosure(fn mir.FuncID) bool { return f.closures[fn] }

// ResolveInstance implements resolve.Oracle. Unlisted instantiations have no
// specialization.
func (f *File) ResolveInstance(_ resolve.TypeContext, fn mir.FuncID, args []mir.Type) (resolve.Instance, error) {
	e, ok := f.instances[instanceKey{fn: fn, args: mir.TypeArgsKey(args)}]
	if !ok {
		return nil, nil
	}
	if e.err != nil {
		return nil, e.err
	}
	if e.inst == nil {
		return nil, nil
	}
	return e.inst, nil
}

// Closures returns the listed closures, sorted.
func (f *File) Closures() []mir.FuncID {
	out := make([]mir.FuncID, 0, len(f.closures))
	for id := range f.closures {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Program returns the bodies as a program.
func (f *File) Program() *mir.Program { return &mir.Program{Bodies: f.Bodies} }

// Load reads the mirfile at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mirfile: %w", err)
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode parses and validates a mirfile. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var raw fileYAML
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{closures: map[mir.FuncID]bool{}, instances: map[instanceKey]instanceEntry{}}, nil
		}
		return nil, fmt.Errorf("decode mirfile: %w", err)
	}

	f := &File{
		closures:  make(map[mir.FuncID]bool, len(raw.Closures)),
		instances: make(map[instanceKey]instanceEntry, len(raw.Instances)),
	}
	for _, c := range raw.Closures {
		f.closures[mir.FuncID(c)] = true
	}
	for i, in := range raw.Instances {
		if in.Generic == "" {
			return nil, fmt.Errorf("instance %d: missing generic", i)
		}
		args := make([]mir.Type, len(in.Args))
		for j, a := range in.Args {
			args[j] = mir.ParseType(a)
		}
		var e instanceEntry
		switch {
		case in.Error != "":
			e.err = errors.New(in.Error)
		case in.Instance != "":
			e.inst = &Instance{id: mir.FuncID(in.Instance), devirt: mir.FuncID(in.Devirtualized)}
		}
		f.instances[instanceKey{fn: mir.FuncID(in.Generic), args: mir.TypeArgsKey(args)}] = e
	}

	seen := map[mir.FuncID]bool{}
	for i := range raw.Bodies {
		body, err := decodeBody(&raw.Bodies[i])
		if err != nil {
			return nil, fmt.Errorf("body %s: %w", bodyName(&raw.Bodies[i], i), err)
		}
		if seen[body.Func] {
			return nil, fmt.Errorf("body %s: duplicate function", body.Func)
		}
		seen[body.Func] = true
		if err := body.Validate(); err != nil {
			return nil, err
		}
		f.Bodies = append(f.Bodies, body)
	}
	return f, nil
}

func bodyName(b *bodyYAML, i int) string {
	if b.Func != "" {
		return b.Func
	}
	return fmt.Sprintf("#%d", i)
}

func decodeBody(raw *bodyYAML) (*mir.Body, error) {
	if raw.Func == "" {
		return nil, errors.New("missing func")
	}
	body := &mir.Body{Func: mir.FuncID(raw.Func), ArgCount: raw.ArgCount}

	if len(raw.Scopes) == 0 {
		body.Scopes = []mir.SourceScope{{Parent: mir.NoScope, Safety: mir.SafetySafe}}
	}
	for i, s := range raw.Scopes {
		safety, err := ParseSafety(s.Safety)
		if err != nil {
			return nil, fmt.Errorf("scope %d: %w", i, err)
		}
		parent := mir.NoScope
		switch {
		case s.Parent != nil:
			parent = mir.ScopeID(*s.Parent)
		case i > 0:
			parent = mir.OutermostScope
		}
		body.Scopes = append(body.Scopes, mir.SourceScope{Parent: parent, Safety: safety})
	}

	for _, l := range raw.Locals {
		safe := true
		if l.Safe != nil {
			safe = *l.Safe
		}
		body.Locals = append(body.Locals, mir.LocalDecl{Name: l.Name, Ty: mir.ParseType(l.Type), Safe: safe})
	}

	for i := range raw.Blocks {
		bb, err := decodeBlock(&raw.Blocks[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", mir.BlockID(i), err)
		}
		body.Blocks = append(body.Blocks, bb)
	}
	return body, nil
}

func decodeBlock(raw *blockYAML) (mir.BasicBlock, error) {
	var bb mir.BasicBlock
	for j := range raw.Statements {
		s, err := decodeStatement(&raw.Statements[j])
		if err != nil {
			return bb, fmt.Errorf("statement %d: %w", j, err)
		}
		bb.Statements = append(bb.Statements, s)
	}
	if raw.Terminator == nil {
		return bb, errors.New("missing terminator")
	}
	t, err := decodeTerminator(raw.Terminator)
	if err != nil {
		return bb, fmt.Errorf("terminator: %w", err)
	}
	bb.Terminator = t
	return bb, nil
}

func decodeStatement(raw *statementYAML) (mir.Statement, error) {
	st := mir.Statement{Source: mir.SourceInfo{Scope: mir.ScopeID(raw.Scope)}}
	place := func() (mir.Place, error) {
		if raw.Place == "" {
			return mir.Place{}, fmt.Errorf("%s: missing place", raw.Kind)
		}
		return ParsePlace(raw.Place)
	}
	local := func() (mir.Local, error) {
		if raw.Local == nil {
			return 0, fmt.Errorf("%s: missing local", raw.Kind)
		}
		return mir.Local(*raw.Local), nil
	}

	var err error
	switch raw.Kind {
	case "assign":
		a := &mir.Assign{}
		if a.Place, err = place(); err != nil {
			return st, err
		}
		if raw.Rvalue == nil {
			return st, errors.New("assign: missing rvalue")
		}
		if a.Rvalue, err = decodeRvalue(raw.Rvalue); err != nil {
			return st, fmt.Errorf("rvalue: %w", err)
		}
		st.Kind = a
	case "fake_read":
		k := &mir.FakeRead{}
		k.Place, err = place()
		st.Kind = k
	case "set_discriminant":
		k := &mir.SetDiscriminant{Variant: raw.Variant}
		k.Place, err = place()
		st.Kind = k
	case "deinit":
		k := &mir.Deinit{}
		k.Place, err = place()
		st.Kind = k
	case "storage_live":
		k := &mir.StorageLive{}
		k.Local, err = local()
		st.Kind = k
	case "storage_dead":
		k := &mir.StorageDead{}
		k.Local, err = local()
		st.Kind = k
	case "retag":
		k := &mir.Retag{}
		k.Place, err = place()
		st.Kind = k
	case "ascribe_user_type":
		k := &mir.AscribeUserType{}
		k.Place, err = place()
		st.Kind = k
	case "coverage":
		st.Kind = &mir.Coverage{Counter: raw.Counter}
	case "intrinsic":
		k := &mir.Intrinsic{Op: raw.Op}
		k.Operands, err = parseOperands(raw.Operands)
		st.Kind = k
	case "const_eval_counter":
		st.Kind = &mir.ConstEvalCounter{}
	case "nop":
		st.Kind = &mir.Nop{}
	default:
		return st, fmt.Errorf("unknown statement kind %q", raw.Kind)
	}
	return st, err
}

func parseOperands(ss []string) ([]mir.Operand, error) {
	out := make([]mir.Operand, 0, len(ss))
	for i, s := range ss {
		op, err := ParseOperand(s)
		if err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
		out = append(out, op)
	}
	return out, nil
}

func decodeRvalue(raw *rvalueYAML) (mir.Rvalue, error) {
	switch {
	case raw.Use != "":
		op, err := ParseOperand(raw.Use)
		return &mir.Use{Operand: op}, err
	case raw.Repeat != "":
		op, err := ParseOperand(raw.Repeat)
		return &mir.Repeat{Operand: op, Count: raw.Count}, err
	case raw.Ref != "":
		p, err := ParsePlace(raw.Ref)
		return &mir.Ref{Mutable: raw.Mut, Place: p}, err
	case raw.AddrOf != "":
		p, err := ParsePlace(raw.AddrOf)
		return &mir.AddressOf{Mutable: raw.Mut, Place: p}, err
	case raw.Binary != "":
		l, err := ParseOperand(raw.Left)
		if err != nil {
			return nil, fmt.Errorf("left: %w", err)
		}
		r, err := ParseOperand(raw.Right)
		if err != nil {
			return nil, fmt.Errorf("right: %w", err)
		}
		return &mir.BinaryOp{Op: raw.Binary, Left: l, Right: r}, nil
	case raw.Unary != "":
		op, err := ParseOperand(raw.Operand)
		return &mir.UnaryOp{Op: raw.Unary, Operand: op}, err
	case raw.Cast != "":
		op, err := ParseOperand(raw.Operand)
		return &mir.Cast{Kind: mir.CastKind(raw.Cast), Operand: op, Ty: mir.ParseType(raw.Type)}, err
	case raw.Aggregate != "":
		kind, err := parseAggregateKind(raw.Aggregate)
		if err != nil {
			return nil, err
		}
		ops, err := parseOperands(raw.Operands)
		return &mir.Aggregate{Kind: kind, Closure: mir.FuncID(raw.Closure), Operands: ops}, err
	case raw.Len != "":
		p, err := ParsePlace(raw.Len)
		return &mir.Len{Place: p}, err
	case raw.Discriminant != "":
		p, err := ParsePlace(raw.Discriminant)
		return &mir.Discriminant{Place: p}, err
	case raw.Nullary != "":
		return &mir.NullaryOp{Op: raw.Nullary, Ty: mir.ParseType(raw.Type)}, nil
	}
	return nil, errors.New("empty rvalue")
}

func parseAggregateKind(s string) (mir.AggregateKind, error) {
	for k := mir.AggregateTuple; k <= mir.AggregateSlice; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown aggregate kind %q", s)
}

func blockPtr(b *uint32) *mir.BlockID {
	if b == nil {
		return nil
	}
	id := mir.BlockID(*b)
	return &id
}

func decodeTerminator(raw *terminatorYAML) (*mir.Terminator, error) {
	t := &mir.Terminator{Source: mir.SourceInfo{Scope: mir.ScopeID(raw.Scope)}}
	switch raw.Kind {
	case "call":
		fn, err := ParseOperand(raw.Func)
		if err != nil {
			return nil, fmt.Errorf("func: %w", err)
		}
		args, err := parseOperands(raw.Args)
		if err != nil {
			return nil, fmt.Errorf("args: %w", err)
		}
		dest := mir.LocalPlace(mir.ReturnPlace)
		if raw.Destination != "" {
			if dest, err = ParsePlace(raw.Destination); err != nil {
				return nil, fmt.Errorf("destination: %w", err)
			}
		}
		t.Kind = &mir.Call{Func: fn, Args: args, Destination: dest, Target: blockPtr(raw.Target), Unwind: blockPtr(raw.Unwind)}
	case "goto":
		if raw.Target == nil {
			return nil, errors.New("goto: missing target")
		}
		t.Kind = &mir.Goto{Target: mir.BlockID(*raw.Target)}
	case "switch_int":
		discr, err := ParseOperand(raw.Discr)
		if err != nil {
			return nil, fmt.Errorf("discr: %w", err)
		}
		k := &mir.SwitchInt{Discr: discr, Values: raw.Values, Otherwise: mir.BlockID(raw.Otherwise)}
		for _, tgt := range raw.Targets {
			k.Targets = append(k.Targets, mir.BlockID(tgt))
		}
		t.Kind = k
	case "return":
		t.Kind = &mir.Return{}
	case "unreachable":
		t.Kind = &mir.Unreachable{}
	case "resume":
		t.Kind = &mir.Resume{}
	case "drop":
		p, err := ParsePlace(raw.Place)
		if err != nil {
			return nil, err
		}
		if raw.Target == nil {
			return nil, errors.New("drop: missing target")
		}
		t.Kind = &mir.Drop{Place: p, Target: mir.BlockID(*raw.Target), Unwind: blockPtr(raw.Unwind)}
	case "assert":
		cond, err := ParseOperand(raw.Cond)
		if err != nil {
			return nil, fmt.Errorf("cond: %w", err)
		}
		if raw.Target == nil {
			return nil, errors.New("assert: missing target")
		}
		t.Kind = &mir.Assert{Cond: cond, Expected: raw.Expected, Msg: raw.Msg, Target: mir.BlockID(*raw.Target), Unwind: blockPtr(raw.Unwind)}
	default:
		return nil, fmt.Errorf("unknown terminator kind %q", raw.Kind)
	}
	return t, nil
}

package mirfile

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/715d/ptafilter/pkg/mir"
)

// Encode writes bodies in mirfile form. Spans are not written. closures may
// be nil.
func Encode(w io.Writer, bodies []*mir.Body, closures []mir.FuncID) error {
	raw := fileYAML{Bodies: make([]bodyYAML, 0, len(bodies))}
	for _, c := range closures {
		raw.Closures = append(raw.Closures, string(c))
	}
	for _, b := range bodies {
		eb, err := encodeBody(b)
		if err != nil {
			return fmt.Errorf("encode %s: %w", b.Func, err)
		}
		raw.Bodies = append(raw.Bodies, eb)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&raw); err != nil {
		return fmt.Errorf("encode mirfile: %w", err)
	}
	return enc.Close()
}

func encodeBody(b *mir.Body) (bodyYAML, error) {
	out := bodyYAML{Func: string(b.Func), ArgCount: b.ArgCount}
	for i, s := range b.Scopes {
		sy := scopeYAML{Safety: s.Safety.String()}
		if i > 0 {
			parent := uint32(s.Parent)
			sy.Parent = &parent
		}
		out.Scopes = append(out.Scopes, sy)
	}
	for _, l := range b.Locals {
		ly := localYAML{Name: l.Name, Type: l.Ty.String()}
		if !l.Safe {
			safe := false
			ly.Safe = &safe
		}
		out.Locals = append(out.Locals, ly)
	}
	for i := range b.Blocks {
		bb := &b.Blocks[i]
		var by blockYAML
		for j := range bb.Statements {
			sy, err := encodeStatement(&bb.Statements[j])
			if err != nil {
				return out, fmt.Errorf("%s: statement %d: %w", mir.BlockID(i), j, err)
			}
			by.Statements = append(by.Statements, sy)
		}
		ty, err := encodeTerminator(bb.Terminator)
		if err != nil {
			return out, fmt.Errorf("%s: terminator: %w", mir.BlockID(i), err)
		}
		by.Terminator = ty
		out.Blocks = append(out.Blocks, by)
	}
	return out, nil
}

func operandStrings(ops []mir.Operand) []string {
	if len(ops) == 0 {
		return nil
	}
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

func encodeStatement(s *mir.Statement) (statementYAML, error) {
	out := statementYAML{Kind: s.Kind.Name(), Scope: uint32(s.Source.Scope)}
	switch k := s.Kind.(type) {
	case *mir.Assign:
		out.Place = k.Place.String()
		rv, err := encodeRvalue(k.Rvalue)
		if err != nil {
			return out, err
		}
		out.Rvalue = rv
	case *mir.FakeRead:
		out.Place = k.Place.String()
	case *mir.SetDiscriminant:
		out.Place = k.Place.String()
		out.Variant = k.Variant
	case *mir.Deinit:
		out.Place = k.Place.String()
	case *mir.StorageLive:
		l := uint32(k.Local)
		out.Local = &l
	case *mir.StorageDead:
		l := uint32(k.Local)
		out.Local = &l
	case *mir.Retag:
		out.Place = k.Place.String()
	case *mir.AscribeUserType:
		out.Place = k.Place.String()
	case *mir.Coverage:
		out.Counter = k.Counter
	case *mir.Intrinsic:
		out.Op = k.Op
		out.Operands = operandStrings(k.Operands)
	case *mir.ConstEvalCounter, *mir.Nop:
	default:
		return out, fmt.Errorf("unsupported statement %T", s.Kind)
	}
	return out, nil
}

func encodeRvalue(rv mir.Rvalue) (*rvalueYAML, error) {
	switch r := rv.(type) {
	case *mir.Use:
		return &rvalueYAML{Use: r.Operand.String()}, nil
	case *mir.Repeat:
		return &rvalueYAML{Repeat: r.Operand.String(), Count: r.Count}, nil
	case *mir.Ref:
		return &rvalueYAML{Ref: r.Place.String(), Mut: r.Mutable}, nil
	case *mir.AddressOf:
		return &rvalueYAML{AddrOf: r.Place.String(), Mut: r.Mutable}, nil
	case *mir.BinaryOp:
		return &rvalueYAML{Binary: r.Op, Left: r.Left.String(), Right: r.Right.String()}, nil
	case *mir.UnaryOp:
		return &rvalueYAML{Unary: r.Op, Operand: r.Operand.String()}, nil
	case *mir.Cast:
		return &rvalueYAML{Cast: string(r.Kind), Operand: r.Operand.String(), Type: r.Ty.String()}, nil
	case *mir.Aggregate:
		return &rvalueYAML{Aggregate: r.Kind.String(), Closure: string(r.Closure), Operands: operandStrings(r.Operands)}, nil
	case *mir.Len:
		return &rvalueYAML{Len: r.Place.String()}, nil
	case *mir.Discriminant:
		return &rvalueYAML{Discriminant: r.Place.String()}, nil
	case *mir.NullaryOp:
		return &rvalueYAML{Nullary: r.Op, Type: r.Ty.String()}, nil
	}
	return nil, fmt.Errorf("unsupported rvalue %T", rv)
}

func blockRef(b *mir.BlockID) *uint32 {
	if b == nil {
		return nil
	}
	v := uint32(*b)
	return &v
}

func encodeTerminator(t *mir.Terminator) (*terminatorYAML, error) {
	out := &terminatorYAML{Kind: t.Kind.Name(), Scope: uint32(t.Source.Scope)}
	switch k := t.Kind.(type) {
	case *mir.Call:
		out.Func = k.Func.String()
		out.Args = operandStrings(k.Args)
		out.Destination = k.Destination.String()
		out.Target = blockRef(k.Target)
		out.Unwind = blockRef(k.Unwind)
	case *mir.Goto:
		out.Target = blockRef(&k.Target)
	case *mir.SwitchInt:
		out.Discr = k.Discr.String()
		out.Values = k.Values
		for _, tgt := range k.Targets {
			out.Targets = append(out.Targets, uint32(tgt))
		}
		out.Otherwise = uint32(k.Otherwise)
	case *mir.Drop:
		out.Place = k.Place.String()
		out.Target = blockRef(&k.Target)
		out.Unwind = blockRef(k.Unwind)
	case *mir.Assert:
		out.Cond = k.Cond.String()
		out.Expected = k.Expected
		out.Msg = k.Msg
		out.Target = blockRef(&k.Target)
		out.Unwind = blockRef(k.Unwind)
	case *mir.Return, *mir.Unreachable, *mir.Resume:
	default:
		return nil, fmt.Errorf("unsupported terminator %T", t.Kind)
	}
	return out, nil
}

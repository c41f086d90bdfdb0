// Package operands extracts the locals an instruction reads or writes.
//
// Extraction is conservative. When an instruction's shape cannot be reduced
// to bare locals the result is indeterminate (ok == false) and callers must
// not record a partial answer.
package operands

import (
	"fmt"

	"github.com/715d/ptafilter/pkg/mir"
)

// Destination is the role of an assignment or call destination. Call
// arguments take role i+1 for position i; the source of a plain assignment
// takes role 1.
const Destination uint32 = 0

// RoleLocal is one local touched by an instruction, tagged with its role.
type RoleLocal struct {
	Role  uint32    `json:"role" yaml:"role"`
	Local mir.Local `json:"local" yaml:"local"`
}

func (r RoleLocal) String() string { return fmt.Sprintf("(%d, %s)", r.Role, r.Local) }

// Instruction dispatches to Statement or Terminator.
func Instruction(inst mir.Instruction) ([]RoleLocal, bool) {
	switch i := inst.(type) {
	case *mir.Statement:
		return Statement(i)
	case *mir.Terminator:
		return Terminator(i)
	}
	return nil, false
}

// Statement extracts the locals of a statement. Only assignments carry data
// flow; every marker kind yields an empty, determinate result.
func Statement(s *mir.Statement) ([]RoleLocal, bool) {
	switch k := s.Kind.(type) {
	case *mir.Assign:
		dest, ok := k.Place.AsLocal()
		if !ok {
			return nil, false
		}
		src, ok := Rvalue(k.Rvalue)
		if !ok {
			return nil, false
		}
		return append([]RoleLocal{{Role: Destination, Local: dest}}, src...), true
	case *mir.FakeRead, *mir.SetDiscriminant, *mir.Deinit, *mir.StorageLive,
		*mir.StorageDead, *mir.Retag, *mir.AscribeUserType, *mir.Coverage,
		*mir.Intrinsic, *mir.ConstEvalCounter, *mir.Nop:
		return nil, true
	}
	return nil, false
}

// Rvalue extracts the locals an assigned value reads. Only a direct use is
// understood; address-of, references and compound values are indeterminate.
func Rvalue(rv mir.Rvalue) ([]RoleLocal, bool) {
	use, ok := rv.(*mir.Use)
	if !ok {
		return nil, false
	}
	if use.Operand.Kind == mir.OperandConstant {
		return nil, true
	}
	l, ok := use.Operand.Place.AsLocal()
	if !ok {
		return nil, false
	}
	return []RoleLocal{{Role: 1, Local: l}}, true
}

// Terminator extracts the locals of a call: arguments in position order,
// then the destination. Other terminators touch no locals.
func Terminator(t *mir.Terminator) ([]RoleLocal, bool) {
	call, ok := t.Call()
	if !ok {
		return nil, true
	}
	out := make([]RoleLocal, 0, len(call.Args)+1)
	for i, arg := range call.Args {
		p, isPlace := arg.AsPlace()
		if !isPlace {
			continue
		}
		l, ok := p.AsLocal()
		if !ok {
			return nil, false
		}
		out = append(out, RoleLocal{Role: uint32(i + 1), Local: l})
	}
	dest, ok := call.Destination.AsLocal()
	if !ok {
		return nil, false
	}
	return append(out, RoleLocal{Role: Destination, Local: dest}), true
}

// Callsite is the view of a call used when tagging it for code generation:
// the destination first, then the base local of every place argument,
// projected or not. It panics if t is not a call.
func Callsite(t *mir.Terminator) []RoleLocal {
	call, ok := t.Call()
	if !ok {
		panic(fmt.Sprintf("operands: Callsite on non-call terminator %q", t.Kind.Name()))
	}
	out := make([]RoleLocal, 0, len(call.Args)+1)
	out = append(out, RoleLocal{Role: Destination, Local: call.Destination.Local})
	for i, arg := range call.Args {
		if p, ok := arg.AsPlace(); ok {
			out = append(out, RoleLocal{Role: uint32(i + 1), Local: p.Local})
		}
	}
	return out
}

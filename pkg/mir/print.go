package mir

import (
	"fmt"
	"io"
)

// Highlight decorates the rendering of one instruction in a dump. It returns
// the line unchanged when nothing applies.
type Highlight func(loc Location, line string) string

// Fprint writes a human-readable dump of b to w.
func Fprint(w io.Writer, b *Body, hl Highlight) error {
	p := &printer{w: w}
	p.printf("fn %s(", b.Func)
	for i := 1; i <= b.ArgCount; i++ {
		if i > 1 {
			p.printf(", ")
		}
		p.printf("%s: %s", Local(i), b.Locals[i].Ty)
	}
	p.printf(") -> %s {\n", b.Locals[ReturnPlace].Ty)

	for i, l := range b.Locals {
		safe := ""
		if !l.Safe {
			safe = " // tracked"
		}
		p.printf("    let %s: %s; // %s%s\n", Local(i), l.Ty, l.Name, safe)
	}
	for i, s := range b.Scopes {
		if i == int(OutermostScope) {
			continue
		}
		p.printf("    scope %d in %d: %s\n", i, s.Parent, s.Safety)
	}

	for loc, inst := range b.Instructions() {
		if loc.Index == 0 {
			p.printf("\n    %s: {\n", loc.Block)
		}
		line := fmt.Sprintf("%s; // scope %d", inst, inst.SourceInfo().Scope)
		if hl != nil {
			line = hl(loc, line)
		}
		p.printf("        %s\n", line)
		if _, ok := inst.(*Terminator); ok {
			p.printf("    }\n")
		}
	}
	p.printf("}\n")
	return p.err
}

// OpName returns the variant mnemonic of inst, qualified by the rvalue kind
// for assignments.
func OpName(inst Instruction) string {
	switch i := inst.(type) {
	case *Statement:
		if a, ok := i.Kind.(*Assign); ok {
			return "assign." + rvalueName(a.Rvalue)
		}
		return i.Kind.Name()
	case *Terminator:
		return i.Kind.Name()
	}
	return "unknown"
}

func rvalueName(rv Rvalue) string {
	switch rv.(type) {
	case *Use:
		return "use"
	case *Repeat:
		return "repeat"
	case *Ref:
		return "ref"
	case *AddressOf:
		return "address_of"
	case *BinaryOp:
		return "binary_op"
	case *UnaryOp:
		return "unary_op"
	case *Cast:
		return "cast"
	case *Aggregate:
		return "aggregate"
	case *Len:
		return "len"
	case *Discriminant:
		return "discriminant"
	case *NullaryOp:
		return "nullary_op"
	}
	return "unknown"
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

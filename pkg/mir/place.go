package mir

import (
	"fmt"
	"strings"
)

// ProjectionKind selects what a ProjectionElem does to its base place.
type ProjectionKind uint8

const (
	ProjDeref ProjectionKind = iota
	ProjField
	ProjIndex
	ProjConstantIndex
	ProjSubslice
	ProjDowncast
)

// ProjectionElem is one step from a base local to a sub-place.
type ProjectionElem struct {
	Kind ProjectionKind
	// Field is the field number for ProjField, the offset for
	// ProjConstantIndex and the variant for ProjDowncast.
	Field int
	// Index is the local holding the index for ProjIndex.
	Index Local
}

// Place is a local, optionally projected through fields, indices or
// dereferences.
type Place struct {
	Local      Local
	Projection []ProjectionElem
}

// LocalPlace returns the bare place naming l.
func LocalPlace(l Local) Place { return Place{Local: l} }

// AsLocal returns the local a bare place names. Any projection makes the place
// unresolvable to a single local.
func (p Place) AsLocal() (Local, bool) {
	if len(p.Projection) != 0 {
		return 0, false
	}
	return p.Local, true
}

// Project returns p extended by elem.
func (p Place) Project(elem ProjectionElem) Place {
	proj := make([]ProjectionElem, len(p.Projection), len(p.Projection)+1)
	copy(proj, p.Projection)
	return Place{Local: p.Local, Projection: append(proj, elem)}
}

// Deref returns *p.
func (p Place) Deref() Place { return p.Project(ProjectionElem{Kind: ProjDeref}) }

// Field returns p.n.
func (p Place) Field(n int) Place { return p.Project(ProjectionElem{Kind: ProjField, Field: n}) }

// Index returns p[idx].
func (p Place) Index(idx Local) Place { return p.Project(ProjectionElem{Kind: ProjIndex, Index: idx}) }

func (p Place) String() string {
	s := p.Local.String()
	for _, e := range p.Projection {
		switch e.Kind {
		case ProjDeref:
			s = "(*" + s + ")"
		case ProjField:
			s = fmt.Sprintf("%s.%d", s, e.Field)
		case ProjIndex:
			s = fmt.Sprintf("%s[%s]", s, e.Index)
		case ProjConstantIndex:
			s = fmt.Sprintf("%s[%d]", s, e.Field)
		case ProjSubslice:
			s += "[..]"
		case ProjDowncast:
			s = fmt.Sprintf("(%s as variant#%d)", s, e.Field)
		}
	}
	return s
}

// FnDef is a reference to a function item together with the type arguments it
// is instantiated with.
type FnDef struct {
	Func FuncID
	Args []Type
}

func (f FnDef) String() string {
	if len(f.Args) == 0 {
		return string(f.Func)
	}
	return fmt.Sprintf("%s<%s>", f.Func, TypeArgsKey(f.Args))
}

// Constant is a compile-time operand. Fn is set when the constant is a
// function item.
type Constant struct {
	Ty    Type
	Value string
	Fn    *FnDef
}

func (c *Constant) String() string {
	if c.Fn != nil {
		return "fn " + c.Fn.String()
	}
	if c.Ty.Name != "" {
		return fmt.Sprintf("const %s: %s", c.Value, c.Ty)
	}
	return "const " + c.Value
}

// OperandKind tells constant operands from the two kinds of place reads.
type OperandKind uint8

const (
	OperandCopy OperandKind = iota
	OperandMove
	OperandConstant
)

// Operand is a value read by an rvalue or a call.
type Operand struct {
	Kind  OperandKind
	Place Place
	Const *Constant
}

// Copy returns an operand copying p.
func Copy(p Place) Operand { return Operand{Kind: OperandCopy, Place: p} }

// Move returns an operand moving out of p.
func Move(p Place) Operand { return Operand{Kind: OperandMove, Place: p} }

// Const returns a constant operand.
func Const(c *Constant) Operand { return Operand{Kind: OperandConstant, Const: c} }

// FnOperand returns the constant operand referencing a function item.
func FnOperand(fn FuncID, args ...Type) Operand {
	return Const(&Constant{Ty: Type{Kind: KindFunc, Name: string(fn)}, Fn: &FnDef{Func: fn, Args: args}})
}

// Constant returns the constant of a constant operand.
func (o Operand) Constant() (*Constant, bool) {
	if o.Kind != OperandConstant {
		return nil, false
	}
	return o.Const, true
}

// AsPlace returns the place read by a copy or move operand.
func (o Operand) AsPlace() (Place, bool) {
	if o.Kind == OperandConstant {
		return Place{}, false
	}
	return o.Place, true
}

// FnDef returns the function item a constant operand refers to.
func (o Operand) FnDef() (FnDef, bool) {
	if o.Kind != OperandConstant || o.Const == nil || o.Const.Fn == nil {
		return FnDef{}, false
	}
	return *o.Const.Fn, true
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandCopy:
		return "copy " + o.Place.String()
	case OperandMove:
		return "move " + o.Place.String()
	}
	if o.Const == nil {
		return "const ?"
	}
	return o.Const.String()
}

func joinOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, ", ")
}

package mir

import "fmt"

// Rvalue is the right-hand side of an Assign. The concrete types are listed
// below; analyses switch on them.
type Rvalue interface {
	fmt.Stringer
	rvalue()
}

// Use reads a single operand.
type Use struct{ Operand Operand }

// Repeat broadcasts an operand into an array of Count elements.
type Repeat struct {
	Operand Operand
	Count   uint64
}

// Ref takes a reference to a place.
type Ref struct {
	Mutable bool
	Place   Place
}

// AddressOf takes the raw address of a place.
type AddressOf struct {
	Mutable bool
	Place   Place
}

// BinaryOp combines two operands.
type BinaryOp struct {
	Op          string
	Left, Right Operand
}

// UnaryOp applies an operator to one operand.
type UnaryOp struct {
	Op      string
	Operand Operand
}

// CastKind names the conversion a Cast performs.
type CastKind string

// Cast converts an operand to Ty.
type Cast struct {
	Kind    CastKind
	Operand Operand
	Ty      Type
}

// AggregateKind names the shape an Aggregate builds.
type AggregateKind uint8

const (
	AggregateTuple AggregateKind = iota
	AggregateArray
	AggregateStruct
	AggregateClosure
	AggregateSlice
)

var aggregateNames = [...]string{
	AggregateTuple:   "tuple",
	AggregateArray:   "array",
	AggregateStruct:  "struct",
	AggregateClosure: "closure",
	AggregateSlice:   "slice",
}

func (k AggregateKind) String() string {
	if int(k) < len(aggregateNames) {
		return aggregateNames[k]
	}
	return "aggregate"
}

// Aggregate builds a compound value from operands. Closure is set for
// AggregateClosure.
type Aggregate struct {
	Kind     AggregateKind
	Closure  FuncID
	Operands []Operand
}

// Len reads the length of an array or slice place.
type Len struct{ Place Place }

// Discriminant reads the variant tag of a place.
type Discriminant struct{ Place Place }

// NullaryOp computes a value from a type alone, such as an allocation.
type NullaryOp struct {
	Op string
	Ty Type
}

func (*Use) rvalue()          {}
func (*Repeat) rvalue()       {}
func (*Ref) rvalue()          {}
func (*AddressOf) rvalue()    {}
func (*BinaryOp) rvalue()     {}
func (*UnaryOp) rvalue()      {}
func (*Cast) rvalue()         {}
func (*Aggregate) rvalue()    {}
func (*Len) rvalue()          {}
func (*Discriminant) rvalue() {}
func (*NullaryOp) rvalue()    {}

func (r *Use) String() string    { return r.Operand.String() }
func (r *Repeat) String() string { return fmt.Sprintf("[%s; %d]", r.Operand, r.Count) }

func (r *Ref) String() string {
	if r.Mutable {
		return "&mut " + r.Place.String()
	}
	return "&" + r.Place.String()
}

func (r *AddressOf) String() string {
	if r.Mutable {
		return "&raw mut " + r.Place.String()
	}
	return "&raw const " + r.Place.String()
}

func (r *BinaryOp) String() string { return fmt.Sprintf("%s(%s, %s)", r.Op, r.Left, r.Right) }
func (r *UnaryOp) String() string  { return fmt.Sprintf("%s(%s)", r.Op, r.Operand) }

func (r *Cast) String() string {
	return fmt.Sprintf("%s as %s (%s)", r.Operand, r.Ty, r.Kind)
}

func (r *Aggregate) String() string {
	if r.Kind == AggregateClosure {
		return fmt.Sprintf("closure %s(%s)", r.Closure, joinOperands(r.Operands))
	}
	return fmt.Sprintf("%s(%s)", r.Kind, joinOperands(r.Operands))
}

func (r *Len) String() string          { return fmt.Sprintf("Len(%s)", r.Place) }
func (r *Discriminant) String() string { return fmt.Sprintf("discriminant(%s)", r.Place) }
func (r *NullaryOp) String() string    { return fmt.Sprintf("%s(%s)", r.Op, r.Ty) }

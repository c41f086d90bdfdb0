package mir

import (
	"errors"
	"fmt"
	"iter"
)

// Instruction is either a *Statement or a *Terminator.
type Instruction interface {
	SourceInfo() SourceInfo
	String() string
}

var (
	_ Instruction = (*Statement)(nil)
	_ Instruction = (*Terminator)(nil)
)

// Safety is the explicit safety annotation of a source scope.
type Safety uint8

const (
	// SafetyInherit carries no annotation; the parent scope decides.
	SafetyInherit Safety = iota
	// SafetySafe is an ordinary safe scope.
	SafetySafe
	// SafetyUnsafe is an explicitly unsafe region.
	SafetyUnsafe
)

func (s Safety) String() string {
	switch s {
	case SafetySafe:
		return "safe"
	case SafetyUnsafe:
		return "unsafe"
	}
	return "inherit"
}

// SourceScope is one node of the lexical scope tree.
type SourceScope struct {
	Parent ScopeID
	Safety Safety
	Span   Span
}

// LocalDecl declares one local. Safe is the flag consumed by the points-to
// analysis: true means the local may be dropped from precise tracking.
type LocalDecl struct {
	Name string
	Ty   Type
	Safe bool
}

// BasicBlock is a run of statements closed by exactly one terminator.
type BasicBlock struct {
	Statements []Statement
	Terminator *Terminator
}

// Body is the IR of one function.
type Body struct {
	Func FuncID
	// ArgCount is the number of argument locals, which follow ReturnPlace.
	ArgCount int
	Blocks   []BasicBlock
	Locals   []LocalDecl
	Scopes   []SourceScope
}

// Program is an ordered set of bodies from one frontend.
type Program struct {
	Bodies []*Body
}

// Lookup returns the body of fn.
func (p *Program) Lookup(fn FuncID) (*Body, bool) {
	for _, b := range p.Bodies {
		if b.Func == fn {
			return b, true
		}
	}
	return nil, false
}

// Instruction returns the instruction at loc. It panics on an out-of-range
// location.
func (b *Body) Instruction(loc Location) Instruction {
	bb := &b.Blocks[loc.Block]
	if loc.Index == len(bb.Statements) {
		return bb.Terminator
	}
	return &bb.Statements[loc.Index]
}

// Terminator returns the terminator of block id.
func (b *Body) Terminator(id BlockID) *Terminator {
	return b.Blocks[id].Terminator
}

// Instructions yields every instruction in block order, statements first and
// the terminator last within each block.
func (b *Body) Instructions() iter.Seq2[Location, Instruction] {
	return func(yield func(Location, Instruction) bool) {
		for i := range b.Blocks {
			bb := &b.Blocks[i]
			for j := range bb.Statements {
				if !yield(Location{Block: BlockID(i), Index: j}, &bb.Statements[j]) {
					return
				}
			}
			if bb.Terminator == nil {
				continue
			}
			if !yield(Location{Block: BlockID(i), Index: len(bb.Statements)}, bb.Terminator) {
				return
			}
		}
	}
}

// NumInstructions counts statements and terminators.
func (b *Body) NumInstructions() int {
	n := 0
	for i := range b.Blocks {
		n += len(b.Blocks[i].Statements) + 1
	}
	return n
}

// CallSites returns the location of every call terminator in block order.
func (b *Body) CallSites() []Location {
	var sites []Location
	for i := range b.Blocks {
		bb := &b.Blocks[i]
		if bb.Terminator == nil {
			continue
		}
		if _, ok := bb.Terminator.Call(); ok {
			sites = append(sites, Location{Block: BlockID(i), Index: len(bb.Statements)})
		}
	}
	return sites
}

// IsArg reports whether l is an argument local.
func (b *Body) IsArg(l Local) bool {
	return l > ReturnPlace && int(l) <= b.ArgCount
}

// IsNonPrimitive reports whether the declared type of l may carry a pointer.
func (b *Body) IsNonPrimitive(l Local) bool {
	return !b.Locals[l].Ty.IsPrimitive()
}

// ErrInvalidBody is wrapped by every error Validate returns.
var ErrInvalidBody = errors.New("invalid body")

// Validate checks the structural invariants analyses rely on: every block
// has a terminator, every reference is in range and every scope's parent
// precedes it, so parent walks terminate.
func (b *Body) Validate() error {
	if len(b.Locals) == 0 {
		return fmt.Errorf("%w: %s: missing return place", ErrInvalidBody, b.Func)
	}
	if b.ArgCount < 0 || b.ArgCount >= len(b.Locals) {
		return fmt.Errorf("%w: %s: arg count %d out of range", ErrInvalidBody, b.Func, b.ArgCount)
	}
	if len(b.Scopes) == 0 {
		return fmt.Errorf("%w: %s: missing outermost scope", ErrInvalidBody, b.Func)
	}
	for i, s := range b.Scopes {
		if i == int(OutermostScope) {
			if s.Parent != NoScope {
				return fmt.Errorf("%w: %s: outermost scope has a parent", ErrInvalidBody, b.Func)
			}
			continue
		}
		if s.Parent == NoScope || int(s.Parent) >= i {
			return fmt.Errorf("%w: %s: scope %d: parent %d must precede it", ErrInvalidBody, b.Func, i, s.Parent)
		}
	}
	if len(b.Blocks) == 0 {
		return fmt.Errorf("%w: %s: no basic blocks", ErrInvalidBody, b.Func)
	}
	for i := range b.Blocks {
		bb := &b.Blocks[i]
		if bb.Terminator == nil {
			return fmt.Errorf("%w: %s: %s: missing terminator", ErrInvalidBody, b.Func, BlockID(i))
		}
		for loc, inst := range b.blockInstructions(BlockID(i)) {
			if err := b.validateInstruction(inst); err != nil {
				return fmt.Errorf("%w: %s: %s: %w", ErrInvalidBody, b.Func, loc, err)
			}
		}
		for _, succ := range bb.Terminator.Successors() {
			if int(succ) >= len(b.Blocks) {
				return fmt.Errorf("%w: %s: %s: successor %s out of range", ErrInvalidBody, b.Func, BlockID(i), succ)
			}
		}
	}
	return nil
}

func (b *Body) blockInstructions(id BlockID) iter.Seq2[Location, Instruction] {
	return func(yield func(Location, Instruction) bool) {
		bb := &b.Blocks[id]
		for j := range bb.Statements {
			if !yield(Location{Block: id, Index: j}, &bb.Statements[j]) {
				return
			}
		}
		yield(Location{Block: id, Index: len(bb.Statements)}, bb.Terminator)
	}
}

func (b *Body) validateInstruction(inst Instruction) error {
	if s := inst.SourceInfo().Scope; int(s) >= len(b.Scopes) {
		return fmt.Errorf("scope %d out of range", s)
	}
	var places []Place
	var ops []Operand
	switch i := inst.(type) {
	case *Statement:
		switch k := i.Kind.(type) {
		case *Assign:
			places = append(places, k.Place)
			p, o := rvalueOperands(k.Rvalue)
			places, ops = append(places, p...), append(ops, o...)
		case *StorageLive:
			places = append(places, LocalPlace(k.Local))
		case *StorageDead:
			places = append(places, LocalPlace(k.Local))
		case *SetDiscriminant:
			places = append(places, k.Place)
		case *Deinit:
			places = append(places, k.Place)
		case *Intrinsic:
			ops = append(ops, k.Operands...)
		}
	case *Terminator:
		switch k := i.Kind.(type) {
		case *Call:
			places = append(places, k.Destination)
			ops = append(append(ops, k.Func), k.Args...)
		case *SwitchInt:
			if len(k.Values) != len(k.Targets) {
				return fmt.Errorf("switchInt has %d values for %d targets", len(k.Values), len(k.Targets))
			}
			ops = append(ops, k.Discr)
		case *Drop:
			places = append(places, k.Place)
		case *Assert:
			ops = append(ops, k.Cond)
		}
	}
	for _, op := range ops {
		if p, ok := op.AsPlace(); ok {
			places = append(places, p)
		}
	}
	for _, p := range places {
		if err := b.validatePlace(p); err != nil {
			return err
		}
	}
	return nil
}

func (b *Body) validatePlace(p Place) error {
	if int(p.Local) >= len(b.Locals) {
		return fmt.Errorf("local %s out of range", p.Local)
	}
	for _, e := range p.Projection {
		if e.Kind == ProjIndex && int(e.Index) >= len(b.Locals) {
			return fmt.Errorf("index local %s out of range", e.Index)
		}
	}
	return nil
}

func rvalueOperands(rv Rvalue) ([]Place, []Operand) {
	switch r := rv.(type) {
	case *Use:
		return nil, []Operand{r.Operand}
	case *Repeat:
		return nil, []Operand{r.Operand}
	case *Ref:
		return []Place{r.Place}, nil
	case *AddressOf:
		return []Place{r.Place}, nil
	case *BinaryOp:
		return nil, []Operand{r.Left, r.Right}
	case *UnaryOp:
		return nil, []Operand{r.Operand}
	case *Cast:
		return nil, []Operand{r.Operand}
	case *Aggregate:
		return nil, r.Operands
	case *Len:
		return []Place{r.Place}, nil
	case *Discriminant:
		return []Place{r.Place}, nil
	}
	return nil, nil
}

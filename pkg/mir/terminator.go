package mir

import (
	"fmt"
	"strings"
)

// Terminator is the single control-transferring instruction that ends a
// basic block.
type Terminator struct {
	Source SourceInfo
	Kind   TerminatorKind
}

// SourceInfo implements Instruction.
func (t *Terminator) SourceInfo() SourceInfo { return t.Source }

func (t *Terminator) String() string { return t.Kind.String() }

// Call returns the call this terminator performs, if it is one.
func (t *Terminator) Call() (*Call, bool) {
	c, ok := t.Kind.(*Call)
	return c, ok
}

// Successors returns the blocks control may continue in.
func (t *Terminator) Successors() []BlockID {
	switch k := t.Kind.(type) {
	case *Goto:
		return []BlockID{k.Target}
	case *SwitchInt:
		return append(append([]BlockID(nil), k.Targets...), k.Otherwise)
	case *Drop:
		return appendOpt([]BlockID{k.Target}, k.Unwind)
	case *Assert:
		return appendOpt([]BlockID{k.Target}, k.Unwind)
	case *Call:
		var succ []BlockID
		succ = appendOpt(succ, k.Target)
		return appendOpt(succ, k.Unwind)
	}
	return nil
}

func appendOpt(s []BlockID, b *BlockID) []BlockID {
	if b == nil {
		return s
	}
	return append(s, *b)
}

// TerminatorKind is implemented by the terminator variants below.
type TerminatorKind interface {
	fmt.Stringer
	// Name is the variant mnemonic used in dumps and statistics.
	Name() string
	terminatorKind()
}

// Goto jumps unconditionally.
type Goto struct{ Target BlockID }

// SwitchInt branches on an integer discriminant. Values[i] selects
// Targets[i]; anything else continues at Otherwise.
type SwitchInt struct {
	Discr     Operand
	Values    []uint64
	Targets   []BlockID
	Otherwise BlockID
}

// Return leaves the body with the value in ReturnPlace.
type Return struct{}

// Unreachable marks a block that is never executed.
type Unreachable struct{}

// Resume continues unwinding.
type Resume struct{}

// Drop runs the destructor of Place.
type Drop struct {
	Place  Place
	Target BlockID
	Unwind *BlockID
}

// Assert panics unless Cond equals Expected.
type Assert struct {
	Cond     Operand
	Expected bool
	Msg      string
	Target   BlockID
	Unwind   *BlockID
}

// Call invokes Func with Args and stores the result in Destination. A nil
// Target marks a diverging call.
type Call struct {
	Func        Operand
	Args        []Operand
	Destination Place
	Target      *BlockID
	Unwind      *BlockID
}

func (*Goto) terminatorKind()        {}
func (*SwitchInt) terminatorKind()   {}
func (*Return) terminatorKind()      {}
func (*Unreachable) terminatorKind() {}
func (*Resume) terminatorKind()      {}
func (*Drop) terminatorKind()        {}
func (*Assert) terminatorKind()      {}
func (*Call) terminatorKind()        {}

func (*Goto) Name() string        { return "goto" }
func (*SwitchInt) Name() string   { return "switch_int" }
func (*Return) Name() string      { return "return" }
func (*Unreachable) Name() string { return "unreachable" }
func (*Resume) Name() string      { return "resume" }
func (*Drop) Name() string        { return "drop" }
func (*Assert) Name() string      { return "assert" }
func (*Call) Name() string        { return "call" }

func (t *Goto) String() string { return "goto -> " + t.Target.String() }

func (t *SwitchInt) String() string {
	arms := make([]string, 0, len(t.Targets)+1)
	for i, target := range t.Targets {
		arms = append(arms, fmt.Sprintf("%d: %s", t.Values[i], target))
	}
	arms = append(arms, "otherwise: "+t.Otherwise.String())
	return fmt.Sprintf("switchInt(%s) -> [%s]", t.Discr, strings.Join(arms, ", "))
}

func (*Return) String() string      { return "return" }
func (*Unreachable) String() string { return "unreachable" }
func (*Resume) String() string      { return "resume" }

func (t *Drop) String() string {
	return fmt.Sprintf("drop(%s) -> %s", t.Place, edges(&t.Target, t.Unwind))
}

func (t *Assert) String() string {
	cond := t.Cond.String()
	if !t.Expected {
		cond = "!" + cond
	}
	return fmt.Sprintf("assert(%s, %q) -> %s", cond, t.Msg, edges(&t.Target, t.Unwind))
}

func (t *Call) String() string {
	s := fmt.Sprintf("%s = %s(%s)", t.Destination, t.Func, joinOperands(t.Args))
	if t.Target == nil && t.Unwind == nil {
		return s
	}
	return s + " -> " + edges(t.Target, t.Unwind)
}

func edges(target, unwind *BlockID) string {
	switch {
	case target != nil && unwind != nil:
		return fmt.Sprintf("[return: %s, unwind: %s]", *target, *unwind)
	case target != nil:
		return target.String()
	case unwind != nil:
		return fmt.Sprintf("[unwind: %s]", *unwind)
	}
	return "[]"
}

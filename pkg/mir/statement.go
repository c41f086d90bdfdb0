package mir

import "fmt"

// Statement is a non-control-transferring instruction.
type Statement struct {
	Source SourceInfo
	Kind   StatementKind
}

// SourceInfo implements Instruction.
func (s *Statement) SourceInfo() SourceInfo { return s.Source }

func (s *Statement) String() string { return s.Kind.String() }

// StatementKind is implemented by the statement variants below.
type StatementKind interface {
	fmt.Stringer
	// Name is the variant mnemonic used in dumps and statistics.
	Name() string
	statementKind()
}

// Assign writes Rvalue into Place.
type Assign struct {
	Place  Place
	Rvalue Rvalue
}

// FakeRead is a borrow-checker read with no runtime effect.
type FakeRead struct{ Place Place }

// SetDiscriminant writes the variant tag of Place.
type SetDiscriminant struct {
	Place   Place
	Variant int
}

// Deinit marks Place as uninitialized.
type Deinit struct{ Place Place }

// StorageLive starts the storage of a local.
type StorageLive struct{ Local Local }

// StorageDead ends the storage of a local.
type StorageDead struct{ Local Local }

// Retag is a retag point for aliasing models.
type Retag struct{ Place Place }

// AscribeUserType records a user type annotation on Place.
type AscribeUserType struct{ Place Place }

// Coverage is a coverage counter marker.
type Coverage struct{ Counter int }

// Intrinsic is a non-diverging intrinsic that lowers to no call.
type Intrinsic struct {
	Op       string
	Operands []Operand
}

// ConstEvalCounter counts steps during constant evaluation.
type ConstEvalCounter struct{}

// Nop does nothing.
type Nop struct{}

func (*Assign) statementKind()           {}
func (*FakeRead) statementKind()         {}
func (*SetDiscriminant) statementKind()  {}
func (*Deinit) statementKind()           {}
func (*StorageLive) statementKind()      {}
func (*StorageDead) statementKind()      {}
func (*Retag) statementKind()            {}
func (*AscribeUserType) statementKind()  {}
func (*Coverage) statementKind()         {}
func (*Intrinsic) statementKind()        {}
func (*ConstEvalCounter) statementKind() {}
func (*Nop) statementKind()              {}

func (*Assign) Name() string           { return "assign" }
func (*FakeRead) Name() string         { return "fake_read" }
func (*SetDiscriminant) Name() string  { return "set_discriminant" }
func (*Deinit) Name() string           { return "deinit" }
func (*StorageLive) Name() string      { return "storage_live" }
func (*StorageDead) Name() string      { return "storage_dead" }
func (*Retag) Name() string            { return "retag" }
func (*AscribeUserType) Name() string  { return "ascribe_user_type" }
func (*Coverage) Name() string         { return "coverage" }
func (*Intrinsic) Name() string        { return "intrinsic" }
func (*ConstEvalCounter) Name() string { return "const_eval_counter" }
func (*Nop) Name() string              { return "nop" }

func (s *Assign) String() string          { return fmt.Sprintf("%s = %s", s.Place, s.Rvalue) }
func (s *FakeRead) String() string        { return fmt.Sprintf("FakeRead(%s)", s.Place) }
func (s *SetDiscriminant) String() string { return fmt.Sprintf("discriminant(%s) = %d", s.Place, s.Variant) }
func (s *Deinit) String() string          { return fmt.Sprintf("Deinit(%s)", s.Place) }
func (s *StorageLive) String() string     { return fmt.Sprintf("StorageLive(%s)", s.Local) }
func (s *StorageDead) String() string     { return fmt.Sprintf("StorageDead(%s)", s.Local) }
func (s *Retag) String() string           { return fmt.Sprintf("Retag(%s)", s.Place) }
func (s *AscribeUserType) String() string { return fmt.Sprintf("AscribeUserType(%s)", s.Place) }
func (s *Coverage) String() string        { return fmt.Sprintf("Coverage(%d)", s.Counter) }
func (s *Intrinsic) String() string       { return fmt.Sprintf("%s(%s)", s.Op, joinOperands(s.Operands)) }
func (*ConstEvalCounter) String() string  { return "ConstEvalCounter" }
func (*Nop) String() string               { return "nop" }

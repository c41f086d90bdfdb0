package callsite

import (
	"github.com/715d/ptafilter/internal/operands"
	"github.com/715d/ptafilter/pkg/mir"
)

// Entry is one row of the call site table handed to code generation.
type Entry struct {
	Handle  Handle               `json:"handle" yaml:"handle"`
	Caller  mir.FuncID           `json:"caller" yaml:"caller"`
	Block   mir.BlockID          `json:"block" yaml:"block"`
	Callee  mir.FuncID           `json:"callee,omitempty" yaml:"callee,omitempty"`
	Dynamic bool                 `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
	Unsafe  bool                 `json:"unsafe,omitempty" yaml:"unsafe,omitempty"`
	Locals  []operands.RoleLocal `json:"locals" yaml:"locals"`
}

// Resolver resolves a call terminator to its target.
type Resolver interface {
	Resolve(t *mir.Terminator) (mir.FuncID, bool)
}

// Table builds the entries of arena a. unsafe reports the taint mark of a
// location and may be nil.
func Table(a *Arena, res Resolver, unsafe func(mir.Location) bool) []Entry {
	entries := make([]Entry, 0, len(a.sites))
	for i, loc := range a.sites {
		term := a.body.Instruction(loc).(*mir.Terminator)
		e := Entry{
			Handle: newHandle(a.gen, uint32(i)),
			Caller: a.body.Func,
			Block:  loc.Block,
			Locals: operands.Callsite(term),
		}
		if callee, ok := res.Resolve(term); ok {
			e.Callee = callee
		} else {
			e.Dynamic = true
		}
		if unsafe != nil {
			e.Unsafe = unsafe(loc)
		}
		entries = append(entries, e)
	}
	return entries
}

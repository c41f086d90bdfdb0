// Package ptafilter narrows the input of a points-to analysis to the locals
// that unsafe code touches.
//
// The pass works in two steps over one body. Classify marks every
// instruction that sits in an unsafe lexical scope. Filter extracts the
// locals of each marked instruction and clears their Safe flag, which tells
// the points-to analysis to track them precisely. Locals touched only by
// safe code, or only by marked instructions whose operands cannot be
// determined, stay Safe.
package ptafilter

import (
	"github.com/715d/ptafilter/internal/operands"
	"github.com/715d/ptafilter/internal/scope"
	"github.com/715d/ptafilter/pkg/mir"
)

// MinOptLevel is the highest optimization level at which the pass is skipped.
const MinOptLevel = 0

// Pass is the classify-then-filter analysis. The zero value is ready to use
// and holds no state between bodies.
type Pass struct{}

// Enabled reports whether the pass runs at optLevel.
func (Pass) Enabled(optLevel int) bool { return optLevel > MinOptLevel }

// Classify marks every instruction of body that originates in an unsafe
// scope. Visiting order is block order, statements then the terminator.
func (Pass) Classify(body *mir.Body) *Marks {
	m := newMarks(body)
	for loc, inst := range body.Instructions() {
		m.set(loc, scope.IsUnsafe(body, inst))
	}
	return m
}

// Filter clears the Safe flag of every local a marked instruction touches.
// Unmarked instructions are not inspected. Flags only ever go from true to
// false.
func (Pass) Filter(body *mir.Body, marks *Marks) Stats {
	var st Stats
	for loc, inst := range body.Instructions() {
		kind := mir.OpName(inst)
		st.Instructions++
		bump(&st.TotalByKind, kind)
		if !marks.Marked(loc) {
			continue
		}
		st.Unsafe++
		bump(&st.UnsafeByKind, kind)

		locals, ok := operands.Instruction(inst)
		if !ok {
			st.Indeterminate++
			continue
		}
		st.Selective++
		bump(&st.SelectiveByKind, kind)
		for _, rl := range locals {
			decl := &body.Locals[rl.Local]
			if decl.Safe {
				decl.Safe = false
				st.FlaggedLocals++
			}
		}
	}
	return st
}

// Run classifies then filters body. The marks are dropped on return.
func (p Pass) Run(body *mir.Body) Stats {
	return p.Filter(body, p.Classify(body))
}

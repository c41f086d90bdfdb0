// Package scope decides whether an instruction sits inside an explicitly
// unsafe lexical region.
package scope

import "github.com/715d/ptafilter/pkg/mir"

// IsUnsafe reports whether inst, or any scope enclosing it, is annotated
// SafetyUnsafe. SafetySafe does not stop the walk; only SafetyUnsafe
// decides, and reaching past the root yields false.
func IsUnsafe(body *mir.Body, inst mir.Instruction) bool {
	return InUnsafeScope(body, inst.SourceInfo().Scope)
}

// InUnsafeScope is IsUnsafe for a bare scope id.
func InUnsafeScope(body *mir.Body, id mir.ScopeID) bool {
	for id != mir.NoScope {
		s := &body.Scopes[id]
		if s.Safety == mir.SafetyUnsafe {
			return true
		}
		id = s.Parent
	}
	return false
}

// Depth returns the number of scopes from id up to and including the root.
func Depth(body *mir.Body, id mir.ScopeID) int {
	n := 0
	for id != mir.NoScope {
		n++
		id = body.Scopes[id].Parent
	}
	return n
}

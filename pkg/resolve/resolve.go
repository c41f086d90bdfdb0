// Package resolve maps call terminators to the concrete function they invoke.
//
// Generic callees go through an Oracle that performs instance resolution.
// Resolution never fails outward: when the oracle cannot specialize a callee
// the generic identity is returned instead.
package resolve

import (
	"fmt"
	"log/slog"

	"github.com/715d/ptafilter/pkg/mir"
)

// TypeContext is the read-only type information shared by all bodies.
type TypeContext interface {
	// IsClosure reports whether fn is a closure body. Closures are treated as
	// already concrete.
	IsClosure(fn mir.FuncID) bool
}

// Instance is a resolved function instance.
type Instance interface {
	ID() mir.FuncID
	// Devirtualize returns the instance code generation will actually call.
	Devirtualize(tcx TypeContext) Instance
}

// Oracle resolves a generic function and its type arguments to an instance.
// A nil Instance with a nil error means no further specialization exists.
type Oracle interface {
	ResolveInstance(tcx TypeContext, fn mir.FuncID, args []mir.Type) (Instance, error)
}

// Resolver answers call target queries against one oracle.
type Resolver struct {
	oracle Oracle
}

// NewResolver returns a Resolver backed by oracle.
func NewResolver(oracle Oracle) *Resolver {
	return &Resolver{oracle: oracle}
}

// Callee returns the function item a call targets, before any resolution. It
// returns false for dynamic calls and panics if t is not a call.
func Callee(t *mir.Terminator) (mir.FnDef, bool) {
	call, ok := t.Call()
	if !ok {
		panic(fmt.Sprintf("resolve: Callee on non-call terminator %q", t.Kind.Name()))
	}
	return call.Func.FnDef()
}

// Resolve returns the concrete target of call terminator t. It returns false
// when the callee is not a known function item and panics if t is not a call.
func (r *Resolver) Resolve(tcx TypeContext, t *mir.Terminator) (mir.FuncID, bool) {
	call, ok := t.Call()
	if !ok {
		panic(fmt.Sprintf("resolve: Resolve on non-call terminator %q", t.Kind.Name()))
	}
	return r.ResolveOperand(tcx, call.Func)
}

// ResolveOperand resolves a callee operand.
func (r *Resolver) ResolveOperand(tcx TypeContext, callee mir.Operand) (mir.FuncID, bool) {
	fn, ok := callee.FnDef()
	if !ok {
		return "", false
	}
	return r.ResolveFn(tcx, fn), true
}

// ResolveFn resolves a function item.
func (r *Resolver) ResolveFn(tcx TypeContext, fn mir.FnDef) mir.FuncID {
	if len(fn.Args) == 0 {
		return fn.Func
	}
	if tcx != nil && tcx.IsClosure(fn.Func) {
		return fn.Func
	}
	if r.oracle == nil {
		return fn.Func
	}
	inst, err := r.oracle.ResolveInstance(tcx, fn.Func, fn.Args)
	if err != nil {
		slog.Debug("instance resolution failed", "func", fn.Func, "args", mir.TypeArgsKey(fn.Args), "err", err)
		return fn.Func
	}
	if inst == nil {
		return fn.Func
	}
	if dv := inst.Devirtualize(tcx); dv != nil {
		return dv.ID()
	}
	return inst.ID()
}

// Bound is a Resolver fixed to one type context.
type Bound struct {
	r   *Resolver
	tcx TypeContext
}

// Bind fixes the type context of r.
func (r *Resolver) Bind(tcx TypeContext) Bound { return Bound{r: r, tcx: tcx} }

// Resolve resolves t in the bound context.
func (b Bound) Resolve(t *mir.Terminator) (mir.FuncID, bool) { return b.r.Resolve(b.tcx, t) }

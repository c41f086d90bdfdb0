// Package gofront lowers Go packages into mir bodies.
//
// Packages are loaded with golang.org/x/tools/go/packages and built into SSA
// with generic instantiation enabled. Every function of the target packages
// that has a body is lowered. Lexical scopes come from go/types; a scope is
// unsafe when a //ptafilter:unsafe directive sits on its first line or the
// line before it, or when its function carries //ptafilter:unsafe,
// //go:nocheckptr or //go:uintptrescapes.
package gofront

import (
	"errors"
	"fmt"
	"go/types"
	"log/slog"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/715d/ptafilter/internal/analysis"
	"github.com/715d/ptafilter/pkg/mir"
	"github.com/715d/ptafilter/pkg/resolve"
)

// ErrNoPackages is returned by Build when nothing is left to lower.
var ErrNoPackages = errors.New("no valid packages provided")

// Options configures lowering.
type Options struct {
	// UnsafePackageScopes marks every scope that refers to package unsafe.
	UnsafePackageScopes bool
	// Workers bounds parallel lowering. Zero or less means runtime.NumCPU.
	Workers int
}

// Program is a set of lowered Go functions. It is the type context and the
// instance oracle for its own bodies.
type Program struct {
	SSA    *ssa.Program
	Bodies []*mir.Body

	names     *analysis.NameCache
	closures  map[mir.FuncID]bool
	instances map[instanceKey]*ssa.Function
}

type instanceKey struct {
	origin mir.FuncID
	args   string
}

var (
	_ resolve.TypeContext = (*Program)(nil)
	_ resolve.Oracle      = (*Program)(nil)
)

// Build constructs SSA for pkgs and lowers the functions of target packages.
func Build(pkgs []*packages.Package, opts Options) (*Program, error) {
	validPkgs := slices.DeleteFunc(slices.Clone(pkgs), func(p *packages.Package) bool { return p == nil })
	if len(validPkgs) == 0 {
		return nil, ErrNoPackages
	}

	mode := ssa.InstantiateGenerics | ssa.BareInits
	prog, _ := ssautil.AllPackages(validPkgs, mode)
	if prog == nil {
		return nil, fmt.Errorf("build ssa program: construction failed")
	}
	prog.Build()

	contexts := map[*types.Package]*pkgContext{}
	for _, p := range validPkgs {
		if p.Types == nil || !isTargetPackage(p) {
			continue
		}
		contexts[p.Types] = newPkgContext(p)
	}

	p := &Program{
		SSA:       prog,
		names:     analysis.NewNameCache(),
		closures:  map[mir.FuncID]bool{},
		instances: map[instanceKey]*ssa.Function{},
	}

	var funcs []*ssa.Function
	for fn := range ssautil.AllFunctions(prog) {
		if !lowerable(fn) {
			continue
		}
		if _, ok := contexts[pkgOf(fn).Pkg]; !ok {
			continue
		}
		funcs = append(funcs, fn)
		id := p.names.FuncID(fn)
		if fn.Parent() != nil {
			p.closures[id] = true
		}
		if origin := fn.Origin(); origin != nil && origin != fn {
			p.instances[instanceKey{origin: p.names.FuncID(origin), args: mir.TypeArgsKey(p.names.TypeArgs(fn.TypeArgs()))}] = fn
		}
	}
	slices.SortFunc(funcs, func(a, b *ssa.Function) int {
		return strings.Compare(string(p.names.FuncID(a)), string(p.names.FuncID(b)))
	})

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	bodies := make([]*mir.Body, len(funcs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, fn := range funcs {
		g.Go(func() error {
			body, err := lowerFunction(p.names, contexts[pkgOf(fn).Pkg], fn, opts)
			if err != nil {
				return err
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("lower functions: %w", err)
	}
	p.Bodies = bodies

	slog.Debug("lowered go functions", "bodies", len(bodies), "closures", len(p.closures), "instances", len(p.instances))
	return p, nil
}

// lowerable reports whether fn is source code with a body. Instances of
// generic functions count as source; other synthetic wrappers do not.
func lowerable(fn *ssa.Function) bool {
	if fn == nil || pkgOf(fn) == nil || len(fn.Blocks) == 0 {
		return false
	}
	if fn.Synthetic == "" {
		return true
	}
	origin := fn.Origin()
	return origin != nil && origin != fn
}

// pkgOf returns the package declaring fn. Generic instances, instantiation
// wrappers and the closures inside them have no Pkg of their own and belong
// to their origin's package.
func pkgOf(fn *ssa.Function) *ssa.Package {
	for fn != nil {
		if fn.Pkg != nil {
			return fn.Pkg
		}
		if origin := fn.Origin(); origin != nil && origin != fn {
			fn = origin
			continue
		}
		fn = fn.Parent()
	}
	return nil
}

// MirProgram returns the bodies as a program.
func (p *Program) MirProgram() *mir.Program { return &mir.Program{Bodies: p.Bodies} }

// Closures returns the identities of all lowered anonymous functions, sorted.
func (p *Program) Closures() []mir.FuncID {
	out := make([]mir.FuncID, 0, len(p.closures))
	for id := range p.closures {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// IsClosure implements resolve.TypeContext.
func (p *Program) IsClosure(fn mir.FuncID) bool { return p.closures[fn] }

// ResolveInstance implements resolve.Oracle. Instantiations that SSA never
// created have no specialization.
func (p *Program) ResolveInstance(_ resolve.TypeContext, fn mir.FuncID, args []mir.Type) (resolve.Instance, error) {
	inst, ok := p.instances[instanceKey{origin: fn, args: mir.TypeArgsKey(args)}]
	if !ok {
		return nil, nil
	}
	return &Instance{fn: inst, names: p.names}, nil
}

// Instance is an SSA function created for a generic instantiation.
type Instance struct {
	fn    *ssa.Function
	names *analysis.NameCache
}

// ID implements resolve.Instance.
func (i *Instance) ID() mir.FuncID { return i.names.FuncID(i.fn) }

// Devirtualize implements resolve.Instance. An instantiation wrapper still
// has type parameters in its arguments and shares its generic origin's
// body, so it resolves to the origin.
func (i *Instance) Devirtualize(resolve.TypeContext) resolve.Instance {
	if strings.HasPrefix(i.fn.Synthetic, "instantiation wrapper") {
		return &Instance{fn: i.fn.Origin(), names: i.names}
	}
	return i
}

// SSAFunction returns the instance's SSA function.
func (i *Instance) SSAFunction() *ssa.Function { return i.fn }

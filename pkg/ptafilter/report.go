package ptafilter

import (
	"errors"
	"fmt"
	"time"

	"github.com/715d/ptafilter/pkg/callgraph"
	"github.com/715d/ptafilter/pkg/callsite"
	"github.com/715d/ptafilter/pkg/mir"
)

// LocalReport is the post-filter state of one local.
type LocalReport struct {
	Local        mir.Local `json:"local" yaml:"local"`
	Name         string    `json:"name,omitempty" yaml:"name,omitempty"`
	Type         string    `json:"type" yaml:"type"`
	Safe         bool      `json:"safe" yaml:"safe"`
	Arg          bool      `json:"arg,omitempty" yaml:"arg,omitempty"`
	NonPrimitive bool      `json:"non_primitive,omitempty" yaml:"non_primitive,omitempty"`
}

// BodyReport is the outcome for one body.
type BodyReport struct {
	Func   mir.FuncID    `json:"func" yaml:"func"`
	Locals []LocalReport `json:"locals" yaml:"locals"`
	Stats  Stats         `json:"stats" yaml:"stats"`
}

func newBodyReport(body *mir.Body, st Stats) BodyReport {
	r := BodyReport{Func: body.Func, Stats: st, Locals: make([]LocalReport, len(body.Locals))}
	for i, decl := range body.Locals {
		l := mir.Local(i)
		r.Locals[i] = LocalReport{
			Local:        l,
			Name:         decl.Name,
			Type:         decl.Ty.String(),
			Safe:         decl.Safe,
			Arg:          body.IsArg(l),
			NonPrimitive: body.IsNonPrimitive(l),
		}
	}
	return r
}

// Tracked returns the locals the points-to analysis must track precisely.
func (b BodyReport) Tracked() []LocalReport {
	var out []LocalReport
	for _, l := range b.Locals {
		if !l.Safe {
			out = append(out, l)
		}
	}
	return out
}

// Report is the outcome of Analyzer.Analyze.
type Report struct {
	Enabled   bool             `json:"enabled" yaml:"enabled"`
	Bodies    []BodyReport     `json:"bodies" yaml:"bodies"`
	Totals    Stats            `json:"totals" yaml:"totals"`
	CallSites []callsite.Entry `json:"callsites" yaml:"callsites"`
	Graph     *callgraph.Graph `json:"-" yaml:"-"`
	Duration  time.Duration    `json:"duration" yaml:"-"`

	arenas   []*callsite.Arena
	registry *callsite.Registry
}

// Body returns the report of fn.
func (r *Report) Body(fn mir.FuncID) (BodyReport, bool) {
	for _, b := range r.Bodies {
		if b.Func == fn {
			return b, true
		}
	}
	return BodyReport{}, false
}

// Verify decodes every call site handle of the report and checks that it
// still names the call it was issued for.
func (r *Report) Verify() error {
	var errs []error
	for _, e := range r.CallSites {
		site, err := r.registry.Decode(e.Handle)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if site.Body.Func != e.Caller || site.Location.Block != e.Block {
			errs = append(errs, fmt.Errorf("handle %s decodes to %s %s, want %s %s",
				e.Handle, site.Body.Func, site.Location.Block, e.Caller, e.Block))
		}
	}
	return errors.Join(errs...)
}

// Release invalidates every handle the report holds. Bodies may be discarded
// afterwards.
func (r *Report) Release() {
	for _, a := range r.arenas {
		r.registry.Release(a)
	}
	r.arenas = nil
}

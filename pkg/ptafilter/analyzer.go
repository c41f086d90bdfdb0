package ptafilter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/715d/ptafilter/pkg/callgraph"
	"github.com/715d/ptafilter/pkg/callsite"
	"github.com/715d/ptafilter/pkg/mir"
	"github.com/715d/ptafilter/pkg/resolve"
)

// AnalyzerOptions holds configuration options for the analyzer.
type AnalyzerOptions struct {
	OptLevel int // the pass is skipped at or below MinOptLevel
	Workers  int // bodies processed in parallel; zero means NumCPU
}

// Unit is the input of one analysis run.
type Unit struct {
	Bodies  []*mir.Body
	Context resolve.TypeContext
	Oracle  resolve.Oracle
}

// Analyzer runs the pass over many bodies and assembles a Report.
type Analyzer struct {
	opts     AnalyzerOptions
	pass     Pass
	registry *callsite.Registry
}

// NewAnalyzer creates a new analyzer with the given options.
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	if opts.Workers <= 0 {
		opts.Workers = goruntime.NumCPU()
	}
	return &Analyzer{opts: opts, registry: callsite.NewRegistry()}
}

// Registry returns the callsite registry handles in reports are issued by.
func (a *Analyzer) Registry() *callsite.Registry { return a.registry }

type bodyResult struct {
	report BodyReport
	arena  *callsite.Arena
	sites  []callsite.Entry
}

// ErrNoBodies is returned by Analyze for an empty unit.
var ErrNoBodies = errors.New("no bodies provided")

// Analyze filters every body of u in place and reports the outcome. Bodies
// are independent; each is processed by exactly one worker, start to finish.
// Cancellation is observed between bodies.
func (a *Analyzer) Analyze(ctx context.Context, u Unit) (*Report, error) {
	if len(u.Bodies) == 0 {
		return nil, ErrNoBodies
	}
	start := time.Now()
	enabled := a.pass.Enabled(a.opts.OptLevel)
	if !enabled {
		slog.Debug("pta filter disabled", "opt_level", a.opts.OptLevel, "min", MinOptLevel)
	}

	// Bodies are filtered in place, so nothing runs until all of them are
	// known to be well formed.
	for _, body := range u.Bodies {
		if err := body.Validate(); err != nil {
			return nil, fmt.Errorf("validate %s: %w", body.Func, err)
		}
	}

	oracle := u.Oracle
	if oracle != nil {
		oracle = resolve.NewCachingOracle(oracle)
	}
	res := resolve.NewResolver(oracle).Bind(u.Context)

	// Each goroutine writes only its own slot; Wait orders the reads below.
	results := make([]bodyResult, len(u.Bodies))
	var flagged int64

	wg, gctx := errgroup.WithContext(ctx)
	wg.SetLimit(a.opts.Workers)
	for idx, body := range u.Bodies {
		wg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var marks *Marks
			var st Stats
			if enabled {
				marks = a.pass.Classify(body)
				st = a.pass.Filter(body, marks)
			}
			arena := a.registry.Register(body)
			var marked func(mir.Location) bool
			if marks != nil {
				marked = marks.Marked
			}
			results[idx] = bodyResult{
				report: newBodyReport(body, st),
				arena:  arena,
				sites:  callsite.Table(arena, res, marked),
			}
			atomic.AddInt64(&flagged, int64(st.FlaggedLocals))
			slog.Debug("filtered body", "func", body.Func, "unsafe", st.Unsafe, "flagged", st.FlaggedLocals)
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		for _, r := range results {
			if r.arena != nil {
				a.registry.Release(r.arena)
			}
		}
		return nil, fmt.Errorf("analyze bodies: %w", err)
	}

	rep := &Report{Enabled: enabled}
	arenas := make([]*callsite.Arena, 0, len(results))
	for _, r := range results {
		rep.Bodies = append(rep.Bodies, r.report)
		rep.Totals.Add(r.report.Stats)
		rep.CallSites = append(rep.CallSites, r.sites...)
		arenas = append(arenas, r.arena)
	}
	slices.SortStableFunc(rep.Bodies, func(x, y BodyReport) int { return cmp.Compare(x.Func, y.Func) })
	rep.Graph = callgraph.Build(arenas, res)
	rep.arenas = arenas
	rep.registry = a.registry
	rep.Duration = time.Since(start)

	slog.Debug("analysis completed", "bodies", len(rep.Bodies), "flagged", flagged, "dur", rep.Duration)
	return rep, nil
}

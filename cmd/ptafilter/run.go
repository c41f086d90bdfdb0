package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/ptafilter/pkg/gofront"
	"github.com/715d/ptafilter/pkg/mir"
	"github.com/715d/ptafilter/pkg/mirfile"
	"github.com/715d/ptafilter/pkg/ptafilter"
	"github.com/715d/ptafilter/pkg/resolve"
)

// session is one loaded and analyzed input set.
type session struct {
	unit     ptafilter.Unit
	closures []mir.FuncID
	report   *ptafilter.Report
}

var errMixedInputs = errors.New("inputs mix mirfiles and Go packages")

func isMirfile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func analyze(cmd *cobra.Command, args []string) (*session, error) {
	inputs := args
	if len(inputs) == 0 {
		inputs = []string{"./..."}
	}
	cfg.Inputs = inputs

	start := time.Now()
	s, err := load(cmd.Context(), inputs)
	if err != nil {
		return nil, errWithCode(fmt.Errorf("load inputs: %w", err), exitError)
	}
	slog.Info("loaded bodies", "num", len(s.unit.Bodies), "dur", time.Since(start))

	analyzer := ptafilter.NewAnalyzer(ptafilter.AnalyzerOptions{
		OptLevel: cfg.OptLevel,
		Workers:  cfg.Workers,
	})
	s.report, err = analyzer.Analyze(cmd.Context(), s.unit)
	if err != nil {
		return nil, errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}
	slog.Info("analysis completed",
		"enabled", s.report.Enabled,
		"flagged_locals", s.report.Totals.FlaggedLocals,
		"callsites", len(s.report.CallSites),
		"dur", s.report.Duration)
	return s, nil
}

// load reads mirfiles or Go packages. The two kinds cannot be mixed, since
// each frontend is the type context of its own bodies only.
func load(ctx context.Context, inputs []string) (*session, error) {
	n := 0
	for _, in := range inputs {
		if isMirfile(in) {
			n++
		}
	}
	switch n {
	case 0:
		return loadPackages(ctx, inputs)
	case len(inputs):
		return loadMirfiles(inputs)
	}
	return nil, errMixedInputs
}

func loadPackages(ctx context.Context, patterns []string) (*session, error) {
	slog.Info("loading packages", "packages", patterns)
	if len(cfg.BuildTags) > 0 {
		slog.Info("using build tags", "tags", cfg.BuildTags)
	}
	pkgs, err := gofront.Load(ctx, gofront.LoaderOptions{
		Packages:  patterns,
		BuildTags: cfg.BuildTags,
		Tests:     true,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("loaded packages", "num", len(pkgs))

	prog, err := gofront.Build(pkgs, gofront.Options{
		UnsafePackageScopes: cfg.UnsafePkg,
		Workers:             cfg.Workers,
	})
	if err != nil {
		return nil, err
	}
	return &session{
		unit:     ptafilter.Unit{Bodies: prog.Bodies, Context: prog, Oracle: prog},
		closures: prog.Closures(),
	}, nil
}

func loadMirfiles(paths []string) (*session, error) {
	var files mirfiles
	seen := map[mir.FuncID]string{}
	var bodies []*mir.Body
	for _, path := range paths {
		f, err := mirfile.Load(path)
		if err != nil {
			return nil, err
		}
		for _, b := range f.Bodies {
			if prev, ok := seen[b.Func]; ok {
				return nil, fmt.Errorf("%s: body %s already defined in %s", path, b.Func, prev)
			}
			seen[b.Func] = path
		}
		bodies = append(bodies, f.Bodies...)
		files = append(files, f)
	}
	return &session{
		unit:     ptafilter.Unit{Bodies: bodies, Context: files, Oracle: files},
		closures: files.closures(),
	}, nil
}

// mirfiles answers type context and instance queries from several files. The
// first file that knows an instantiation wins.
type mirfiles []*mirfile.File

var (
	_ resolve.TypeContext = mirfiles(nil)
	_ resolve.Oracle      = mirfiles(nil)
)

func (m mirfiles) IsClosure(fn mir.FuncID) bool {
	return slices.ContainsFunc(m, func(f *mirfile.File) bool { return f.IsClosure(fn) })
}

func (m mirfiles) ResolveInstance(tcx resolve.TypeContext, fn mir.FuncID, args []mir.Type) (resolve.Instance, error) {
	for _, f := range m {
		inst, err := f.ResolveInstance(tcx, fn, args)
		if err != nil || inst != nil {
			return inst, err
		}
	}
	return nil, nil
}

func (m mirfiles) closures() []mir.FuncID {
	var out []mir.FuncID
	for _, f := range m {
		out = append(out, f.Closures()...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

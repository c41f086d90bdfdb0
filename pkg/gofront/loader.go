package gofront

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/tools/go/packages"
)

// defaultLoadMode specifies the packages.Mode flags needed to build SSA and
// to map instructions back to their lexical scopes. NeedTypesInfo is
// required for both and is the dominant memory cost.
const defaultLoadMode = packages.NeedDeps |
	packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedModule

// LoaderOptions configures package loading behavior.
type LoaderOptions struct {
	// Packages are the package patterns to load.
	Packages []string

	// BuildTags are build tags to apply during loading.
	BuildTags []string

	// Dir is the directory to load packages from.
	// If empty, uses the current working directory.
	Dir string

	// Env is the environment to use for loading.
	// If nil, the current process environment is used.
	Env []string

	// Tests also loads test variants of the packages.
	Tests bool
}

// Load loads Go packages for lowering.
func Load(ctx context.Context, opts LoaderOptions) ([]*packages.Package, error) {
	patterns := opts.Packages
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	cfg := &packages.Config{
		Context: ctx,
		Mode:    defaultLoadMode,
		Tests:   opts.Tests,
		Env:     opts.Env,
		Dir:     opts.Dir,
	}
	if len(opts.BuildTags) > 0 {
		cfg.BuildFlags = append(cfg.BuildFlags, "-tags", strings.Join(opts.BuildTags, ","))
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found matching patterns: %v", patterns)
	}

	var errorMessages []string
	for _, pkg := range pkgs {
		for _, err := range pkg.Errors {
			errorMessages = append(errorMessages, fmt.Sprintf("package %s: %v", pkg.PkgPath, err))
		}
	}
	if len(errorMessages) > 0 {
		return nil, fmt.Errorf("package errors:\n%s", strings.Join(errorMessages, "\n"))
	}

	return deduplicatePackages(pkgs), nil
}

// deduplicatePackages keeps one package per import path, preferring test
// variants (IDs containing "[...]"), which are supersets of the regular
// package. Synthesized test mains are dropped.
func deduplicatePackages(pkgs []*packages.Package) []*packages.Package {
	best := make(map[string]*packages.Package)
	for _, pkg := range pkgs {
		if strings.HasSuffix(pkg.ID, ".test") && !strings.Contains(pkg.ID, "[") {
			continue
		}
		existing, exists := best[pkg.PkgPath]
		if !exists || isSuperset(pkg, existing) {
			best[pkg.PkgPath] = pkg
		}
	}
	out := slices.Collect(maps.Values(best))
	slices.SortFunc(out, func(a, b *packages.Package) int { return strings.Compare(a.PkgPath, b.PkgPath) })
	return out
}

func isSuperset(pkg, existing *packages.Package) bool {
	return strings.Contains(pkg.ID, "[") && !strings.Contains(existing.ID, "[")
}

// Package harness provides test harness infrastructure for validating the
// filter against recorded cases under testdata.
package harness

import "github.com/715d/ptafilter/pkg/mir"

// Source selects how a test case's input is loaded.
type Source string

const (
	// SourceMIR reads input.yaml with the mirfile frontend.
	SourceMIR Source = "mir"
	// SourceGo loads the Go packages of the case directory.
	SourceGo Source = "go"
)

// TestCase represents a single test scenario.
type TestCase struct {
	// Dir is the directory containing the test input.
	Dir string `yaml:"-"`

	// Source selects the frontend. Empty means SourceMIR.
	Source Source `yaml:"source,omitempty"`

	// Configurations defines the analysis runs to validate.
	Configurations []Configuration `yaml:"configurations"`
}

// Configuration represents a single analysis run over a test case.
type Configuration struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name"`

	// OptLevel gates the pass. Nil means the command-line default.
	OptLevel *int `yaml:"opt_level,omitempty"`

	// UnsafePkg treats Go scopes that refer to package unsafe as unsafe.
	UnsafePkg bool `yaml:"unsafe_pkg,omitempty"`

	// BuildTags are the build tags to use when loading Go packages.
	BuildTags []string `yaml:"build_tags,omitempty"`

	// Exact requires every body not listed in Bodies to track nothing.
	Exact bool `yaml:"exact,omitempty"`

	// Bodies lists the expected post-filter state per function.
	Bodies []ExpectedBody `yaml:"bodies"`

	// Stats are the expected totals. Absent counters are not checked.
	Stats *ExpectedStats `yaml:"stats,omitempty"`

	// CallSites must each match one entry of the call site table.
	CallSites []ExpectedCallSite `yaml:"callsites,omitempty"`

	// Cycles are the expected recursion cycles of the call graph, if set.
	Cycles [][]mir.FuncID `yaml:"cycles,omitempty"`

	// Reachable maps a root to the functions it must reach.
	Reachable map[mir.FuncID][]mir.FuncID `yaml:"reachable,omitempty"`

	// ExpectedErrors lists error substrings that make the run pass.
	ExpectedErrors []string `yaml:"expected_errors,omitempty"`
}

// ExpectedBody is the expected outcome for one function.
//
// Without Includes or Excludes, Tracked is the exact set of locals that must
// end up tracked. Entries name a local by id ("_2") or by its debug name.
type ExpectedBody struct {
	Func     mir.FuncID `yaml:"func"`
	Tracked  []string   `yaml:"tracked,omitempty"`
	Includes []string   `yaml:"includes,omitempty"`
	Excludes []string   `yaml:"excludes,omitempty"`
	Reason   string     `yaml:"reason,omitempty"`
}

// ExpectedStats are the totals of a run.
type ExpectedStats struct {
	Instructions  *int `yaml:"instructions,omitempty"`
	Unsafe        *int `yaml:"unsafe,omitempty"`
	Selective     *int `yaml:"selective,omitempty"`
	Indeterminate *int `yaml:"indeterminate,omitempty"`
	FlaggedLocals *int `yaml:"flagged_locals,omitempty"`
}

// ExpectedCallSite is one expected row of the call site table. Callee empty
// with Dynamic false leaves the target unchecked; Locals nil leaves the
// locals unchecked.
type ExpectedCallSite struct {
	Caller  mir.FuncID  `yaml:"caller"`
	Block   mir.BlockID `yaml:"block"`
	Callee  mir.FuncID  `yaml:"callee,omitempty"`
	Dynamic bool        `yaml:"dynamic,omitempty"`
	Unsafe  *bool       `yaml:"unsafe,omitempty"`
	Locals  []string    `yaml:"locals,omitempty"`
}

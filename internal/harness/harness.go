package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/ptafilter/internal/config"
	"github.com/715d/ptafilter/pkg/callsite"
	"github.com/715d/ptafilter/pkg/mir"
	"github.com/715d/ptafilter/pkg/ptafilter"
)

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// ConfigurationResult represents the result of running a single configuration.
type ConfigurationResult struct {
	// Configuration is the configuration that was run.
	Configuration Configuration

	// Report is the raw result from the analyzer.
	Report *ptafilter.Report

	// Success indicates if this configuration passed.
	Success bool

	// Message provides a summary of the result for this configuration.
	Message string

	// Details provides detailed information about failures for this configuration.
	Details []string
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// ConfigurationResults contains results for each configuration.
	ConfigurationResults []ConfigurationResult

	// Success indicates if the test passed (all configurations passed)
	Success bool

	// Message provides a summary of the result.
	Message string
}

// Run executes a test case with all its configurations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Configurations, "test case has no configurations")

	var results []ConfigurationResult
	var allSuccess = true

	for _, cfg := range tc.Configurations {
		cfgResult := h.runConfiguration(t, tc, cfg)
		results = append(results, *cfgResult)
		if !cfgResult.Success {
			allSuccess = false
		}
	}

	var resultMsg string
	if allSuccess {
		resultMsg = fmt.Sprintf("All %d configurations passed", len(tc.Configurations))
	} else {
		failedCount := 0
		var msgs []string
		for _, cr := range results {
			if !cr.Success {
				failedCount++
				msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s",
					cr.Configuration.Name, cr.Message, strings.Join(cr.Details, "\n  ")))
			}
		}
		resultMsg = fmt.Sprintf("%d/%d configurations failed:\n%s",
			failedCount, len(tc.Configurations), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:             tc,
		ConfigurationResults: results,
		Success:              allSuccess,
		Message:              resultMsg,
	}
}

// runConfiguration loads the case input afresh, since filtering mutates it,
// and analyzes it.
func (h *TestHarness) runConfiguration(t *testing.T, tc *TestCase, cfg Configuration) *ConfigurationResult {
	t.Helper()
	unit, err := LoadUnit(t, h.root, tc, cfg)
	if err == nil {
		optLevel := config.DefaultOptLevel
		if cfg.OptLevel != nil {
			optLevel = *cfg.OptLevel
		}
		analyzer := ptafilter.NewAnalyzer(ptafilter.AnalyzerOptions{OptLevel: optLevel, Workers: 2})
		var rep *ptafilter.Report
		rep, err = analyzer.Analyze(t.Context(), unit)
		if err == nil {
			t.Cleanup(rep.Release)
			return validateConfiguration(cfg, rep)
		}
	}

	// Check if this error was expected.
	for _, expectedErr := range cfg.ExpectedErrors {
		if strings.Contains(err.Error(), expectedErr) {
			return &ConfigurationResult{
				Configuration: cfg,
				Success:       true,
				Message:       fmt.Sprintf("Got expected error: %v", err),
			}
		}
	}
	require.NoError(t, err)
	return nil
}

// validateConfiguration compares a report with the expectations of cfg.
func validateConfiguration(cfg Configuration, rep *ptafilter.Report) *ConfigurationResult {
	res := &ConfigurationResult{Configuration: cfg, Report: rep}

	if err := validateExpectedBodies(cfg.Bodies); err != nil {
		res.Message = fmt.Sprintf("Invalid expected.yaml: %v", err)
		res.Details = []string{err.Error()}
		return res
	}
	if len(cfg.ExpectedErrors) > 0 {
		res.Message = "Expected an error, got none"
		res.Details = slices.Clone(cfg.ExpectedErrors)
		return res
	}

	var details []string
	details = append(details, validateBodies(cfg, rep)...)
	details = append(details, validateStats(cfg.Stats, rep.Totals)...)
	details = append(details, validateCallSites(cfg.CallSites, rep.CallSites)...)
	details = append(details, validateGraph(cfg, rep)...)
	if err := rep.Verify(); err != nil {
		details = append(details, "Handle verification failed: "+err.Error())
	}

	res.Details = details
	res.Success = len(details) == 0
	if res.Success {
		res.Message = fmt.Sprintf("All %d expected bodies matched", len(cfg.Bodies))
	} else {
		res.Message = fmt.Sprintf("Test failed: %d mismatches", len(details))
	}
	return res
}

// validateExpectedBodies validates that expected bodies have required fields
func validateExpectedBodies(expected []ExpectedBody) error {
	seen := map[mir.FuncID]bool{}
	for i, exp := range expected {
		if strings.TrimSpace(string(exp.Func)) == "" {
			return fmt.Errorf("expected body at index %d has empty or missing 'func' field", i)
		}
		if seen[exp.Func] {
			return fmt.Errorf("expected body %s is listed twice", exp.Func)
		}
		seen[exp.Func] = true
		if len(exp.Tracked) > 0 && (len(exp.Includes) > 0 || len(exp.Excludes) > 0) {
			return fmt.Errorf("expected body %s mixes 'tracked' with 'includes'/'excludes'", exp.Func)
		}
	}
	return nil
}

// matches reports whether label names l by id or by debug name.
func matches(label string, l ptafilter.LocalReport) bool {
	return label == l.Local.String() || (l.Name != "" && label == l.Name)
}

func findLocal(label string, locals []ptafilter.LocalReport) (ptafilter.LocalReport, bool) {
	for _, l := range locals {
		if matches(label, l) {
			return l, true
		}
	}
	return ptafilter.LocalReport{}, false
}

func validateBodies(cfg Configuration, rep *ptafilter.Report) []string {
	var details []string
	listed := map[mir.FuncID]bool{}

	for _, exp := range cfg.Bodies {
		listed[exp.Func] = true
		body, ok := rep.Body(exp.Func)
		if !ok {
			details = append(details, fmt.Sprintf("No body for %s", exp.Func))
			continue
		}

		if len(exp.Includes) > 0 || len(exp.Excludes) > 0 {
			details = append(details, validateSubset(exp, body)...)
			continue
		}
		details = append(details, validateExact(exp, body)...)
	}

	if cfg.Exact {
		for _, b := range rep.Bodies {
			if listed[b.Func] {
				continue
			}
			for _, l := range b.Tracked() {
				details = append(details, fmt.Sprintf("Should have stayed safe: %s %s", b.Func, l.Local))
			}
		}
	}
	return details
}

func validateExact(exp ExpectedBody, body ptafilter.BodyReport) []string {
	want := map[mir.Local]bool{}
	var details []string
	for _, label := range exp.Tracked {
		l, ok := findLocal(label, body.Locals)
		if !ok {
			details = append(details, fmt.Sprintf("%s has no local %q", exp.Func, label))
			continue
		}
		want[l.Local] = true
	}

	var missing, unexpected []string
	for _, l := range body.Locals {
		switch {
		case want[l.Local] && l.Safe:
			missing = append(missing, l.Local.String())
		case !want[l.Local] && !l.Safe:
			unexpected = append(unexpected, l.Local.String())
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	for _, m := range missing {
		details = append(details, fmt.Sprintf("Should have been tracked: %s %s (%s)", exp.Func, m, exp.Reason))
	}
	for _, u := range unexpected {
		details = append(details, fmt.Sprintf("Should have stayed safe: %s %s", exp.Func, u))
	}
	return details
}

func validateSubset(exp ExpectedBody, body ptafilter.BodyReport) []string {
	var details []string
	for _, label := range exp.Includes {
		l, ok := findLocal(label, body.Locals)
		switch {
		case !ok:
			details = append(details, fmt.Sprintf("%s has no local %q", exp.Func, label))
		case l.Safe:
			details = append(details, fmt.Sprintf("Should have been tracked: %s %s (%s)", exp.Func, label, exp.Reason))
		}
	}
	for _, label := range exp.Excludes {
		l, ok := findLocal(label, body.Locals)
		switch {
		case !ok:
			details = append(details, fmt.Sprintf("%s has no local %q", exp.Func, label))
		case !l.Safe:
			details = append(details, fmt.Sprintf("Should have stayed safe: %s %s", exp.Func, label))
		}
	}
	return details
}

func validateStats(exp *ExpectedStats, got ptafilter.Stats) []string {
	if exp == nil {
		return nil
	}
	var details []string
	check := func(name string, want *int, have int) {
		if want != nil && *want != have {
			details = append(details, fmt.Sprintf("Stat %s: expected %d, got %d", name, *want, have))
		}
	}
	check("instructions", exp.Instructions, got.Instructions)
	check("unsafe", exp.Unsafe, got.Unsafe)
	check("selective", exp.Selective, got.Selective)
	check("indeterminate", exp.Indeterminate, got.Indeterminate)
	check("flagged_locals", exp.FlaggedLocals, got.FlaggedLocals)
	return details
}

func callSiteLocals(e callsite.Entry) []string {
	out := make([]string, len(e.Locals))
	for i, rl := range e.Locals {
		out[i] = rl.String()
	}
	return out
}

func validateCallSites(expected []ExpectedCallSite, actual []callsite.Entry) []string {
	var details []string
	for _, exp := range expected {
		idx := slices.IndexFunc(actual, func(e callsite.Entry) bool {
			return e.Caller == exp.Caller && e.Block == exp.Block
		})
		if idx < 0 {
			details = append(details, fmt.Sprintf("No call site %s %s", exp.Caller, exp.Block))
			continue
		}
		got := actual[idx]
		if exp.Dynamic != got.Dynamic {
			details = append(details, fmt.Sprintf("Call site %s %s: expected dynamic=%t", exp.Caller, exp.Block, exp.Dynamic))
		}
		if exp.Callee != "" && exp.Callee != got.Callee {
			details = append(details, fmt.Sprintf("Call site %s %s: expected callee %s, got %s", exp.Caller, exp.Block, exp.Callee, got.Callee))
		}
		if exp.Unsafe != nil && *exp.Unsafe != got.Unsafe {
			details = append(details, fmt.Sprintf("Call site %s %s: expected unsafe=%t", exp.Caller, exp.Block, *exp.Unsafe))
		}
		if exp.Locals != nil && !slices.Equal(exp.Locals, callSiteLocals(got)) {
			details = append(details, fmt.Sprintf("Call site %s %s: expected locals %v, got %v", exp.Caller, exp.Block, exp.Locals, callSiteLocals(got)))
		}
	}
	return details
}

func validateGraph(cfg Configuration, rep *ptafilter.Report) []string {
	var details []string
	if cfg.Cycles != nil {
		got := rep.Graph.Cycles()
		if !slices.EqualFunc(cfg.Cycles, got, slices.Equal[[]mir.FuncID]) {
			details = append(details, fmt.Sprintf("Cycles: expected %v, got %v", cfg.Cycles, got))
		}
	}
	roots := make([]mir.FuncID, 0, len(cfg.Reachable))
	for root := range cfg.Reachable {
		roots = append(roots, root)
	}
	slices.Sort(roots)
	for _, root := range roots {
		got := rep.Graph.Reachable(root)
		for _, fn := range cfg.Reachable[root] {
			if !slices.Contains(got, fn) {
				details = append(details, fmt.Sprintf("%s should reach %s", root, fn))
			}
		}
	}
	return details
}

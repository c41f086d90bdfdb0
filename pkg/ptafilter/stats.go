package ptafilter

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Stats counts what one or more filter runs saw.
//
//   - Instructions: every instruction visited.
//   - Unsafe: instructions marked in the classification pass.
//   - Selective: marked instructions whose operands were extracted.
//   - Indeterminate: marked instructions whose operands were not; their
//     locals were left unflagged.
//   - FlaggedLocals: locals whose Safe flag this run cleared.
type Stats struct {
	Instructions  int `json:"instructions" yaml:"instructions"`
	Unsafe        int `json:"unsafe" yaml:"unsafe"`
	Selective     int `json:"selective" yaml:"selective"`
	Indeterminate int `json:"indeterminate" yaml:"indeterminate"`
	FlaggedLocals int `json:"flagged_locals" yaml:"flagged_locals"`

	TotalByKind     map[string]int `json:"total_by_kind,omitempty" yaml:"total_by_kind,omitempty"`
	UnsafeByKind    map[string]int `json:"unsafe_by_kind,omitempty" yaml:"unsafe_by_kind,omitempty"`
	SelectiveByKind map[string]int `json:"selective_by_kind,omitempty" yaml:"selective_by_kind,omitempty"`
}

func bump(m *map[string]int, kind string) {
	if *m == nil {
		*m = make(map[string]int)
	}
	(*m)[kind]++
}

// Add merges o into s.
func (s *Stats) Add(o Stats) {
	s.Instructions += o.Instructions
	s.Unsafe += o.Unsafe
	s.Selective += o.Selective
	s.Indeterminate += o.Indeterminate
	s.FlaggedLocals += o.FlaggedLocals
	s.TotalByKind = mergeCounts(s.TotalByKind, o.TotalByKind)
	s.UnsafeByKind = mergeCounts(s.UnsafeByKind, o.UnsafeByKind)
	s.SelectiveByKind = mergeCounts(s.SelectiveByKind, o.SelectiveByKind)
}

func mergeCounts(dst, src map[string]int) map[string]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

// Report renders the per-kind table.
func (s Stats) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %8s %8s %8s\n", "kind", "total", "unsafe", "selected")
	for _, k := range slices.Sorted(maps.Keys(s.TotalByKind)) {
		fmt.Fprintf(&b, "%-24s %8d %8d %8d\n", k, s.TotalByKind[k], s.UnsafeByKind[k], s.SelectiveByKind[k])
	}
	fmt.Fprintf(&b, "%-24s %8d %8d %8d\n", "all", s.Instructions, s.Unsafe, s.Selective)
	fmt.Fprintf(&b, "indeterminate: %d, flagged locals: %d\n", s.Indeterminate, s.FlaggedLocals)
	return b.String()
}

package ptafilter

import (
	"golang.org/x/tools/container/intsets"

	"github.com/715d/ptafilter/pkg/mir"
)

// Marks is the transient taint side table of one body. It maps every
// instruction location to a dense index and records the marked ones in a
// sparse bit set. A Marks value belongs to the pass invocation that made it.
type Marks struct {
	offsets []int
	bits    intsets.Sparse
}

func newMarks(body *mir.Body) *Marks {
	m := &Marks{offsets: make([]int, len(body.Blocks)+1)}
	for i := range body.Blocks {
		m.offsets[i+1] = m.offsets[i] + len(body.Blocks[i].Statements) + 1
	}
	return m
}

func (m *Marks) index(loc mir.Location) int {
	return m.offsets[loc.Block] + loc.Index
}

func (m *Marks) set(loc mir.Location, unsafe bool) {
	if unsafe {
		m.bits.Insert(m.index(loc))
	} else {
		m.bits.Remove(m.index(loc))
	}
}

// Marked reports whether the instruction at loc originates in an unsafe
// scope. Locations outside the body are never marked.
func (m *Marks) Marked(loc mir.Location) bool {
	b := int(loc.Block)
	if b+1 >= len(m.offsets) || loc.Index < 0 || loc.Index >= m.offsets[b+1]-m.offsets[b] {
		return false
	}
	return m.bits.Has(m.index(loc))
}

// Len returns the number of marked instructions.
func (m *Marks) Len() int { return m.bits.Len() }

// Equal reports whether m and o mark the same instructions.
func (m *Marks) Equal(o *Marks) bool { return m.bits.Equals(&o.bits) }

// Package mir models the mid-level intermediate representation of a function
// body: basic blocks of statements closed by a terminator, a flat table of
// local declarations and a tree of lexical source scopes.
//
// The package is a read-mostly view. Bodies are produced by a frontend (see
// pkg/mirfile and pkg/gofront) and borrowed by analyses for one pass at a
// time. The only field an analysis is expected to write is LocalDecl.Safe.
package mir

import (
	"fmt"
	"math"
)

// FuncID is a globally unique function identity.
type FuncID string

// Local indexes Body.Locals.
type Local uint32

// ReturnPlace is the local that holds a body's return value.
const ReturnPlace Local = 0

func (l Local) String() string { return fmt.Sprintf("_%d", uint32(l)) }

// BlockID indexes Body.Blocks.
type BlockID uint32

func (b BlockID) String() string { return fmt.Sprintf("bb%d", uint32(b)) }

// ScopeID indexes Body.Scopes.
type ScopeID uint32

// OutermostScope is the root of every body's scope tree.
const OutermostScope ScopeID = 0

// NoScope marks the absent parent of the root scope.
const NoScope ScopeID = math.MaxUint32

// Location addresses one instruction. Index equal to the number of statements
// in the block addresses the terminator.
type Location struct {
	Block BlockID
	Index int
}

func (l Location) String() string { return fmt.Sprintf("%s[%d]", l.Block, l.Index) }

// Span is a source range in a form that survives without a token.FileSet.
type Span struct {
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column int    `json:"column,omitempty" yaml:"column,omitempty"`
}

func (s Span) String() string {
	if s.File == "" && s.Line == 0 {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// SourceInfo ties an instruction to the scope and span it was lowered from.
type SourceInfo struct {
	Scope ScopeID
	Span  Span
}

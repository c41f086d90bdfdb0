package scope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/ptafilter/pkg/mir"
)

// scopes builds the tree
//
//	0 safe
//	├── 1 unsafe
//	│   └── 2 safe
//	│       └── 3 inherit
//	└── 4 inherit
//	    └── 5 safe
func scopes() *mir.Body {
	return &mir.Body{Scopes: []mir.SourceScope{
		{Parent: mir.NoScope, Safety: mir.SafetySafe},
		{Parent: 0, Safety: mir.SafetyUnsafe},
		{Parent: 1, Safety: mir.SafetySafe},
		{Parent: 2, Safety: mir.SafetyInherit},
		{Parent: 0, Safety: mir.SafetyInherit},
		{Parent: 4, Safety: mir.SafetySafe},
	}}
}

func TestIsUnsafe(t *testing.T) {
	body := scopes()
	tests := []struct {
		scope  mir.ScopeID
		unsafe bool
		depth  int
	}{
		{scope: 0, unsafe: false, depth: 1},
		{scope: 1, unsafe: true, depth: 2},
		{scope: 2, unsafe: true, depth: 3},
		{scope: 3, unsafe: true, depth: 4},
		{scope: 4, unsafe: false, depth: 2},
		{scope: 5, unsafe: false, depth: 3},
	}

	for _, tt := range tests {
		inst := &mir.Statement{Source: mir.SourceInfo{Scope: tt.scope}, Kind: &mir.Nop{}}
		require.Equal(t, tt.unsafe, IsUnsafe(body, inst), "scope %d", tt.scope)
		require.Equal(t, tt.depth, Depth(body, tt.scope), "scope %d", tt.scope)
	}
}

func TestIsUnsafeMatchesAncestorSearch(t *testing.T) {
	body := scopes()
	for id := range body.Scopes {
		want := false
		for s := mir.ScopeID(id); s != mir.NoScope; s = body.Scopes[s].Parent {
			if body.Scopes[s].Safety == mir.SafetyUnsafe {
				want = true
				break
			}
		}
		term := &mir.Terminator{Source: mir.SourceInfo{Scope: mir.ScopeID(id)}, Kind: &mir.Return{}}
		require.Equal(t, want, IsUnsafe(body, term), "scope %d", id)
	}
}

package gofront

import (
	"go/ast"
	"go/token"
	"go/types"
	"slices"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"

	"github.com/715d/ptafilter/pkg/mir"
)

// pkgContext is the per-package lowering state shared by all its functions.
type pkgContext struct {
	pkg *packages.Package
	// funcScopes are the scopes opened by function signatures. They are never
	// part of an enclosing function's tree.
	funcScopes map[*types.Scope]bool
	files      map[*token.File]*fileContext
}

type fileContext struct {
	file       *ast.File
	scope      *types.Scope
	directives lineDirectives
}

func newPkgContext(pkg *packages.Package) *pkgContext {
	pc := &pkgContext{
		pkg:        pkg,
		funcScopes: map[*types.Scope]bool{},
		files:      make(map[*token.File]*fileContext, len(pkg.Syntax)),
	}
	if pkg.TypesInfo != nil {
		for node, s := range pkg.TypesInfo.Scopes {
			if _, ok := node.(*ast.FuncType); ok {
				pc.funcScopes[s] = true
			}
		}
	}
	for _, f := range pkg.Syntax {
		tf := pkg.Fset.File(f.Pos())
		if tf == nil {
			continue
		}
		fc := &fileContext{file: f, directives: indexDirectives(pkg.Fset, f)}
		if pkg.TypesInfo != nil {
			fc.scope = pkg.TypesInfo.Scopes[f]
		}
		pc.files[tf] = fc
	}
	return pc
}

func (pc *pkgContext) file(pos token.Pos) *fileContext {
	if pc == nil || !pos.IsValid() {
		return nil
	}
	return pc.files[pc.pkg.Fset.File(pos)]
}

func (pc *pkgContext) span(pos token.Pos) mir.Span {
	if pc == nil || !pos.IsValid() {
		return mir.Span{}
	}
	p := pc.pkg.Fset.Position(pos)
	return mir.Span{File: p.Filename, Line: p.Line, Column: p.Column}
}

// scopeTree maps the go/types scopes of one function onto mir scopes.
//
// Scope 0 is the outermost enclosing function. For a closure the scopes
// between it and the closure's own signature scope follow as a chain, so an
// unsafe region around a function literal covers the literal's body. The
// function's own block scopes then hang below.
type scopeTree struct {
	pc       *pkgContext
	fc       *fileContext
	opts     Options
	own      *types.Scope
	ids      map[*types.Scope]mir.ScopeID
	children map[*types.Scope][]*types.Scope
	unsafe   map[*types.Scope]bool
	scopes   []mir.SourceScope
}

func buildScopes(pc *pkgContext, fn *ssa.Function, opts Options) *scopeTree {
	t := &scopeTree{
		pc:       pc,
		opts:     opts,
		ids:      map[*types.Scope]mir.ScopeID{},
		children: map[*types.Scope][]*types.Scope{},
		unsafe:   map[*types.Scope]bool{},
	}

	rootSafety := mir.SafetySafe
	if d := FuncDirective(topDecl(fn)); d.Unsafe() {
		rootSafety = mir.SafetyUnsafe
	}

	var sig *ast.FuncType
	switch syn := fn.Syntax().(type) {
	case *ast.FuncDecl:
		sig = syn.Type
	case *ast.FuncLit:
		sig = syn.Type
	}
	t.fc = pc.file(fn.Pos())
	if sig == nil || t.fc == nil || pc.pkg.TypesInfo == nil {
		t.scopes = []mir.SourceScope{{Parent: mir.NoScope, Safety: rootSafety, Span: pc.span(fn.Pos())}}
		return t
	}
	t.own = pc.pkg.TypesInfo.Scopes[sig]
	if t.own == nil {
		t.scopes = []mir.SourceScope{{Parent: mir.NoScope, Safety: rootSafety, Span: pc.span(fn.Pos())}}
		return t
	}

	if opts.UnsafePackageScopes {
		t.collectUnsafeUses(fn.Syntax())
	}

	var chain []*types.Scope
	for s := t.own; s != nil && s != t.fc.scope && s.Parent() != nil; s = s.Parent() {
		chain = append(chain, s)
	}
	slices.Reverse(chain)

	for i, s := range chain {
		safety := t.safety(s)
		parent := mir.NoScope
		if i == 0 {
			if rootSafety == mir.SafetyUnsafe {
				safety = mir.SafetyUnsafe
			}
		} else {
			parent = t.ids[chain[i-1]]
		}
		t.add(s, parent, safety)
	}
	t.addChildren(t.own)
	return t
}

// topDecl returns the declaration of the outermost function enclosing fn.
func topDecl(fn *ssa.Function) *ast.FuncDecl {
	for fn.Parent() != nil {
		fn = fn.Parent()
	}
	if origin := fn.Origin(); origin != nil {
		fn = origin
	}
	decl, _ := fn.Syntax().(*ast.FuncDecl)
	return decl
}

func (t *scopeTree) add(s *types.Scope, parent mir.ScopeID, safety mir.Safety) mir.ScopeID {
	id := mir.ScopeID(len(t.scopes))
	t.scopes = append(t.scopes, mir.SourceScope{Parent: parent, Safety: safety, Span: t.pc.span(s.Pos())})
	t.ids[s] = id
	return id
}

func (t *scopeTree) addChildren(s *types.Scope) {
	for i := range s.NumChildren() {
		c := s.Child(i)
		if t.pc.funcScopes[c] {
			continue
		}
		t.children[s] = append(t.children[s], c)
		t.add(c, t.ids[s], t.safety(c))
		t.addChildren(c)
	}
}

func (t *scopeTree) safety(s *types.Scope) mir.Safety {
	switch t.fc.directives.at(t.pc.pkg.Fset.Position(s.Pos()).Line) {
	case DirectiveUnsafe:
		return mir.SafetyUnsafe
	case DirectiveSafe:
		return mir.SafetySafe
	}
	if t.unsafe[s] {
		return mir.SafetyUnsafe
	}
	return mir.SafetySafe
}

// collectUnsafeUses marks the innermost scope of every reference to package
// unsafe in the function's own syntax. Nested function literals are lowered
// separately and skipped.
func (t *scopeTree) collectUnsafeUses(root ast.Node) {
	info := t.pc.pkg.TypesInfo
	ast.Inspect(root, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			return n == root
		case *ast.Ident:
			pn, ok := info.Uses[n].(*types.PkgName)
			if !ok || pn.Imported().Path() != "unsafe" {
				return true
			}
			if s := t.own.Innermost(n.Pos()); s != nil {
				t.unsafe[s] = true
			}
		}
		return true
	})
}

// scopeAt returns the mir scope of the innermost tracked scope containing pos.
func (t *scopeTree) scopeAt(pos token.Pos) (mir.ScopeID, bool) {
	if t.own == nil || !pos.IsValid() || !t.own.Contains(pos) {
		return 0, false
	}
	s := t.own
descend:
	for {
		for _, c := range t.children[s] {
			if c.Contains(pos) {
				s = c
				continue descend
			}
		}
		return t.ids[s], true
	}
}

package gofront

import (
	"go/ast"
	"go/token"
	"strings"
)

// DirectiveType represents the comment directives that affect scope safety.
type DirectiveType int

const (
	DirectiveNone DirectiveType = iota
	// DirectiveUnsafe is //ptafilter:unsafe.
	DirectiveUnsafe
	// DirectiveSafe is //ptafilter:safe.
	DirectiveSafe
	// DirectiveNocheckptr is //go:nocheckptr.
	DirectiveNocheckptr
	// DirectiveUintptrescapes is //go:uintptrescapes.
	DirectiveUintptrescapes
)

var knownDirectives = map[string]DirectiveType{
	"ptafilter:unsafe":  DirectiveUnsafe,
	"ptafilter:safe":    DirectiveSafe,
	"go:nocheckptr":     DirectiveNocheckptr,
	"go:uintptrescapes": DirectiveUintptrescapes,
}

// Unsafe reports whether the directive marks its target unsafe.
func (d DirectiveType) Unsafe() bool {
	return d == DirectiveUnsafe || d == DirectiveNocheckptr || d == DirectiveUintptrescapes
}

// ParseDirective parses one comment. Directives are exactly "//name" with no
// space after the slashes, optionally followed by a space and arguments.
func ParseDirective(comment string) DirectiveType {
	text, ok := strings.CutPrefix(comment, "//")
	if !ok || strings.HasPrefix(text, " ") {
		return DirectiveNone
	}
	name, _, _ := strings.Cut(text, " ")
	return knownDirectives[name]
}

// FuncDirective returns the first safety directive in fn's doc comment.
func FuncDirective(fn *ast.FuncDecl) DirectiveType {
	if fn == nil || fn.Doc == nil {
		return DirectiveNone
	}
	for _, c := range fn.Doc.List {
		if d := ParseDirective(c.Text); d != DirectiveNone {
			return d
		}
	}
	return DirectiveNone
}

// lineDirectives indexes the scope directives of one file by line.
type lineDirectives map[int]DirectiveType

func indexDirectives(fset *token.FileSet, file *ast.File) lineDirectives {
	idx := lineDirectives{}
	for _, group := range file.Comments {
		for _, c := range group.List {
			d := ParseDirective(c.Text)
			if d != DirectiveUnsafe && d != DirectiveSafe {
				continue
			}
			idx[fset.Position(c.Slash).Line] = d
		}
	}
	return idx
}

// at returns the directive governing a scope that starts on line: one on the
// same line wins over one on the line before.
func (idx lineDirectives) at(line int) DirectiveType {
	if d, ok := idx[line]; ok {
		return d
	}
	return idx[line-1]
}

// Package format colours terminal output.
package format

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Palette renders text in colour when its output is a terminal.
type Palette struct {
	enabled bool
}

// ForFile returns a palette that colours only when f is a terminal.
func ForFile(f *os.File) Palette {
	return Palette{enabled: f != nil && term.IsTerminal(int(f.Fd()))}
}

// Plain returns a palette that never colours.
func Plain() Palette { return Palette{} }

// Forced returns a palette that always colours.
func Forced() Palette { return Palette{enabled: true} }

// Enabled reports whether p emits escape sequences.
func (p Palette) Enabled() bool { return p.enabled }

func (p Palette) color(code string, args []any) string {
	s := fmt.Sprint(args...)
	if !p.enabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (p Palette) Faint(args ...any) string  { return p.color("2", args) }
func (p Palette) Red(args ...any) string    { return p.color("1;31", args) }
func (p Palette) Green(args ...any) string  { return p.color("1;32", args) }
func (p Palette) Yellow(args ...any) string { return p.color("1;33", args) }
func (p Palette) Blue(args ...any) string   { return p.color("1;34", args) }

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/715d/ptafilter/internal/format"
	"github.com/715d/ptafilter/pkg/callgraph"
	"github.com/715d/ptafilter/pkg/callsite"
	"github.com/715d/ptafilter/pkg/mir"
	"github.com/715d/ptafilter/pkg/mirfile"
	"github.com/715d/ptafilter/pkg/ptafilter"
)

type writer func(w io.Writer, s *session, p format.Palette) error

func writeOutput(cmd *cobra.Command, s *session, write writer) error {
	out := cmd.OutOrStdout()
	p := format.Plain()
	if f, ok := out.(*os.File); ok && !cfg.JSON {
		p = format.ForFile(f)
	}
	if cfg.Verbose && !cfg.JSON {
		fmt.Fprint(cmd.ErrOrStderr(), s.report.Totals.Report())
	}
	if err := write(out, s, p); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}
	return nil
}

type jOutput struct {
	Enabled   bool   `json:"enabled"`
	Result    any    `json:"result"`
	Stats     any    `json:"stats"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w io.Writer, s *session, result any) error {
	data, err := json.MarshalIndent(jOutput{
		Enabled:   s.report.Enabled,
		Result:    result,
		Stats:     s.report.Totals,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

type jBody struct {
	Func    mir.FuncID              `json:"func"`
	Tracked []ptafilter.LocalReport `json:"tracked"`
}

// writeFilter prints one line per body with tracked locals:
//
//	func: _1 p *int, _3 *int
func writeFilter(w io.Writer, s *session, p format.Palette) error {
	if cfg.JSON {
		bodies := make([]jBody, 0, len(s.report.Bodies))
		for _, b := range s.report.Bodies {
			if tracked := b.Tracked(); len(tracked) > 0 {
				bodies = append(bodies, jBody{Func: b.Func, Tracked: tracked})
			}
		}
		return writeJSON(w, s, bodies)
	}

	var output strings.Builder
	for _, b := range s.report.Bodies {
		tracked := b.Tracked()
		if len(tracked) == 0 {
			continue
		}
		parts := make([]string, len(tracked))
		for i, l := range tracked {
			name := l.Local.String()
			if l.Name != "" {
				name += " " + l.Name
			}
			parts[i] = p.Yellow(name) + " " + l.Type
		}
		output.WriteString(fmt.Sprintf("%s: %s\n", p.Blue(b.Func), strings.Join(parts, ", ")))
	}
	_, err := io.WriteString(w, output.String())
	return err
}

// writeDump prints every body with its unsafe instructions in red.
func writeDump(w io.Writer, s *session, p format.Palette) error {
	if cfg.JSON {
		return writeJSON(w, s, s.report.Bodies)
	}
	var pass ptafilter.Pass
	for i, body := range s.unit.Bodies {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		marks := pass.Classify(body)
		hl := func(loc mir.Location, line string) string {
			if marks.Marked(loc) {
				return p.Red(line)
			}
			return line
		}
		if err := mir.Fprint(w, body, hl); err != nil {
			return fmt.Errorf("dump %s: %w", body.Func, err)
		}
	}
	return nil
}

func writeMirfile(w io.Writer, s *session, _ format.Palette) error {
	return mirfile.Encode(w, s.unit.Bodies, s.closures)
}

type jCallGraph struct {
	Edges            []callgraph.Edge `json:"edges"`
	BottomUp         [][]mir.FuncID   `json:"bottom_up"`
	Cycles           [][]mir.FuncID   `json:"cycles"`
	ElementaryCycles [][]mir.FuncID   `json:"elementary_cycles"`
	Dynamic          int              `json:"dynamic"`
}

func writeCallGraph(w io.Writer, s *session, p format.Palette) error {
	g := s.report.Graph
	if cfg.JSON {
		return writeJSON(w, s, jCallGraph{
			Edges:            g.Edges(),
			BottomUp:         g.BottomUp(),
			Cycles:           g.Cycles(),
			ElementaryCycles: g.ElementaryCycles(),
			Dynamic:          g.Dynamic(),
		})
	}

	var output strings.Builder
	output.WriteString("edges:\n")
	for _, e := range g.Edges() {
		output.WriteString(fmt.Sprintf("  %s -> %s %s\n", e.Caller, e.Callee, p.Faint(e.Handle)))
	}
	output.WriteString("bottom-up:\n")
	for i, scc := range g.BottomUp() {
		output.WriteString(fmt.Sprintf("  %d: %s\n", i, joinFuncs(scc)))
	}
	output.WriteString("cycles:\n")
	for _, c := range g.Cycles() {
		output.WriteString(fmt.Sprintf("  %s\n", p.Red(joinFuncs(c))))
	}
	output.WriteString(fmt.Sprintf("dynamic calls: %d\n", g.Dynamic()))
	_, err := io.WriteString(w, output.String())
	return err
}

func joinFuncs(fns []mir.FuncID) string {
	parts := make([]string, len(fns))
	for i, fn := range fns {
		parts[i] = string(fn)
	}
	return strings.Join(parts, " ")
}

// writeCallSites emits the handle table as YAML, or JSON with --json.
func writeCallSites(w io.Writer, s *session, _ format.Palette) error {
	entries := s.report.CallSites
	if entries == nil {
		entries = []callsite.Entry{}
	}
	if cfg.JSON {
		return writeJSON(w, s, entries)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode call sites: %w", err)
	}
	return enc.Close()
}

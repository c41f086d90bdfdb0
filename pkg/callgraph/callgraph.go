// Package callgraph builds a static call graph over IR bodies, with one edge
// per call site whose target the resolver can determine.
package callgraph

import (
	"cmp"
	"maps"
	"slices"

	ybgraph "github.com/yourbasic/graph"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/715d/ptafilter/pkg/callsite"
	"github.com/715d/ptafilter/pkg/mir"
)

// Edge is one resolved call site.
type Edge struct {
	Caller mir.FuncID      `json:"caller" yaml:"caller"`
	Callee mir.FuncID      `json:"callee" yaml:"callee"`
	Handle callsite.Handle `json:"handle" yaml:"handle"`
}

// Graph is an immutable call graph. Node ids are dense and follow the sorted
// order of function ids, so every query is deterministic.
type Graph struct {
	funcs   []mir.FuncID
	ids     map[mir.FuncID]int64
	bodies  map[mir.FuncID]bool
	g       *simple.DirectedGraph
	adj     [][]int
	selfs   map[int64]bool
	edges   []Edge
	dynamic int
}

// Build indexes the call sites of every arena. Calls without a static target
// are counted but produce no edge.
func Build(arenas []*callsite.Arena, res callsite.Resolver) *Graph {
	type site struct {
		caller, callee mir.FuncID
		h              callsite.Handle
	}
	var sites []site
	names := map[mir.FuncID]bool{}
	c := &Graph{bodies: map[mir.FuncID]bool{}}

	for _, a := range arenas {
		body := a.Body()
		names[body.Func] = true
		c.bodies[body.Func] = true
		for _, h := range a.Handles() {
			loc, _ := a.Location(h)
			callee, ok := res.Resolve(body.Terminator(loc.Block))
			if !ok {
				c.dynamic++
				continue
			}
			names[callee] = true
			sites = append(sites, site{caller: body.Func, callee: callee, h: h})
		}
	}

	c.funcs = slices.Sorted(maps.Keys(names))
	c.ids = make(map[mir.FuncID]int64, len(c.funcs))
	c.g = simple.NewDirectedGraph()
	for i, fn := range c.funcs {
		c.ids[fn] = int64(i)
		c.g.AddNode(simple.Node(i))
	}

	c.adj = make([][]int, len(c.funcs))
	c.selfs = map[int64]bool{}
	for _, s := range sites {
		from, to := c.ids[s.caller], c.ids[s.callee]
		c.edges = append(c.edges, Edge{Caller: s.caller, Callee: s.callee, Handle: s.h})
		if !slices.Contains(c.adj[from], int(to)) {
			c.adj[from] = append(c.adj[from], int(to))
		}
		if from == to {
			// simple graphs reject self loops.
			c.selfs[from] = true
			continue
		}
		c.g.SetEdge(c.g.NewEdge(simple.Node(from), simple.Node(to)))
	}
	for _, out := range c.adj {
		slices.Sort(out)
	}
	slices.SortFunc(c.edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.Caller, b.Caller), cmp.Compare(a.Callee, b.Callee), cmp.Compare(a.Handle, b.Handle))
	})
	return c
}

// Funcs returns every node in id order.
func (c *Graph) Funcs() []mir.FuncID { return slices.Clone(c.funcs) }

// HasBody reports whether fn was one of the analyzed bodies rather than an
// external callee.
func (c *Graph) HasBody(fn mir.FuncID) bool { return c.bodies[fn] }

// Edges returns every resolved call site, sorted by caller then callee.
func (c *Graph) Edges() []Edge { return slices.Clone(c.edges) }

// Dynamic returns the number of call sites without a static target.
func (c *Graph) Dynamic() int { return c.dynamic }

// Callees returns the distinct direct callees of fn.
func (c *Graph) Callees(fn mir.FuncID) []mir.FuncID {
	id, ok := c.ids[fn]
	if !ok {
		return nil
	}
	out := make([]mir.FuncID, 0, len(c.adj[id]))
	for _, w := range c.adj[id] {
		out = append(out, c.funcs[w])
	}
	return out
}

// Reachable returns every function reachable from roots, roots included.
// Unknown roots are ignored.
func (c *Graph) Reachable(roots ...mir.FuncID) []mir.FuncID {
	seen := map[int64]bool{}
	dfs := traverse.DepthFirst{
		Visit: func(n graph.Node) { seen[n.ID()] = true },
	}
	for _, r := range roots {
		id, ok := c.ids[r]
		if !ok || seen[id] {
			continue
		}
		dfs.Walk(c.g, simple.Node(id), nil)
	}
	return c.sortedNames(seen)
}

// BottomUp returns the strongly connected components in reverse topological
// order: callees before their callers.
func (c *Graph) BottomUp() [][]mir.FuncID {
	sccs := topo.TarjanSCC(c.g)
	out := make([][]mir.FuncID, len(sccs))
	for i, scc := range sccs {
		set := make(map[int64]bool, len(scc))
		for _, n := range scc {
			set[n.ID()] = true
		}
		out[i] = c.sortedNames(set)
	}
	return out
}

// Cycles returns the recursive components: strongly connected components of
// more than one function, and functions that call themselves.
func (c *Graph) Cycles() [][]mir.FuncID {
	var out [][]mir.FuncID
	for _, comp := range ybgraph.StrongComponents(c) {
		if len(comp) == 1 && !c.selfs[int64(comp[0])] {
			continue
		}
		set := make(map[int64]bool, len(comp))
		for _, v := range comp {
			set[int64(v)] = true
		}
		out = append(out, c.sortedNames(set))
	}
	slices.SortFunc(out, func(a, b []mir.FuncID) int { return cmp.Compare(a[0], b[0]) })
	return out
}

// ElementaryCycles returns every elementary cycle of length two or more,
// each rotated to start at its smallest function.
func (c *Graph) ElementaryCycles() [][]mir.FuncID {
	var out [][]mir.FuncID
	for _, cyc := range topo.DirectedCyclesIn(c.g) {
		if len(cyc) > 1 && cyc[0].ID() == cyc[len(cyc)-1].ID() {
			cyc = cyc[:len(cyc)-1]
		}
		ids := make([]int64, len(cyc))
		for i, n := range cyc {
			ids[i] = n.ID()
		}
		start := slices.Index(ids, slices.Min(ids))
		path := make([]mir.FuncID, 0, len(ids))
		for i := range ids {
			path = append(path, c.funcs[ids[(start+i)%len(ids)]])
		}
		out = append(out, path)
	}
	slices.SortFunc(out, func(a, b []mir.FuncID) int { return slices.Compare(a, b) })
	return out
}

// Order implements the yourbasic graph.Iterator interface.
func (c *Graph) Order() int { return len(c.funcs) }

// Visit implements the yourbasic graph.Iterator interface.
func (c *Graph) Visit(v int, do func(w int, cost int64) bool) bool {
	for _, w := range c.adj[v] {
		if do(w, 1) {
			return true
		}
	}
	return false
}

func (c *Graph) sortedNames(set map[int64]bool) []mir.FuncID {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]mir.FuncID, len(ids))
	for i, id := range ids {
		out[i] = c.funcs[id]
	}
	return out
}

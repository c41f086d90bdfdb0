// Package callsite issues opaque integer handles for call terminators so that
// stages which can only pass integers can still refer to a call site.
//
// Every registered body gets an Arena that indexes its calls in block order.
// A Handle packs the arena's generation with the call's index, and decoding
// checks both, so a handle that outlives its body is reported instead of
// dereferenced.
package callsite

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/ptafilter/pkg/mir"
)

var (
	// ErrUnknownHandle is returned for handles this registry never issued.
	ErrUnknownHandle = errors.New("unknown callsite handle")
	// ErrStaleHandle is returned for handles whose arena was released or
	// whose body no longer has a call at the recorded location.
	ErrStaleHandle = errors.New("stale callsite handle")
)

// Handle identifies one call terminator: generation<<32 | index.
type Handle uint64

func newHandle(gen, idx uint32) Handle { return Handle(uint64(gen)<<32 | uint64(idx)) }

// Generation returns the arena generation encoded in h.
func (h Handle) Generation() uint32 { return uint32(h >> 32) }

// Index returns the arena index encoded in h.
func (h Handle) Index() uint32 { return uint32(h) }

func (h Handle) String() string { return fmt.Sprintf("cs#%d.%d", h.Generation(), h.Index()) }

// Site is a decoded handle.
type Site struct {
	Body       *mir.Body
	Location   mir.Location
	Terminator *mir.Terminator
	Call       *mir.Call
}

// Registry owns the arenas of all live bodies. It is safe for concurrent use.
type Registry struct {
	next   atomic.Uint32
	arenas *xsync.Map[uint32, *Arena]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{arenas: xsync.NewMap[uint32, *Arena]()}
}

// Register indexes the call sites of body under a fresh generation.
func (r *Registry) Register(body *mir.Body) *Arena {
	a := &Arena{
		gen:   r.next.Add(1),
		body:  body,
		sites: body.CallSites(),
	}
	a.index = make(map[mir.Location]uint32, len(a.sites))
	for i, loc := range a.sites {
		a.index[loc] = uint32(i)
	}
	r.arenas.Store(a.gen, a)
	return a
}

// Release invalidates every handle issued by a.
func (r *Registry) Release(a *Arena) {
	r.arenas.Delete(a.gen)
}

// Len returns the number of live arenas.
func (r *Registry) Len() int { return r.arenas.Size() }

// Decode returns the call site h refers to.
func (r *Registry) Decode(h Handle) (Site, error) {
	gen := h.Generation()
	a, ok := r.arenas.Load(gen)
	if !ok {
		if gen != 0 && gen <= r.next.Load() {
			return Site{}, fmt.Errorf("decode %s: %w", h, ErrStaleHandle)
		}
		return Site{}, fmt.Errorf("decode %s: %w", h, ErrUnknownHandle)
	}
	idx := h.Index()
	if int(idx) >= len(a.sites) {
		return Site{}, fmt.Errorf("decode %s: %w", h, ErrUnknownHandle)
	}
	loc := a.sites[idx]
	term, call, ok := callAt(a.body, loc)
	if !ok {
		return Site{}, fmt.Errorf("decode %s: %s no longer holds a call: %w", h, loc, ErrStaleHandle)
	}
	return Site{Body: a.body, Location: loc, Terminator: term, Call: call}, nil
}

func callAt(body *mir.Body, loc mir.Location) (*mir.Terminator, *mir.Call, bool) {
	if int(loc.Block) >= len(body.Blocks) {
		return nil, nil, false
	}
	bb := &body.Blocks[loc.Block]
	if loc.Index != len(bb.Statements) || bb.Terminator == nil {
		return nil, nil, false
	}
	call, ok := bb.Terminator.Call()
	return bb.Terminator, call, ok
}

// Arena holds the call sites of one body, indexed in block order.
type Arena struct {
	gen   uint32
	body  *mir.Body
	sites []mir.Location
	index map[mir.Location]uint32
}

// Body returns the body the arena indexes.
func (a *Arena) Body() *mir.Body { return a.body }

// Generation returns the arena's generation.
func (a *Arena) Generation() uint32 { return a.gen }

// Len returns the number of call sites.
func (a *Arena) Len() int { return len(a.sites) }

// Encode returns the handle of the call terminator at loc. It panics if loc
// does not address a call terminator of the arena's body.
func (a *Arena) Encode(loc mir.Location) Handle {
	idx, ok := a.index[loc]
	if !ok {
		panic(fmt.Sprintf("callsite: %s in %s is not a call terminator", loc, a.body.Func))
	}
	return newHandle(a.gen, idx)
}

// Lookup is Encode without the panic.
func (a *Arena) Lookup(loc mir.Location) (Handle, bool) {
	idx, ok := a.index[loc]
	if !ok {
		return 0, false
	}
	return newHandle(a.gen, idx), true
}

// Handles returns every handle in block order.
func (a *Arena) Handles() []Handle {
	hs := make([]Handle, len(a.sites))
	for i := range a.sites {
		hs[i] = newHandle(a.gen, uint32(i))
	}
	return hs
}

// Location returns the location handle h was issued for within this arena.
func (a *Arena) Location(h Handle) (mir.Location, bool) {
	if h.Generation() != a.gen || int(h.Index()) >= len(a.sites) {
		return mir.Location{}, false
	}
	return a.sites[h.Index()], true
}

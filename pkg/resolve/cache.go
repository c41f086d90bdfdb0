package resolve

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/ptafilter/pkg/mir"
)

type instanceKey struct {
	fn   mir.FuncID
	args string
}

type cachedInstance struct {
	inst Instance
	err  error
}

// CachingOracle memoizes another oracle. It is safe for use by parallel
// workers; concurrent misses on one key may query the inner oracle more than
// once, and the first stored answer wins.
type CachingOracle struct {
	inner  Oracle
	cache  *xsync.Map[instanceKey, cachedInstance]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingOracle wraps inner.
func NewCachingOracle(inner Oracle) *CachingOracle {
	return &CachingOracle{
		inner: inner,
		cache: xsync.NewMap[instanceKey, cachedInstance](),
	}
}

// ResolveInstance implements Oracle.
func (c *CachingOracle) ResolveInstance(tcx TypeContext, fn mir.FuncID, args []mir.Type) (Instance, error) {
	key := instanceKey{fn: fn, args: mir.TypeArgsKey(args)}
	if v, ok := c.cache.Load(key); ok {
		c.hits.Add(1)
		return v.inst, v.err
	}
	c.misses.Add(1)
	inst, err := c.inner.ResolveInstance(tcx, fn, args)
	v, _ := c.cache.LoadOrStore(key, cachedInstance{inst: inst, err: err})
	return v.inst, v.err
}

// Stats returns the number of cache hits and misses so far.
func (c *CachingOracle) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached answers.
func (c *CachingOracle) Len() int { return c.cache.Size() }

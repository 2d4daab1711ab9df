// Package memo provides a bounded, byte-keyed cache for precompile call
// results. Every precompile in this module is a pure function of its
// input (see the determinism property every precompile must satisfy), so
// memoizing by (address, input) is always sound; it exists purely as an
// optional performance layer, never as a correctness requirement.
package memo

import (
	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Cache wraps a fastcache.Cache keyed on keccak256(address || input).
type Cache struct {
	inner *fastcache.Cache
}

// New allocates a cache with a working set of roughly maxBytes.
func New(maxBytes int) *Cache {
	return &Cache{inner: fastcache.New(maxBytes)}
}

func cacheKey(addr common.Address, input []byte) []byte {
	buf := make([]byte, len(addr)+len(input))
	copy(buf, addr[:])
	copy(buf[len(addr):], input)
	return crypto.Keccak256(buf)
}

// Get returns the previously stored output for (addr, input), if present.
// Uses HasGet rather than Get so a cached zero-length output (ECRECOVER's
// empty-bytes soft failure) is reported as present instead of looking
// identical to a cache miss.
func (c *Cache) Get(addr common.Address, input []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.inner.HasGet(nil, cacheKey(addr, input))
}

// Set stores output for (addr, input), including a zero-length output.
func (c *Cache) Set(addr common.Address, input, output []byte) {
	if c == nil {
		return
	}
	c.inner.Set(cacheKey(addr, input), output)
}

// Wrap memoizes run's successful results under addr. Errors are never
// cached: a parse failure carries a message that's only useful for the
// call that produced it, and re-running a cheap failure costs nothing.
func (c *Cache) Wrap(addr common.Address, run func(input []byte, cost uint64) ([]byte, error)) func(input []byte, cost uint64) ([]byte, error) {
	if c == nil {
		return run
	}
	return func(input []byte, cost uint64) ([]byte, error) {
		if out, ok := c.Get(addr, input); ok {
			return out, nil
		}
		out, err := run(input, cost)
		if err != nil {
			return out, err
		}
		c.Set(addr, input, out)
		return out, nil
	}
}

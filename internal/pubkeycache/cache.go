// Package pubkeycache memoizes the *rsa.PublicKey constructed from an
// (e, n) pair. The RSA precompile is commonly called many times in a row
// with the same signer key (e.g. verifying a batch of DKIM-backed messages
// against one domain's key), so a small bounded cache hands back the same
// key object instead of building a new one. n is still decoded from the
// wire by the caller on every call; the cache does no validation.
package pubkeycache

import (
	"crypto/rsa"
	"math/big"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultSize bounds the number of distinct (e, n) pairs kept resident.
const DefaultSize = 256

// Cache is safe for concurrent use; the underlying LRU cache is.
type Cache struct {
	lru *lru.Cache
}

// New builds a cache holding up to size public keys. size <= 0 falls back
// to DefaultSize.
func New(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New(size)
	if err != nil {
		// lru.New only errors when size <= 0, which is excluded above.
		panic(err)
	}
	return &Cache{lru: c}
}

type key struct {
	e int
	n string
}

// Get returns the cached public key for (e, n), constructing and storing
// one if this is the first time the pair has been seen.
func (c *Cache) Get(e int, n *big.Int) *rsa.PublicKey {
	if c == nil {
		return &rsa.PublicKey{N: n, E: e}
	}
	k := key{e: e, n: n.String()}
	if v, ok := c.lru.Get(k); ok {
		return v.(*rsa.PublicKey)
	}
	pub := &rsa.PublicKey{N: n, E: e}
	c.lru.Add(k, pub)
	return pub
}

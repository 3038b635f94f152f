package symtab

import "sync"

// CachedName pairs a symbol name with its precomputed hash so repeated
// lookups of the same interned name never rehash.
type CachedName struct {
	Str  string
	Hash uint64
}

// MakeName computes the cached hash for a name.
func MakeName(s string) CachedName {
	return CachedName{Str: s, Hash: hashName(s)}
}

// hashName is FNV-1a over the raw bytes. Names are opaque byte strings;
// no normalization happens here.
func hashName(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

const shardCount = 64

type nameShard struct {
	mu sync.RWMutex
	m  map[string]*Symbol
}

// nameIndex is the concurrent map from interned name to slot pointer.
// The precomputed hash selects a shard; within a shard the built-in map
// compares length then bytes. Many inserters proceed in parallel as long
// as they hash to different shards.
//
// insert returns the slot with its mutex HELD, in both the inserted and
// the found case: every entry point needs the slot lock to apply its merge
// rules, and publishing a fresh slot while holding its lock guarantees no
// reader ever observes a half-constructed variant.
type nameIndex struct {
	pool   *pool
	shards [shardCount]nameShard
}

func newNameIndex(p *pool) *nameIndex {
	ix := &nameIndex{pool: p}
	for i := range ix.shards {
		ix.shards[i].m = make(map[string]*Symbol)
	}
	return ix
}

func (ix *nameIndex) shard(hash uint64) *nameShard {
	return &ix.shards[hash%shardCount]
}

// find is the read-only lookup. It briefly takes the slot lock so a hit
// always exposes a fully constructed variant.
func (ix *nameIndex) find(name CachedName) *Symbol {
	sh := ix.shard(name.Hash)
	sh.mu.RLock()
	s := sh.m[name.Str]
	sh.mu.RUnlock()
	if s != nil {
		// The lock round-trip orders this read after variant installation.
		s.mu.Lock()
		s.mu.Unlock() //nolint:staticcheck
	}
	return s
}

// insert is the atomic get-or-create. The returned slot's mutex is held.
func (ix *nameIndex) insert(name CachedName) (*Symbol, bool) {
	sh := ix.shard(name.Hash)

	sh.mu.RLock()
	s := sh.m[name.Str]
	sh.mu.RUnlock()
	if s != nil {
		s.mu.Lock()
		return s, false
	}

	sh.mu.Lock()
	if s = sh.m[name.Str]; s != nil {
		sh.mu.Unlock()
		s.mu.Lock()
		return s, false
	}
	s = ix.pool.alloc()
	s.name = name.Str
	s.hash = name.Hash
	s.mu.Lock()
	sh.m[name.Str] = s
	sh.mu.Unlock()
	return s, true
}

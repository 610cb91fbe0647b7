// Package hash implements a thread-safe, in-memory extendible hash table:
// bucket-level linear growth (split-on-overflow) plus directory doubling,
// serialized behind a single mutex. Grounded directly on
// _examples/original_source/src/container/hash/extendible_hash_table.cpp,
// generalized from Bustub's page_id_t/Page* template instantiations to Go
// generics over any comparable key and any value.
package hash

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// HashFunc computes the hash bustub's IndexOf masks against the current
// global depth. Callers needing spec.md's literal "hash=identity" test
// scenarios (S1, S2) supply their own, e.g. func(k int) uint64 { return uint64(k) }.
type HashFunc[K comparable] func(K) uint64

// HashInt64 is a ready-made HashFunc for int64 keys, built on xxhash.
func HashInt64(k int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	return xxhash.Sum64(buf[:])
}

// HashString is a ready-made HashFunc for string keys, built on xxhash.
func HashString(k string) uint64 { return xxhash.Sum64String(k) }

// HashBytes is a ready-made HashFunc for []byte keys, built on xxhash.
func HashBytes(k []byte) uint64 { return xxhash.Sum64(k) }

type entry[K comparable, V any] struct {
	key K
	val V
}

// bucket holds at most bucketSize entries, tagged with its local depth.
type bucket[K comparable, V any] struct {
	depth   int
	entries []entry[K, V]
}

func newBucket[K comparable, V any](depth int) *bucket[K, V] {
	return &bucket[K, V]{depth: depth}
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, e := range b.entries {
		if e.key == key {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, e := range b.entries {
		if e.key == key {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// upsert reports whether it inserted (false) or overwrote (true); it never
// fails — the caller (ExtendibleHashTable.Insert) guarantees the bucket has
// room before calling upsert for a genuinely new key.
func (b *bucket[K, V]) upsert(key K, val V) bool {
	for i, e := range b.entries {
		if e.key == key {
			b.entries[i].val = val
			return true
		}
	}
	b.entries = append(b.entries, entry[K, V]{key: key, val: val})
	return false
}

func (b *bucket[K, V]) isFull(bucketSize int) bool { return len(b.entries) >= bucketSize }

// ExtendibleHashTable is a thread-safe associative map with bucket-level
// linear growth and directory doubling, per spec.md §3.1/§4.1.
type ExtendibleHashTable[K comparable, V any] struct {
	mu          sync.Mutex
	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*bucket[K, V]
	hash        HashFunc[K]
}

// New builds a table starting at global depth 0 with one empty bucket, per
// spec.md §3.1 lifecycle. bucketSize must be positive.
func New[K comparable, V any](bucketSize int, hash HashFunc[K]) *ExtendibleHashTable[K, V] {
	if bucketSize <= 0 {
		panic("hash: bucketSize must be positive")
	}
	return &ExtendibleHashTable[K, V]{
		bucketSize: bucketSize,
		numBuckets: 1,
		dir:        []*bucket[K, V]{newBucket[K, V](0)},
		hash:       hash,
	}
}

// IndexOf computes dir[IndexOf(key)]'s slot, per spec.md's
// hash(K) & ((1 << global_depth) - 1).
func (t *ExtendibleHashTable[K, V]) IndexOf(key K) int {
	mask := (1 << t.globalDepth) - 1
	return int(t.hash(key)) & mask
}

// Find returns the value associated with key, if present. Pure read.
func (t *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.IndexOf(key)].find(key)
}

// Remove deletes key if present and reports whether it existed. Idempotent:
// a second Remove of the same key returns false (spec.md testable property
// 12).
func (t *ExtendibleHashTable[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.IndexOf(key)].remove(key)
}

// Insert upserts (key, val): overwrites if key exists anywhere (it can only
// live in dir[IndexOf(key)]), otherwise inserts, splitting the target
// bucket (and possibly doubling the directory) as many times as needed to
// make room first. Never fails, per spec.md §4.1.
func (t *ExtendibleHashTable[K, V]) Insert(key K, val V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		idx := t.IndexOf(key)
		target := t.dir[idx]
		if _, exists := target.find(key); exists || !target.isFull(t.bucketSize) {
			target.upsert(key, val)
			return
		}
		t.splitBucket(idx)
	}
}

// splitBucket implements spec.md §4.1's seven-step split algorithm for the
// bucket currently at dir[idx]. Caller holds t.mu.
func (t *ExtendibleHashTable[K, V]) splitBucket(idx int) {
	target := t.dir[idx]
	d := target.depth

	if d == t.globalDepth {
		t.dir = append(t.dir, t.dir...)
		t.globalDepth++
	}

	b0 := newBucket[K, V](d + 1)
	b1 := newBucket[K, V](d + 1)
	mask := uint64(1) << uint(d)
	for _, e := range target.entries {
		if t.hash(e.key)&mask != 0 {
			b1.entries = append(b1.entries, e)
		} else {
			b0.entries = append(b0.entries, e)
		}
	}
	t.numBuckets++

	for i := range t.dir {
		if t.dir[i] == target {
			if uint64(i)&mask != 0 {
				t.dir[i] = b1
			} else {
				t.dir[i] = b0
			}
		}
	}
}

// GetGlobalDepth reports the current directory depth.
func (t *ExtendibleHashTable[K, V]) GetGlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// GetLocalDepth reports the local depth of the bucket at directory slot i.
func (t *ExtendibleHashTable[K, V]) GetLocalDepth(i int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[i].depth
}

// GetNumBuckets reports the number of distinct bucket objects referenced by
// the directory.
func (t *ExtendibleHashTable[K, V]) GetNumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numBuckets
}

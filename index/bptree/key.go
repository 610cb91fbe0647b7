package bptree

import "encoding/binary"

// Key is the tree's fixed-width index key, per spec.md §9 Open Question 4:
// rather than carry the original source's templated GenericKey<N>, the key
// type here is pinned to a concrete 8-byte array so leaf and internal slots
// pack at a fixed width on the page.
type Key [8]byte

// RID identifies a tuple's location: the heap page holding it and its slot
// within that page. 12 bytes on the wire (8 + 4), matching spec.md's leaf
// slot layout.
type RID struct {
	PageID  int64
	SlotNum int32
}

// IntKey builds a Key from a signed 64-bit integer, big-endian so that byte
// comparison order matches numeric order for non-negative values. Tests and
// callers working with integer primary keys use this.
func IntKey(v int64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[:], uint64(v))
	return k
}

// Int returns the int64 a Key built by IntKey encodes.
func (k Key) Int() int64 { return int64(binary.BigEndian.Uint64(k[:])) }

// Comparator orders two keys: negative if a < b, zero if equal, positive if
// a > b. The tree is parameterized over one at construction; DefaultComparator
// treats a Key as a big-endian unsigned integer, correct for IntKey values.
type Comparator func(a, b Key) int

// DefaultComparator compares keys byte-by-byte, which is equivalent to
// unsigned big-endian integer comparison for IntKey-built keys.
func DefaultComparator(a, b Key) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

package bptree

import (
	"github.com/pkg/errors"

	"github.com/ZQinyi/Bustub/storage/buffer"
	"github.com/ZQinyi/Bustub/storage/page"
)

// IndexIterator walks a tree's leaves left to right, holding a read latch
// on exactly the leaf it is currently positioned in. Callers must either
// exhaust it (advance to End) or call Close to release that latch and pin.
type IndexIterator struct {
	bp    *buffer.Pool
	pg    *page.Page
	leaf  *LeafPage
	index int
}

// IsEnd reports whether the iterator has been exhausted.
func (it *IndexIterator) IsEnd() bool { return it.pg == nil }

// Key returns the key at the iterator's current position.
func (it *IndexIterator) Key() Key { return it.leaf.KeyAt(it.index) }

// RID returns the record id at the iterator's current position.
func (it *IndexIterator) RID() RID { return it.leaf.RIDAt(it.index) }

// Next advances to the following entry, crossing into the next leaf (and
// releasing this one) when the current leaf is exhausted.
func (it *IndexIterator) Next() {
	if it.IsEnd() {
		return
	}
	it.index++
	if it.index < int(it.leaf.Size()) {
		return
	}
	it.rollToNextLeaf()
}

// rollToNextLeaf crosses into the following leaf (releasing this one) when
// the current position has run off the end of it, repeating across
// entirely-empty leaves until it lands on a real entry or the tree's end.
func (it *IndexIterator) rollToNextLeaf() {
	for !it.IsEnd() && it.index >= int(it.leaf.Size()) {
		nextID := it.leaf.NextPageID()
		it.pg.RUnlatch()
		it.bp.UnpinPage(it.pg.GetPageId(), false)

		if nextID == page.InvalidPageID {
			it.pg, it.leaf, it.index = nil, nil, 0
			return
		}
		nextPg, err := it.bp.FetchPage(nextID)
		if err != nil {
			panic(errors.Wrapf(err, "bptree: fetch next leaf %d", nextID))
		}
		nextPg.RLatch()
		it.pg, it.leaf, it.index = nextPg, AsLeaf(nextPg), 0
	}
}

// Close releases the iterator's latch and pin without advancing further.
// Safe to call on an already-exhausted iterator.
func (it *IndexIterator) Close() {
	if it.IsEnd() {
		return
	}
	it.pg.RUnlatch()
	it.bp.UnpinPage(it.pg.GetPageId(), false)
	it.pg, it.leaf = nil, nil
}

// Begin returns an iterator positioned at the tree's leftmost entry.
func (t *BPlusTree) Begin() *IndexIterator {
	t.rootGuard.RLock()
	if t.rootPageID == page.InvalidPageID {
		t.rootGuard.RUnlock()
		return &IndexIterator{}
	}
	leafPg := t.findLeafPage(nil, Key{}, opSearch, true, false)
	return &IndexIterator{bp: t.bp, pg: leafPg, leaf: AsLeaf(leafPg), index: 0}
}

// BeginAt returns an iterator positioned at the first entry with a key
// greater than or equal to key (lower-bound semantics). Grounded on
// original_source/src/storage/index/b_plus_tree.cpp's Begin(key), which
// positions directly off LeafPage::KeyIndex; that raw index is the largest
// slot <= key, so this adds the one-slot correction needed to land on the
// first slot >= key rather than the last slot < key when key isn't present.
func (t *BPlusTree) BeginAt(key Key) *IndexIterator {
	t.rootGuard.RLock()
	if t.rootPageID == page.InvalidPageID {
		t.rootGuard.RUnlock()
		return &IndexIterator{}
	}
	leafPg := t.findLeafPage(nil, key, opSearch, false, false)
	leaf := AsLeaf(leafPg)
	idx := leaf.KeyIndex(key, t.cmp)
	if idx < 0 || t.cmp(leaf.KeyAt(idx), key) != 0 {
		idx++
	}
	it := &IndexIterator{bp: t.bp, pg: leafPg, leaf: leaf, index: idx}
	it.rollToNextLeaf()
	return it
}

// End returns the sentinel exhausted iterator, for symmetry with Begin.
func (t *BPlusTree) End() *IndexIterator { return &IndexIterator{} }

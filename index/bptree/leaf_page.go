package bptree

import "github.com/ZQinyi/Bustub/storage/page"

// LeafPage is a typed view over a page.Page holding sorted (Key, RID) pairs
// plus a forward pointer to the next leaf, per spec.md §3.2. Grounded on
// original_source/src/storage/page/b_plus_tree_leaf_page.cpp.
type LeafPage struct {
	pg *page.Page
}

// AsLeaf wraps pg as a LeafPage. pg must already be typed TypeLeaf (after
// Init) or have been read from disk as one.
func AsLeaf(pg *page.Page) *LeafPage { return &LeafPage{pg: pg} }

// Init formats a freshly allocated page as an empty leaf.
func (l *LeafPage) Init(pageID, parentPageID int64, maxSize int32) {
	putInt32(l.pg, offPageType, int32(page.TypeLeaf))
	l.pg.SetType(page.TypeLeaf)
	l.SetSize(0)
	putInt32(l.pg, offMaxSize, maxSize)
	putInt64(l.pg, offPageID, pageID)
	l.SetParentPageID(parentPageID)
	l.SetNextPageID(page.InvalidPageID)
}

func (l *LeafPage) Size() int32        { return getInt32(l.pg, offSize) }
func (l *LeafPage) SetSize(n int32)    { putInt32(l.pg, offSize, n) }
func (l *LeafPage) MaxSize() int32     { return getInt32(l.pg, offMaxSize) }

// MinSize is the fewest entries a non-root leaf may hold before it is
// delete-unsafe, per spec.md §4.2.3: ceil((max_size-1)/2), which is
// equivalent to the simpler max_size/2 used here (integer division).
func (l *LeafPage) MinSize() int32 { return l.MaxSize() / 2 }

func (l *LeafPage) PageID() int64             { return pageIDOf(l.pg) }
func (l *LeafPage) ParentPageID() int64       { return parentPageID(l.pg) }
func (l *LeafPage) SetParentPageID(id int64)  { setParentPageID(l.pg, id) }
func (l *LeafPage) IsRootPage() bool          { return l.ParentPageID() == page.InvalidPageID }
func (l *LeafPage) NextPageID() int64         { return getInt64(l.pg, offNextPageID) }
func (l *LeafPage) SetNextPageID(id int64)    { putInt64(l.pg, offNextPageID, id) }

func (l *LeafPage) slotOffset(i int) int { return offSlots + i*leafSlotWidth }

// KeyAt returns the key stored at slot i.
func (l *LeafPage) KeyAt(i int) Key {
	var k Key
	off := l.slotOffset(i)
	copy(k[:], l.pg.GetData()[off:off+keySize])
	return k
}

func (l *LeafPage) setKeyAt(i int, k Key) {
	off := l.slotOffset(i)
	copy(l.pg.GetData()[off:off+keySize], k[:])
}

// RIDAt returns the record id stored at slot i.
func (l *LeafPage) RIDAt(i int) RID {
	off := l.slotOffset(i) + keySize
	return RID{PageID: getInt64(l.pg, off), SlotNum: getInt32(l.pg, off+8)}
}

func (l *LeafPage) setRIDAt(i int, r RID) {
	off := l.slotOffset(i) + keySize
	putInt64(l.pg, off, r.PageID)
	putInt32(l.pg, off+8, r.SlotNum)
}

// KeyIndex returns the largest slot index whose key is <= target, or -1 if
// every key exceeds target (including the empty-page case). Binary search
// over [0, Size).
func (l *LeafPage) KeyIndex(target Key, cmp Comparator) int {
	size := int(l.Size())
	if size == 0 {
		return -1
	}
	left, right := 0, size-1
	for left < right {
		mid := (right-left)/2 + left
		if cmp(l.KeyAt(mid), target) > 0 {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	if cmp(l.KeyAt(left), target) > 0 {
		return left - 1
	}
	return left
}

// Lookup returns the RID for an exact key match.
func (l *LeafPage) Lookup(key Key, cmp Comparator) (RID, bool) {
	idx := l.KeyIndex(key, cmp)
	if idx < 0 || idx >= int(l.Size()) || cmp(l.KeyAt(idx), key) != 0 {
		return RID{}, false
	}
	return l.RIDAt(idx), true
}

// Insert places (key, rid) in sorted order and returns the new size. Caller
// guarantees key is not already present and the page has room.
func (l *LeafPage) Insert(key Key, rid RID, cmp Comparator) int {
	size := int(l.Size())
	if size == 0 {
		l.SetSize(1)
		l.setKeyAt(0, key)
		l.setRIDAt(0, rid)
		return 1
	}
	idx := l.KeyIndex(key, cmp) + 1
	for i := size; i > idx; i-- {
		l.setKeyAt(i, l.KeyAt(i-1))
		l.setRIDAt(i, l.RIDAt(i-1))
	}
	l.setKeyAt(idx, key)
	l.setRIDAt(idx, rid)
	l.SetSize(int32(size + 1))
	return size + 1
}

// RemoveAndDeleteRecord removes key if present and returns the resulting
// size (a no-op, returning the unchanged size, if key is absent).
func (l *LeafPage) RemoveAndDeleteRecord(key Key, cmp Comparator) int {
	size := int(l.Size())
	idx := l.KeyIndex(key, cmp)
	if idx < 0 || idx >= size || cmp(l.KeyAt(idx), key) != 0 {
		return size
	}
	for i := idx + 1; i < size; i++ {
		l.setKeyAt(i-1, l.KeyAt(i))
		l.setRIDAt(i-1, l.RIDAt(i))
	}
	l.SetSize(int32(size - 1))
	return size - 1
}

type leafEntry struct {
	key Key
	rid RID
}

func (l *LeafPage) entries(from, to int) []leafEntry {
	out := make([]leafEntry, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, leafEntry{key: l.KeyAt(i), rid: l.RIDAt(i)})
	}
	return out
}

// CopyNFrom appends items to the end of the page's existing entries.
func (l *LeafPage) CopyNFrom(items []leafEntry) {
	base := int(l.Size())
	for i, e := range items {
		l.setKeyAt(base+i, e.key)
		l.setRIDAt(base+i, e.rid)
	}
	l.SetSize(int32(base + len(items)))
}

// MoveHalfTo splits this page, moving its upper half into recipient (a
// freshly initialized empty leaf) and relinking the next-page chain so
// recipient sits between this page and its old successor.
func (l *LeafPage) MoveHalfTo(recipient *LeafPage) {
	maxSize := int(l.MaxSize())
	copyIdx := (maxSize + 1) / 2
	recipient.CopyNFrom(l.entries(copyIdx, maxSize))
	recipient.SetNextPageID(l.NextPageID())
	l.SetNextPageID(recipient.PageID())
	l.SetSize(int32(copyIdx))
}

// MoveAllTo empties this page into recipient's tail and adopts this page's
// next pointer, used when merging this (deleted) leaf into its left sibling.
func (l *LeafPage) MoveAllTo(recipient *LeafPage) {
	recipient.CopyNFrom(l.entries(0, int(l.Size())))
	recipient.SetNextPageID(l.NextPageID())
	l.SetSize(0)
}

// MoveMiddleTo moves this page's tail entries (from MinSize to Size) to the
// front of recipient, shrinking this page down to exactly MinSize. Used when
// borrowing from a left sibling during redistribute.
func (l *LeafPage) MoveMiddleTo(recipient *LeafPage) {
	increment := int(l.Size() - l.MinSize())
	orig := int(recipient.Size())
	for i := orig - 1; i >= 0; i-- {
		recipient.setKeyAt(i+increment, recipient.KeyAt(i))
		recipient.setRIDAt(i+increment, recipient.RIDAt(i))
	}
	for i := 0; i < increment; i++ {
		src := int(l.MinSize()) + i
		recipient.setKeyAt(i, l.KeyAt(src))
		recipient.setRIDAt(i, l.RIDAt(src))
	}
	recipient.SetSize(int32(orig + increment))
	l.SetSize(l.MinSize())
}

// MoveAheadTo moves this page's head entries (enough to bring it back down
// to MinSize) onto recipient's tail. Used when borrowing from a right
// sibling during redistribute.
func (l *LeafPage) MoveAheadTo(recipient *LeafPage) {
	increment := int(l.Size() - l.MinSize())
	recipient.CopyNFrom(l.entries(0, increment))
	size := int(l.Size())
	for i := increment; i < size; i++ {
		l.setKeyAt(i-increment, l.KeyAt(i))
		l.setRIDAt(i-increment, l.RIDAt(i))
	}
	l.SetSize(l.MinSize())
}

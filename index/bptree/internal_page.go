package bptree

import (
	"github.com/pkg/errors"

	"github.com/ZQinyi/Bustub/storage/buffer"
	"github.com/ZQinyi/Bustub/storage/page"
)

// InternalPage is a typed view over a page.Page holding size child page
// ids separated by size-1 sorted keys: slot 0's key is never compared (it has
// no left neighbor), only its value (the leftmost child) is meaningful.
// Grounded on original_source/src/storage/page/b_plus_tree_internal_page.cpp.
type InternalPage struct {
	pg *page.Page
}

// AsInternal wraps pg as an InternalPage.
func AsInternal(pg *page.Page) *InternalPage { return &InternalPage{pg: pg} }

// Init formats a freshly allocated page as an empty internal node.
func (n *InternalPage) Init(pageID, parentPageID int64, maxSize int32) {
	putInt32(n.pg, offPageType, int32(page.TypeInternal))
	n.pg.SetType(page.TypeInternal)
	n.SetSize(0)
	putInt32(n.pg, offMaxSize, maxSize)
	putInt64(n.pg, offPageID, pageID)
	n.SetParentPageID(parentPageID)
}

func (n *InternalPage) Size() int32     { return getInt32(n.pg, offSize) }
func (n *InternalPage) SetSize(s int32) { putInt32(n.pg, offSize, s) }
func (n *InternalPage) MaxSize() int32  { return getInt32(n.pg, offMaxSize) }

// MinSize is the fewest children a non-root internal node may hold before
// it is delete-unsafe, per spec.md §4.2.3: ceil(max_size/2).
func (n *InternalPage) MinSize() int32 { return (n.MaxSize() + 1) / 2 }

func (n *InternalPage) PageID() int64            { return pageIDOf(n.pg) }
func (n *InternalPage) ParentPageID() int64      { return parentPageID(n.pg) }
func (n *InternalPage) SetParentPageID(id int64) { setParentPageID(n.pg, id) }
func (n *InternalPage) IsRootPage() bool         { return n.ParentPageID() == page.InvalidPageID }

func (n *InternalPage) slotOffset(i int) int { return offSlots + i*internalSlotWidth }

// KeyAt returns the key at slot i. Slot 0's key is a meaningless sentinel.
func (n *InternalPage) KeyAt(i int) Key {
	var k Key
	off := n.slotOffset(i)
	copy(k[:], n.pg.GetData()[off:off+keySize])
	return k
}

// SetKeyAt overwrites the key at slot i.
func (n *InternalPage) SetKeyAt(i int, k Key) {
	off := n.slotOffset(i)
	copy(n.pg.GetData()[off:off+keySize], k[:])
}

// ValueAt returns the child page id at slot i.
func (n *InternalPage) ValueAt(i int) int64 {
	return getInt64(n.pg, n.slotOffset(i)+keySize)
}

// SetValueAt overwrites the child page id at slot i.
func (n *InternalPage) SetValueAt(i int, v int64) {
	putInt64(n.pg, n.slotOffset(i)+keySize, v)
}

// ValueIndex returns the slot holding childID, or -1 if absent.
func (n *InternalPage) ValueIndex(childID int64) int {
	for i := 0; i < int(n.Size()); i++ {
		if n.ValueAt(i) == childID {
			return i
		}
	}
	return -1
}

// Lookup returns the child page id to descend into for key: the value at
// the largest slot i>=1 whose key is <= target, or slot 0 if no such slot
// exists.
func (n *InternalPage) Lookup(key Key, cmp Comparator) int64 {
	size := int(n.Size())
	lo, hi := 1, size
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.KeyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return n.ValueAt(lo - 1)
}

// PopulateNewRoot formats this (freshly allocated, empty) page as a new root
// with exactly two children.
func (n *InternalPage) PopulateNewRoot(oldValue int64, key Key, newValue int64) {
	n.SetValueAt(0, oldValue)
	n.SetKeyAt(1, key)
	n.SetValueAt(1, newValue)
	n.SetSize(2)
}

// InsertNodeAfter inserts (key, newValue) immediately after the slot
// currently holding oldValue, shifting later slots right, and returns the
// new size.
func (n *InternalPage) InsertNodeAfter(oldValue int64, key Key, newValue int64) int {
	idx := n.ValueIndex(oldValue) + 1
	size := int(n.Size())
	for i := size; i > idx; i-- {
		n.SetKeyAt(i, n.KeyAt(i-1))
		n.SetValueAt(i, n.ValueAt(i-1))
	}
	n.SetKeyAt(idx, key)
	n.SetValueAt(idx, newValue)
	n.SetSize(int32(size + 1))
	return size + 1
}

// Remove deletes the slot at index, shifting later slots left.
func (n *InternalPage) Remove(index int) {
	size := int(n.Size())
	for i := index + 1; i < size; i++ {
		n.SetKeyAt(i-1, n.KeyAt(i))
		n.SetValueAt(i-1, n.ValueAt(i))
	}
	n.SetSize(int32(size - 1))
}

// RemoveAndReturnOnlyChild empties a size-1 root (its last remaining child
// is about to become the tree's new root) and returns that child's page id.
func (n *InternalPage) RemoveAndReturnOnlyChild() int64 {
	v := n.ValueAt(0)
	n.SetSize(0)
	return v
}

type internalEntry struct {
	key   Key
	child int64
}

func (n *InternalPage) entries(from, to int) []internalEntry {
	out := make([]internalEntry, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, internalEntry{key: n.KeyAt(i), child: n.ValueAt(i)})
	}
	return out
}

// CopyNFrom appends items to this page's tail and reparents each moved
// child to point at this page, fetching each through bp.
func (n *InternalPage) CopyNFrom(items []internalEntry, bp *buffer.Pool) error {
	base := int(n.Size())
	for i, e := range items {
		n.SetKeyAt(base+i, e.key)
		n.SetValueAt(base+i, e.child)
	}
	n.SetSize(int32(base + len(items)))
	for _, e := range items {
		child, err := bp.FetchPage(e.child)
		if err != nil {
			return errors.Wrapf(err, "internal page %d: reparent child %d", n.PageID(), e.child)
		}
		setParentPageID(child, n.PageID())
		bp.UnpinPage(child.GetPageId(), true)
	}
	return nil
}

// MoveHalfTo splits this page, moving its upper half into recipient (a
// freshly initialized empty internal page).
func (n *InternalPage) MoveHalfTo(recipient *InternalPage, bp *buffer.Pool) error {
	start := int(n.MinSize())
	orig := int(n.Size())
	items := n.entries(start, orig)
	n.SetSize(int32(start))
	return recipient.CopyNFrom(items, bp)
}

// MoveAllTo merges this (about to be deleted) page into recipient's tail.
// middleKey is the parent separator between recipient and this page,
// pulled down into this page's slot 0 (previously an unused sentinel) so it
// travels with the rest of this page's entries into recipient.
func (n *InternalPage) MoveAllTo(recipient *InternalPage, middleKey Key, bp *buffer.Pool) error {
	n.SetKeyAt(0, middleKey)
	if err := recipient.CopyNFrom(n.entries(0, int(n.Size())), bp); err != nil {
		return err
	}
	n.SetSize(0)
	return nil
}

// MoveMiddleTo moves this page's tail entries to the front of recipient,
// shrinking this page to MinSize. middleKey (the parent separator between
// this page and recipient) is pulled down into recipient's slot 0, landing
// at the boundary between the moved entries and recipient's original
// contents once the shift below completes. Used when borrowing from a left
// sibling during redistribute.
func (n *InternalPage) MoveMiddleTo(recipient *InternalPage, middleKey Key, bp *buffer.Pool) error {
	recipient.SetKeyAt(0, middleKey)
	increment := int(n.Size() - n.MinSize())

	for i := int(n.MinSize()); i < int(n.Size()); i++ {
		child, err := bp.FetchPage(n.ValueAt(i))
		if err != nil {
			return errors.Wrapf(err, "internal page %d: reparent child", n.PageID())
		}
		setParentPageID(child, recipient.PageID())
		bp.UnpinPage(child.GetPageId(), true)
	}

	orig := int(recipient.Size())
	for i := orig - 1; i >= 0; i-- {
		recipient.SetKeyAt(i+increment, recipient.KeyAt(i))
		recipient.SetValueAt(i+increment, recipient.ValueAt(i))
	}
	for i := 0; i < increment; i++ {
		src := int(n.MinSize()) + i
		recipient.SetKeyAt(i, n.KeyAt(src))
		recipient.SetValueAt(i, n.ValueAt(src))
	}
	recipient.SetSize(int32(orig + increment))
	n.SetSize(n.MinSize())
	return nil
}

// MoveAheadTo moves this page's head entries onto recipient's tail,
// shrinking this page to MinSize. middleKey (the parent separator between
// recipient and this page) is written into this page's own slot 0 before
// the copy, so the first moved entry carries it as the new boundary key in
// recipient. Used when borrowing from a right sibling during redistribute.
func (n *InternalPage) MoveAheadTo(recipient *InternalPage, middleKey Key, bp *buffer.Pool) error {
	n.SetKeyAt(0, middleKey)
	increment := int(n.Size() - n.MinSize())
	if err := recipient.CopyNFrom(n.entries(0, increment), bp); err != nil {
		return err
	}
	size := int(n.Size())
	for i := increment; i < size; i++ {
		n.SetKeyAt(i-increment, n.KeyAt(i))
		n.SetValueAt(i-increment, n.ValueAt(i))
	}
	n.SetSize(n.MinSize())
	return nil
}

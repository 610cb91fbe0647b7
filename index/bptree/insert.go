package bptree

import (
	"github.com/pkg/errors"

	"github.com/ZQinyi/Bustub/storage/page"
)

// Insert adds (key, rid) and reports whether it was actually inserted: a
// duplicate key is rejected, matching spec.md §4.2.3 (this tree does not
// support multi-valued keys).
func (t *BPlusTree) Insert(key Key, rid RID) bool {
	t.rootGuard.Lock()
	if t.rootPageID == page.InvalidPageID {
		ok := t.startNewTree(key, rid)
		t.rootGuard.Unlock()
		return ok
	}

	txn := newTxnContext()
	leafPg := t.findLeafPage(txn, key, opInsert, false, false)
	return t.insertToLeaf(txn, leafPg, key, rid)
}

func (t *BPlusTree) startNewTree(key Key, rid RID) bool {
	newPg, err := t.bp.NewPage()
	if err != nil {
		panic(errors.Wrap(err, "bptree: allocate root leaf"))
	}
	leaf := AsLeaf(newPg)
	leaf.Init(newPg.GetPageId(), page.InvalidPageID, t.leafMaxSize)
	leaf.Insert(key, rid, t.cmp)
	t.updateRootPageID(newPg.GetPageId(), true)
	t.bp.UnpinPage(newPg.GetPageId(), true)
	return true
}

func (t *BPlusTree) insertToLeaf(txn *txnContext, leafPg *page.Page, key Key, rid RID) bool {
	leaf := AsLeaf(leafPg)
	if _, exists := leaf.Lookup(key, t.cmp); exists {
		t.releaseAncestors(txn)
		leafPg.WUnlatch()
		t.bp.UnpinPage(leafPg.GetPageId(), false)
		return false
	}

	newSize := leaf.Insert(key, rid, t.cmp)
	if int32(newSize) == t.leafMaxSize {
		newPg, err := t.bp.NewPage()
		if err != nil {
			panic(errors.Wrap(err, "bptree: allocate leaf split page"))
		}
		newLeaf := AsLeaf(newPg)
		newLeaf.Init(newPg.GetPageId(), leaf.ParentPageID(), t.leafMaxSize)
		leaf.MoveHalfTo(newLeaf)
		t.insertIntoParent(txn, leafPg, newLeaf.KeyAt(0), newPg)
		t.bp.UnpinPage(newPg.GetPageId(), true)
	} else {
		t.releaseAncestors(txn)
	}

	leafPg.WUnlatch()
	t.bp.UnpinPage(leafPg.GetPageId(), true)
	return true
}

// insertIntoParent links newPg into oldPg's parent as the sibling
// immediately after oldPg, under separator middleKey — creating a new root
// if oldPg was the root, or recursively splitting the parent if it has no
// room, per spec.md §4.2.3.
func (t *BPlusTree) insertIntoParent(txn *txnContext, oldPg *page.Page, middleKey Key, newPg *page.Page) {
	if parentPageID(oldPg) == page.InvalidPageID {
		newRootPg, err := t.bp.NewPage()
		if err != nil {
			panic(errors.Wrap(err, "bptree: allocate new root"))
		}
		newRoot := AsInternal(newRootPg)
		newRoot.Init(newRootPg.GetPageId(), page.InvalidPageID, t.internalMaxSize)
		newRoot.PopulateNewRoot(oldPg.GetPageId(), middleKey, newPg.GetPageId())
		setParentPageID(oldPg, newRoot.PageID())
		setParentPageID(newPg, newRoot.PageID())
		t.updateRootPageID(newRoot.PageID(), false)
		t.releaseAncestors(txn)
		t.bp.UnpinPage(newRootPg.GetPageId(), true)
		return
	}

	parentPg := txn.popLastAncestor()
	parent := AsInternal(parentPg)

	if parent.Size() < t.internalMaxSize {
		parent.InsertNodeAfter(oldPg.GetPageId(), middleKey, newPg.GetPageId())
		t.releaseAncestors(txn)
		parentPg.WUnlatch()
		t.bp.UnpinPage(parentPg.GetPageId(), true)
		return
	}

	newParentPg, promoted, err := t.splitFullInternal(parentPg, oldPg.GetPageId(), middleKey, newPg.GetPageId())
	if err != nil {
		panic(errors.Wrap(err, "bptree: split full internal node"))
	}
	t.insertIntoParent(txn, parentPg, promoted, newParentPg)
	parentPg.WUnlatch()
	t.bp.UnpinPage(parentPg.GetPageId(), true)
	t.bp.UnpinPage(newParentPg.GetPageId(), true)
}

// splitFullInternal inserts (middleKey, newChildID) into parentPg — already
// at internalMaxSize — via a scratch buffer sized one past capacity, then
// splits the combined entries between parentPg (kept, lower half) and a
// freshly allocated sibling (upper half), returning that sibling and the
// key to promote to the grandparent. Grounded on the original source's
// equivalent std::vector-scratch-then-split step; done as an in-memory
// slice here rather than growing the on-page slot array past its declared
// max_size, which would risk writing past a page configured at exactly its
// physical slot capacity.
func (t *BPlusTree) splitFullInternal(parentPg *page.Page, oldChildID int64, middleKey Key, newChildID int64) (*page.Page, Key, error) {
	parent := AsInternal(parentPg)
	size := int(parent.Size())

	scratch := make([]internalEntry, 0, size+1)
	for i := 0; i < size; i++ {
		scratch = append(scratch, internalEntry{key: parent.KeyAt(i), child: parent.ValueAt(i)})
	}
	insertAt := parent.ValueIndex(oldChildID) + 1
	scratch = append(scratch, internalEntry{})
	copy(scratch[insertAt+1:], scratch[insertAt:])
	scratch[insertAt] = internalEntry{key: middleKey, child: newChildID}

	newPg, err := t.bp.NewPage()
	if err != nil {
		return nil, Key{}, err
	}
	newNode := AsInternal(newPg)
	newNode.Init(newPg.GetPageId(), parent.ParentPageID(), t.internalMaxSize)

	splitAt := (len(scratch) + 1) / 2
	for i := 0; i < splitAt; i++ {
		parent.SetKeyAt(i, scratch[i].key)
		parent.SetValueAt(i, scratch[i].child)
	}
	parent.SetSize(int32(splitAt))

	if err := newNode.CopyNFrom(scratch[splitAt:], t.bp); err != nil {
		return nil, Key{}, err
	}
	return newPg, newNode.KeyAt(0), nil
}

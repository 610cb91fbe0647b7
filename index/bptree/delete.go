package bptree

import (
	"github.com/pkg/errors"

	"github.com/ZQinyi/Bustub/storage/page"
)

// Remove deletes key. A missing key is a silent no-op, per spec.md §4.2.4.
func (t *BPlusTree) Remove(key Key) {
	t.rootGuard.Lock()
	if t.rootPageID == page.InvalidPageID {
		t.rootGuard.Unlock()
		return
	}

	txn := newTxnContext()
	leafPg := t.findLeafPage(txn, key, opDelete, false, false)
	leaf := AsLeaf(leafPg)

	before := leaf.Size()
	after := leaf.RemoveAndDeleteRecord(key, t.cmp)
	if int32(after) == before {
		t.releaseAncestors(txn)
		leafPg.WUnlatch()
		t.bp.UnpinPage(leafPg.GetPageId(), false)
		return
	}

	deleteLeaf := t.coalesceOrRedistribute(txn, leafPg)
	leafPg.WUnlatch()
	t.bp.UnpinPage(leafPg.GetPageId(), true)
	if deleteLeaf {
		txn.stageDelete(leafPg.GetPageId())
	}
	t.deleteStagedPages(txn)
}

// coalesceOrRedistribute restores nodePg's minimum-occupancy invariant
// after a removal, borrowing from a sibling (redistribute) or merging with
// one (coalesce) when nodePg has underflowed. Reports whether the caller
// should physically delete nodePg. Grounded on
// original_source/src/storage/index/b_plus_tree.cpp's CoalesceOrRedistribute.
func (t *BPlusTree) coalesceOrRedistribute(txn *txnContext, nodePg *page.Page) bool {
	if parentPageID(nodePg) == page.InvalidPageID {
		return t.adjustRoot(txn, nodePg)
	}
	if nodeSize(nodePg) >= nodeMinSize(nodePg) {
		t.releaseAncestors(txn)
		return false
	}

	parentPg := txn.popLastAncestor()
	parent := AsInternal(parentPg)
	idx := parent.ValueIndex(nodePg.GetPageId())

	if idx > 0 {
		leftID := parent.ValueAt(idx - 1)
		leftPg, err := t.bp.FetchPage(leftID)
		if err != nil {
			panic(errors.Wrapf(err, "bptree: fetch left sibling %d", leftID))
		}
		leftPg.WLatch()

		if nodeSize(leftPg) > nodeMinSize(leftPg) {
			t.redistribute(leftPg, nodePg, parent, idx, true)
			t.releaseAncestors(txn)
			leftPg.WUnlatch()
			t.bp.UnpinPage(leftPg.GetPageId(), true)
			parentPg.WUnlatch()
			t.bp.UnpinPage(parentPg.GetPageId(), true)
			return false
		}

		t.coalesce(txn, leftPg, nodePg, parentPg, idx)
		leftPg.WUnlatch()
		t.bp.UnpinPage(leftPg.GetPageId(), true)
		parentPg.WUnlatch()
		t.bp.UnpinPage(parentPg.GetPageId(), true)
		return true
	}

	rightID := parent.ValueAt(idx + 1)
	rightPg, err := t.bp.FetchPage(rightID)
	if err != nil {
		panic(errors.Wrapf(err, "bptree: fetch right sibling %d", rightID))
	}
	rightPg.WLatch()

	if nodeSize(rightPg) > nodeMinSize(rightPg) {
		t.redistribute(rightPg, nodePg, parent, idx+1, false)
		t.releaseAncestors(txn)
		rightPg.WUnlatch()
		t.bp.UnpinPage(rightPg.GetPageId(), true)
		parentPg.WUnlatch()
		t.bp.UnpinPage(parentPg.GetPageId(), true)
		return false
	}

	t.coalesce(txn, nodePg, rightPg, parentPg, idx+1)
	rightPg.WUnlatch()
	t.bp.UnpinPage(rightPg.GetPageId(), true)
	parentPg.WUnlatch()
	t.bp.UnpinPage(parentPg.GetPageId(), true)
	txn.stageDelete(rightPg.GetPageId())
	return false
}

// coalesce merges doomedPg's entries into keepPg (left-side keeps its page
// id, right-side is always the one deleted, per spec.md §4.2.4), removes
// the parent's separator at doomedIndex, and recurses up through
// coalesceOrRedistribute(parentPg), staging the parent for deletion itself
// if that recursion says so.
func (t *BPlusTree) coalesce(txn *txnContext, keepPg, doomedPg, parentPg *page.Page, doomedIndex int) {
	parent := AsInternal(parentPg)
	middleKey := parent.KeyAt(doomedIndex)

	if NodeType(doomedPg) == page.TypeLeaf {
		AsLeaf(doomedPg).MoveAllTo(AsLeaf(keepPg))
	} else if err := AsInternal(doomedPg).MoveAllTo(AsInternal(keepPg), middleKey, t.bp); err != nil {
		panic(errors.Wrap(err, "bptree: coalesce internal nodes"))
	}
	parent.Remove(doomedIndex)

	if t.coalesceOrRedistribute(txn, parentPg) {
		txn.stageDelete(parentPg.GetPageId())
	}
}

// redistribute moves exactly enough entries between siblingPg and nodePg to
// bring siblingPg back down to (and nodePg up past) minimum occupancy,
// updating the parent separator at sepIndex. fromPrev selects the
// direction: true borrows from the left sibling, false from the right.
//
// The original source calls both its MoveMiddleTo/MoveAheadTo primitives
// unconditionally in the from_prev branch, with the second call's separator
// update silently overwriting the first with a stale key once the sibling
// is already back at minimum size (its second move degenerates to a
// no-op). That looks like a leftover from an earlier version of the
// function rather than intended behavior, so this implementation performs
// exactly one move per direction, matching the plain description in
// spec.md §4.2.4.
func (t *BPlusTree) redistribute(siblingPg, nodePg *page.Page, parent *InternalPage, sepIndex int, fromPrev bool) {
	if NodeType(nodePg) == page.TypeLeaf {
		sibling, node := AsLeaf(siblingPg), AsLeaf(nodePg)
		if fromPrev {
			sibling.MoveMiddleTo(node)
			parent.SetKeyAt(sepIndex, node.KeyAt(0))
		} else {
			sibling.MoveAheadTo(node)
			parent.SetKeyAt(sepIndex, sibling.KeyAt(0))
		}
		return
	}

	sibling, node := AsInternal(siblingPg), AsInternal(nodePg)
	middleKey := parent.KeyAt(sepIndex)
	if fromPrev {
		if err := sibling.MoveMiddleTo(node, middleKey, t.bp); err != nil {
			panic(errors.Wrap(err, "bptree: redistribute from left sibling"))
		}
		parent.SetKeyAt(sepIndex, node.KeyAt(0))
		return
	}
	if err := sibling.MoveAheadTo(node, middleKey, t.bp); err != nil {
		panic(errors.Wrap(err, "bptree: redistribute from right sibling"))
	}
	parent.SetKeyAt(sepIndex, sibling.KeyAt(0))
}

// adjustRoot handles the two cases where the root itself underflowed:
// an internal root down to a single child is replaced by that child, and a
// leaf root emptied entirely leaves the tree empty. Reports whether nodePg
// (the old root) should be deleted.
func (t *BPlusTree) adjustRoot(txn *txnContext, nodePg *page.Page) bool {
	if NodeType(nodePg) != page.TypeLeaf && nodeSize(nodePg) == 1 {
		onlyChild := AsInternal(nodePg).RemoveAndReturnOnlyChild()
		childPg, err := t.bp.FetchPage(onlyChild)
		if err != nil {
			panic(errors.Wrapf(err, "bptree: fetch new root %d", onlyChild))
		}
		setParentPageID(childPg, page.InvalidPageID)
		t.bp.UnpinPage(childPg.GetPageId(), true)
		t.updateRootPageID(onlyChild, false)
		t.releaseAncestors(txn)
		return true
	}
	if NodeType(nodePg) == page.TypeLeaf && nodeSize(nodePg) == 0 {
		t.updateRootPageID(page.InvalidPageID, false)
		t.releaseAncestors(txn)
		return true
	}
	t.releaseAncestors(txn)
	return false
}

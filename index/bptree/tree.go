// Package bptree implements a latch-crabbing, disk-oriented B+Tree index
// over a fixed-width Key and RID, backed by an external buffer.Pool.
// Grounded on original_source/src/storage/index/b_plus_tree.cpp and its
// companion leaf/internal page sources, with naming and structural idiom
// (per-step pin/unpin, MarkDirty-on-mutation, struct-per-responsibility)
// carried from the teacher's bplustree package.
package bptree

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ZQinyi/Bustub/storage/buffer"
	"github.com/ZQinyi/Bustub/storage/page"
)

type operation int

const (
	opSearch operation = iota
	opInsert
	opDelete
)

// BPlusTree is a single named index over a buffer.Pool. The zero value is
// not usable; build one with NewBPlusTree.
type BPlusTree struct {
	name            string
	bp              *buffer.Pool
	header          *page.HeaderPage
	cmp             Comparator
	leafMaxSize     int32
	internalMaxSize int32

	// rootGuard is the dedicated lock protecting rootPageID itself, per
	// spec.md §5: readers (GetValue, Begin) take it for read, acquire the
	// root page, and release it; writers (Insert, Remove) take it for
	// write and hold it — represented in a txnContext's page set as a nil
	// marker — until the root's safety is established or the write
	// completes.
	rootGuard  sync.RWMutex
	rootPageID int64

	log *logrus.Logger
}

// NewBPlusTree builds a named index over bp. It rejects a configured
// max_size that would overflow one page's fixed byte budget for either
// node kind.
func NewBPlusTree(name string, bp *buffer.Pool, header *page.HeaderPage, cmp Comparator, leafMaxSize, internalMaxSize int32, log *logrus.Logger) (*BPlusTree, error) {
	if leafMaxSize > leafSlotCapacity() {
		return nil, errors.Errorf("bptree: leaf_max_size %d exceeds page capacity %d", leafMaxSize, leafSlotCapacity())
	}
	if internalMaxSize > internalSlotCapacity() {
		return nil, errors.Errorf("bptree: internal_max_size %d exceeds page capacity %d", internalMaxSize, internalSlotCapacity())
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	t := &BPlusTree{
		name:            name,
		bp:              bp,
		header:          header,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      page.InvalidPageID,
		log:             log,
	}
	if id, ok := header.GetRootID(name); ok {
		t.rootPageID = id
	}
	return t, nil
}

// IsEmpty reports whether the tree currently has no root. Per spec.md §9
// Open Question 1, this (like GetRootPageID) takes and releases rootGuard
// immediately: a caller needing the result to stay valid across further
// operations must coordinate externally, matching the original source's
// own racy GetRootPageId.
func (t *BPlusTree) IsEmpty() bool {
	t.rootGuard.RLock()
	defer t.rootGuard.RUnlock()
	return t.rootPageID == page.InvalidPageID
}

// GetRootPageID reports the tree's current root page id.
func (t *BPlusTree) GetRootPageID() int64 {
	t.rootGuard.RLock()
	defer t.rootGuard.RUnlock()
	return t.rootPageID
}

func (t *BPlusTree) updateRootPageID(id int64, insertRecord bool) {
	t.rootPageID = id
	if insertRecord {
		t.header.InsertRecord(t.name, id)
	} else {
		t.header.UpdateRecord(t.name, id)
	}
}

// GetValue looks up key, returning its RID if present.
func (t *BPlusTree) GetValue(key Key) (RID, bool) {
	t.rootGuard.RLock()
	if t.rootPageID == page.InvalidPageID {
		t.rootGuard.RUnlock()
		return RID{}, false
	}
	leafPg := t.findLeafPage(nil, key, opSearch, false, false)
	defer func() {
		leafPg.RUnlatch()
		t.bp.UnpinPage(leafPg.GetPageId(), false)
	}()
	return AsLeaf(leafPg).Lookup(key, t.cmp)
}

// findLeafPage descends from the root to the leaf that does (or, for
// insert/delete, should) hold key, applying latch crabbing: callers doing
// SEARCH get a read-latched leaf with the root guard already released;
// INSERT/DELETE callers get a write-latched leaf with exactly the unsafe
// ancestors (plus, if none were released, the root guard) still held in
// txn's page set, ready for the caller to walk back through on split or
// merge. Caller must already hold rootGuard (read for search, write
// otherwise) and t.rootPageID must be valid.
func (t *BPlusTree) findLeafPage(txn *txnContext, key Key, op operation, leftMost, rightMost bool) *page.Page {
	pointer, err := t.bp.FetchPage(t.rootPageID)
	if err != nil {
		panic(errors.Wrapf(err, "bptree: fetch root page %d", t.rootPageID))
	}

	if op == opSearch {
		pointer.RLatch()
		t.rootGuard.RUnlock()
	} else {
		pointer.WLatch()
		txn.pushRootGuardMarker()
		switch {
		case op == opDelete && nodeSize(pointer) > 2:
			t.releaseAncestors(txn)
		case op == opInsert && insertSafe(pointer):
			t.releaseAncestors(txn)
		}
	}

	for NodeType(pointer) != page.TypeLeaf {
		internal := AsInternal(pointer)
		var next int64
		switch {
		case leftMost:
			next = internal.ValueAt(0)
		case rightMost:
			next = internal.ValueAt(int(internal.Size()) - 1)
		default:
			next = internal.Lookup(key, t.cmp)
		}

		nextPage, err := t.bp.FetchPage(next)
		if err != nil {
			panic(errors.Wrapf(err, "bptree: fetch child page %d", next))
		}

		switch op {
		case opSearch:
			nextPage.RLatch()
			pointer.RUnlatch()
			t.bp.UnpinPage(pointer.GetPageId(), false)
		case opInsert:
			nextPage.WLatch()
			txn.pushAncestor(pointer)
			if insertSafe(nextPage) {
				t.releaseAncestors(txn)
			}
		case opDelete:
			nextPage.WLatch()
			txn.pushAncestor(pointer)
			if deleteSafe(nextPage) {
				t.releaseAncestors(txn)
			}
		}
		pointer = nextPage
	}
	return pointer
}

// releaseAncestors pops txn's page set in FIFO order, write-unlatching and
// unpinning every real ancestor and releasing the root guard on the nil
// marker, then empties the set.
func (t *BPlusTree) releaseAncestors(txn *txnContext) {
	for _, pg := range txn.pageSet {
		if pg == nil {
			t.rootGuard.Unlock()
			continue
		}
		pg.WUnlatch()
		t.bp.UnpinPage(pg.GetPageId(), true)
	}
	txn.pageSet = txn.pageSet[:0]
}

// deleteStagedPages physically deletes every page a Remove staged for
// deletion, called once at the very end of Remove after the leaf itself
// has been unlatched — matching the original source's deferred cleanup so
// no page is deleted while anything might still be touching it.
func (t *BPlusTree) deleteStagedPages(txn *txnContext) {
	for _, id := range txn.deletedPages {
		t.bp.DeletePage(id)
	}
	txn.deletedPages = txn.deletedPages[:0]
}

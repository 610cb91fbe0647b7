package bptree

import "github.com/ZQinyi/Bustub/storage/page"

// txnContext is a per-operation transaction: the ordered set of ancestor
// pages an insert or delete descent is still holding write-latched, plus
// the set of pages a delete has staged for physical deletion once the
// recursion unwinds. Always passed by pointer; never shared across
// goroutines. Grounded on original_source/src/storage/transaction/transaction.h's
// page_set_/deleted_page_set_, which this mirrors in shape.
//
// pageSet holds ancestors in acquisition order (FIFO release). A nil entry
// represents the root-pointer guard itself, so releasing ancestors and
// releasing the guard share one ordered queue exactly as the original's
// page_set_ does with a nullptr sentinel for the root id latch.
type txnContext struct {
	pageSet      []*page.Page
	deletedPages []int64
}

func newTxnContext() *txnContext {
	return &txnContext{}
}

func (t *txnContext) pushAncestor(pg *page.Page) {
	t.pageSet = append(t.pageSet, pg)
}

func (t *txnContext) pushRootGuardMarker() {
	t.pageSet = append(t.pageSet, nil)
}

func (t *txnContext) stageDelete(pageID int64) {
	t.deletedPages = append(t.deletedPages, pageID)
}

// popLastAncestor removes and returns the most recently pushed ancestor —
// the immediate parent of whatever page the caller is currently holding —
// leaving the rest of the ordered set (and the root guard marker, if still
// present) untouched for a later releaseAncestors call.
func (t *txnContext) popLastAncestor() *page.Page {
	n := len(t.pageSet)
	pg := t.pageSet[n-1]
	t.pageSet = t.pageSet[:n-1]
	return pg
}

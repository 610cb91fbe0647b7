package bptree

import "github.com/ZQinyi/Bustub/storage/page"

// nodeSize/nodeMaxSize/nodeMinSize read a fetched page's header fields
// without the caller needing to know yet whether it is a leaf or an
// internal node — used by the descent loop's per-step safety checks.
func nodeSize(pg *page.Page) int32 { return getInt32(pg, offSize) }
func nodeMaxSize(pg *page.Page) int32 { return getInt32(pg, offMaxSize) }

func nodeMinSize(pg *page.Page) int32 {
	if NodeType(pg) == page.TypeLeaf {
		return AsLeaf(pg).MinSize()
	}
	return AsInternal(pg).MinSize()
}

// insertSafe reports whether pg has room for one more entry without
// needing to split, per spec.md §4.2.3's distinct leaf/internal thresholds.
func insertSafe(pg *page.Page) bool {
	if NodeType(pg) == page.TypeLeaf {
		return nodeSize(pg) < nodeMaxSize(pg)-1
	}
	return nodeSize(pg) < nodeMaxSize(pg)
}

// deleteSafe reports whether pg can lose one entry without underflowing
// below its minimum occupancy.
func deleteSafe(pg *page.Page) bool {
	return nodeSize(pg) > nodeMinSize(pg)
}

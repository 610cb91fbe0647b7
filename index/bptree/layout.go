package bptree

import (
	"encoding/binary"

	"github.com/ZQinyi/Bustub/storage/page"
)

// Byte layout shared by leaf and internal pages, per SPEC_FULL.md §3.2:
//
//	offset  0  page_type   int32
//	offset  4  size        int32
//	offset  8  max_size    int32
//	offset 12  parent_id   int64
//	offset 20  page_id     int64
//	offset 28  next_id     int64   (leaf only; unused by internal pages)
//	offset 36  slots...
const (
	offPageType     = 0
	offSize         = 4
	offMaxSize      = 8
	offParentPageID = 12
	offPageID       = 20
	offNextPageID   = 28
	offSlots        = 36

	keySize = 8
	ridSize = 12

	leafSlotWidth     = keySize + ridSize // 20
	internalSlotWidth = keySize + 8       // 16
)

func getInt32(pg *page.Page, off int) int32 {
	return int32(binary.BigEndian.Uint32(pg.GetData()[off : off+4]))
}

func putInt32(pg *page.Page, off int, v int32) {
	binary.BigEndian.PutUint32(pg.GetData()[off:off+4], uint32(v))
}

func getInt64(pg *page.Page, off int) int64 {
	return int64(binary.BigEndian.Uint64(pg.GetData()[off : off+8]))
}

func putInt64(pg *page.Page, off int, v int64) {
	binary.BigEndian.PutUint64(pg.GetData()[off:off+8], uint64(v))
}

// NodeType reads the page_type tag directly from the page's bytes, the
// source of truth a tree descent uses to decide whether a freshly fetched
// child is a leaf or an internal node.
func NodeType(pg *page.Page) page.Type {
	return page.Type(getInt32(pg, offPageType))
}

func parentPageID(pg *page.Page) int64        { return getInt64(pg, offParentPageID) }
func setParentPageID(pg *page.Page, id int64) { putInt64(pg, offParentPageID, id) }
func pageIDOf(pg *page.Page) int64             { return getInt64(pg, offPageID) }

// leafSlotCapacity/internalSlotCapacity compute the largest max_size that
// still fits within one page, used by NewBPlusTree to reject configurations
// that would overflow PageSize.
func leafSlotCapacity() int32 {
	return int32((page.PageSize - offSlots) / leafSlotWidth)
}

func internalSlotCapacity() int32 {
	return int32((page.PageSize - offSlots) / internalSlotWidth)
}

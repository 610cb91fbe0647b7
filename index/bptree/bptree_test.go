package bptree

import (
	"testing"

	"github.com/ZQinyi/Bustub/storage/buffer"
	"github.com/ZQinyi/Bustub/storage/page"
)

func newTestTree(t *testing.T, leafMax, internalMax int32) *BPlusTree {
	t.Helper()
	pool := buffer.NewPool(64, buffer.NewInMemoryPager(), nil)
	header, err := page.NewHeaderPage()
	if err != nil {
		t.Fatalf("new header page: %v", err)
	}
	tree, err := NewBPlusTree("t1", pool, header, DefaultComparator, leafMax, internalMax, nil)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}
	return tree
}

func TestEmptyTree(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	if !tree.IsEmpty() {
		t.Fatal("fresh tree reports non-empty")
	}
	if _, ok := tree.GetValue(IntKey(1)); ok {
		t.Fatal("GetValue on empty tree found a key")
	}
	tree.Remove(IntKey(1)) // must not panic
}

func TestInsertAndGetValue(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(0); i < 20; i++ {
		if !tree.Insert(IntKey(i), RID{PageID: i, SlotNum: int32(i)}) {
			t.Fatalf("Insert(%d) = false, want true", i)
		}
	}
	if tree.IsEmpty() {
		t.Fatal("tree reports empty after inserts")
	}
	for i := int64(0); i < 20; i++ {
		rid, ok := tree.GetValue(IntKey(i))
		if !ok || rid.PageID != i || rid.SlotNum != int32(i) {
			t.Fatalf("GetValue(%d) = (%v, %v), want ({%d %d}, true)", i, rid, ok, i, i)
		}
	}
	if _, ok := tree.GetValue(IntKey(999)); ok {
		t.Fatal("GetValue found a key that was never inserted")
	}
}

// TestDuplicateKeyRejected covers spec.md §4.2.3: Insert on an existing key
// reports false and leaves the original value untouched.
func TestDuplicateKeyRejected(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	if !tree.Insert(IntKey(1), RID{PageID: 10, SlotNum: 0}) {
		t.Fatal("first insert of key 1 failed")
	}
	if tree.Insert(IntKey(1), RID{PageID: 20, SlotNum: 0}) {
		t.Fatal("duplicate insert of key 1 reported success")
	}
	rid, ok := tree.GetValue(IntKey(1))
	if !ok || rid.PageID != 10 {
		t.Fatalf("GetValue(1) = (%v, %v), want ({10 0}, true)", rid, ok)
	}
}

// TestLeafSplit is scenario S3 from spec.md §8: inserting leaf_max_size+1
// sequential keys forces exactly one leaf split, producing a new root
// (since the tree started as a single leaf) with two leaf children.
func TestLeafSplit(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(1); i <= 5; i++ {
		tree.Insert(IntKey(i), RID{PageID: i})
	}

	rootPg, err := tree.bp.FetchPage(tree.GetRootPageID())
	if err != nil {
		t.Fatalf("fetch root: %v", err)
	}
	defer tree.bp.UnpinPage(rootPg.GetPageId(), false)
	if NodeType(rootPg) != page.TypeInternal {
		t.Fatalf("root type = %v, want internal after leaf split", NodeType(rootPg))
	}
	root := AsInternal(rootPg)
	if root.Size() != 2 {
		t.Fatalf("root size = %d, want 2", root.Size())
	}

	for i := int64(1); i <= 5; i++ {
		if _, ok := tree.GetValue(IntKey(i)); !ok {
			t.Fatalf("GetValue(%d) not found after split", i)
		}
	}
}

// TestInternalSplitAndNewRoot is scenario S4: enough sequential inserts to
// force internal nodes to split, growing the tree to at least three levels
// (the root's children are themselves internal nodes).
func TestInternalSplitAndNewRoot(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	const n = 60
	for i := int64(0); i < n; i++ {
		if !tree.Insert(IntKey(i), RID{PageID: i}) {
			t.Fatalf("Insert(%d) failed", i)
		}
	}
	for i := int64(0); i < n; i++ {
		if _, ok := tree.GetValue(IntKey(i)); !ok {
			t.Fatalf("GetValue(%d) not found", i)
		}
	}

	rootPg, err := tree.bp.FetchPage(tree.GetRootPageID())
	if err != nil {
		t.Fatalf("fetch root: %v", err)
	}
	defer tree.bp.UnpinPage(rootPg.GetPageId(), false)
	if NodeType(rootPg) != page.TypeInternal {
		t.Fatal("root is not internal after enough inserts to force multiple splits")
	}
	childPg, err := tree.bp.FetchPage(AsInternal(rootPg).ValueAt(0))
	if err != nil {
		t.Fatalf("fetch root's first child: %v", err)
	}
	defer tree.bp.UnpinPage(childPg.GetPageId(), false)
	if NodeType(childPg) != page.TypeInternal {
		t.Fatal("root's children are leaves: no internal node split occurred")
	}
}

// TestDeleteCoalesce is scenario S5: deleting down to underflow on a small
// tree forces a coalesce, and every surviving key remains reachable.
func TestDeleteCoalesce(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(0); i < 12; i++ {
		tree.Insert(IntKey(i), RID{PageID: i})
	}
	for i := int64(0); i < 9; i++ {
		tree.Remove(IntKey(i))
	}
	for i := int64(0); i < 9; i++ {
		if _, ok := tree.GetValue(IntKey(i)); ok {
			t.Fatalf("GetValue(%d) found a removed key", i)
		}
	}
	for i := int64(9); i < 12; i++ {
		if _, ok := tree.GetValue(IntKey(i)); !ok {
			t.Fatalf("GetValue(%d) missing a surviving key", i)
		}
	}
}

// TestDeleteRedistribute is scenario S6: a removal that leaves a node below
// minimum occupancy while its sibling has surplus entries triggers a
// redistribute rather than a coalesce, and the tree stays internally
// consistent afterward.
func TestDeleteRedistribute(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	const n = 40
	for i := int64(0); i < n; i++ {
		tree.Insert(IntKey(i), RID{PageID: i})
	}
	// Sequential inserts leave every leaf at its minimum of 2 entries, so
	// removing 0 and then 2 coalesces leaves. The second coalesce leaves the
	// leftmost internal node with a single child, and its right sibling (3
	// children, minimum 2) lends it one: an internal-node redistribute.
	for i := int64(0); i < 3; i++ {
		tree.Remove(IntKey(i))
	}
	for i := int64(0); i < 3; i++ {
		if _, ok := tree.GetValue(IntKey(i)); ok {
			t.Fatalf("GetValue(%d) found a removed key", i)
		}
	}
	for i := int64(3); i < n; i++ {
		if _, ok := tree.GetValue(IntKey(i)); !ok {
			t.Fatalf("GetValue(%d) missing after partial deletion", i)
		}
	}
}

// TestRemoveIdempotent checks spec.md's no-op-if-absent guarantee: removing
// an already-absent key is silent and doesn't disturb the rest of the tree.
func TestRemoveIdempotent(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	tree.Insert(IntKey(1), RID{PageID: 1})
	tree.Remove(IntKey(1))
	tree.Remove(IntKey(1)) // second removal: no-op, must not panic
	if _, ok := tree.GetValue(IntKey(1)); ok {
		t.Fatal("key 1 still present after removal")
	}
}

// TestIterationOrder checks spec.md §4.2.5: Begin()..End() visits every
// entry in ascending key order exactly once, regardless of insertion order.
func TestIterationOrder(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	order := []int64{7, 2, 9, 0, 5, 3, 8, 1, 6, 4}
	for _, k := range order {
		tree.Insert(IntKey(k), RID{PageID: k})
	}

	var got []int64
	for it := tree.Begin(); !it.IsEnd(); it.Next() {
		got = append(got, it.Key().Int())
	}
	if len(got) != len(order) {
		t.Fatalf("iterated %d entries, want %d", len(got), len(order))
	}
	for i, k := range got {
		if k != int64(i) {
			t.Fatalf("position %d: key = %d, want %d (iteration order not ascending)", i, k, i)
		}
	}
}

// TestBeginAtLowerBound checks that BeginAt positions at the first key >=
// the requested one, including when that exact key is absent.
func TestBeginAtLowerBound(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for _, k := range []int64{0, 2, 4, 6, 8, 10} {
		tree.Insert(IntKey(k), RID{PageID: k})
	}

	it := tree.BeginAt(IntKey(5))
	if it.IsEnd() {
		t.Fatal("BeginAt(5) landed at end, want key 6")
	}
	if got := it.Key().Int(); got != 6 {
		t.Fatalf("BeginAt(5) = %d, want 6", got)
	}

	it2 := tree.BeginAt(IntKey(100))
	if !it2.IsEnd() {
		t.Fatalf("BeginAt(100) = %d, want end", it2.Key().Int())
	}
}

// TestPinCountConservation checks spec.md testable property 7: after a mix
// of operations quiesces, no page is left pinned.
func TestPinCountConservation(t *testing.T) {
	tree := newTestTree(t, 4, 4)
	for i := int64(0); i < 30; i++ {
		tree.Insert(IntKey(i), RID{PageID: i})
	}
	for i := int64(0); i < 15; i++ {
		tree.Remove(IntKey(i))
	}
	for it := tree.Begin(); !it.IsEnd(); it.Next() {
	}

	stats := tree.bp.Stats()
	if stats.Pinned != 0 {
		t.Fatalf("pinned frames after quiescing = %d, want 0", stats.Pinned)
	}
}

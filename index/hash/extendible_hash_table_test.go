package hash

import "testing"

func identity(k int) uint64 { return uint64(k) }

// TestSplitOnOverflow is scenario S1 from spec.md §8: bucket_size=2,
// inserting (0,a),(1,b),(2,c) with hash=identity splits bucket 0 once
// (2,c) is inserted, producing global_depth=1 with two depth-1 buckets.
func TestSplitOnOverflow(t *testing.T) {
	tbl := New[int, string](2, identity)

	tbl.Insert(0, "a")
	tbl.Insert(1, "b")
	if tbl.GetGlobalDepth() != 0 {
		t.Fatalf("global depth = %d before overflow, want 0", tbl.GetGlobalDepth())
	}

	tbl.Insert(2, "c")

	if got := tbl.GetGlobalDepth(); got != 1 {
		t.Fatalf("global depth = %d after split, want 1", got)
	}
	if got := tbl.GetNumBuckets(); got != 2 {
		t.Fatalf("num buckets = %d after split, want 2", got)
	}
	if v, ok := tbl.Find(2); !ok || v != "c" {
		t.Fatalf("Find(2) = (%v, %v), want (c, true)", v, ok)
	}
	if v, ok := tbl.Find(0); !ok || v != "a" {
		t.Fatalf("Find(0) = (%v, %v), want (a, true)", v, ok)
	}
	if v, ok := tbl.Find(1); !ok || v != "b" {
		t.Fatalf("Find(1) = (%v, %v), want (b, true)", v, ok)
	}
}

// TestDirectoryDoubling is scenario S2 from spec.md §8: bucket_size=1,
// inserting 0 (0000) and 4 (0100) requires global_depth>=3 to separate
// them, since they first disagree at bit 2. Reaching global depth 3 from
// depth 0 takes exactly 3 splits (each split, by construction, happens
// when the target bucket's local depth equals the current global depth,
// so each one increments global depth by exactly one); each split replaces
// one bucket with two, a net +1 to num_buckets, so the table ends with
// 1+3=4 distinct buckets.
func TestDirectoryDoubling(t *testing.T) {
	fourBit := func(k int) uint64 { return uint64(k) & 0xF }
	tbl := New[int, int](1, fourBit)

	tbl.Insert(0, 0)
	tbl.Insert(4, 4)

	if got := tbl.GetGlobalDepth(); got != 3 {
		t.Fatalf("global depth = %d, want 3", got)
	}
	if got := tbl.GetNumBuckets(); got != 4 {
		t.Fatalf("num buckets = %d, want 4", got)
	}
	if v, ok := tbl.Find(0); !ok || v != 0 {
		t.Fatalf("Find(0) = (%v, %v), want (0, true)", v, ok)
	}
	if v, ok := tbl.Find(4); !ok || v != 4 {
		t.Fatalf("Find(4) = (%v, %v), want (4, true)", v, ok)
	}
}

func TestUpsertLaw(t *testing.T) {
	tbl := New[int, string](4, identity)
	tbl.Insert(7, "v1")
	tbl.Insert(7, "v2")
	v, ok := tbl.Find(7)
	if !ok || v != "v2" {
		t.Fatalf("Find(7) = (%v, %v), want (v2, true)", v, ok)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	tbl := New[int, string](4, identity)
	tbl.Insert(1, "a")
	if !tbl.Remove(1) {
		t.Fatal("first Remove(1) = false, want true")
	}
	if tbl.Remove(1) {
		t.Fatal("second Remove(1) = true, want false")
	}
	if _, ok := tbl.Find(1); ok {
		t.Fatal("Find(1) after remove = found, want not found")
	}
}

// TestDirectoryInvariants checks spec.md testable property 9: directory
// length == 1 << global_depth and every bucket's local depth <= global
// depth, across a sequence of inserts that forces several splits.
func TestDirectoryInvariants(t *testing.T) {
	tbl := New[int, int](2, identity)
	for i := 0; i < 64; i++ {
		tbl.Insert(i, i*i)
	}

	tbl.mu.Lock()
	if len(tbl.dir) != 1<<tbl.globalDepth {
		t.Fatalf("dir length = %d, want %d", len(tbl.dir), 1<<tbl.globalDepth)
	}
	for i, b := range tbl.dir {
		if b.depth > tbl.globalDepth {
			t.Fatalf("dir[%d] local depth %d exceeds global depth %d", i, b.depth, tbl.globalDepth)
		}
	}
	tbl.mu.Unlock()

	for i := 0; i < 64; i++ {
		if v, ok := tbl.Find(i); !ok || v != i*i {
			t.Fatalf("Find(%d) = (%v, %v), want (%d, true)", i, v, ok, i*i)
		}
	}
}

// TestEntrySuffixInvariant checks spec.md testable property 10: for every
// bucket B and entry (k,v) in B, hash(k) & ((1<<B.local_depth)-1) equals
// the suffix s(B) shared by every directory slot pointing at B.
func TestEntrySuffixInvariant(t *testing.T) {
	tbl := New[int, int](2, identity)
	for i := 0; i < 50; i++ {
		tbl.Insert(i, i)
	}

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	seen := map[*bucket[int, int]]int{}
	for idx, b := range tbl.dir {
		if s, ok := seen[b]; ok {
			mask := (1 << b.depth) - 1
			if idx&mask != s&mask {
				t.Fatalf("dir[%d] and dir[%d] both reference a bucket of depth %d but disagree on suffix", idx, s, b.depth)
			}
			continue
		}
		seen[b] = idx
		mask := uint64(1<<b.depth) - 1
		for _, e := range b.entries {
			if identity(e.key)&mask != uint64(idx)&mask {
				t.Fatalf("entry %d in bucket at dir[%d] (depth %d) violates suffix invariant", e.key, idx, b.depth)
			}
		}
	}
}

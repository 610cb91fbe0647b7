// Package buffer implements the buffer pool manager consumed by the index
// core: FetchPage, NewPage, UnpinPage, DeletePage, backed by a pluggable
// Pager with LRU-among-unpinned-frames eviction. spec.md treats this as a
// fixed external interface; this package is the concrete implementation
// that makes the core runnable and testable, modeled on the teacher's
// bplustree.BufferPool and storage_engine/bufferpool.
package buffer

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ZQinyi/Bustub/storage/page"
)

// Stats snapshots buffer pool occupancy for observability.
type Stats struct {
	Frames   int
	Pinned   int
	Dirty    int
	Capacity int
}

// String renders human-readable byte counts for the occupied frames,
// wiring go-humanize the way the teacher's dependency graph implies but
// never itself exercises.
func (s Stats) String() string {
	return fmt.Sprintf("frames=%d/%d (%s) pinned=%d dirty=%d",
		s.Frames, s.Capacity, humanize.Bytes(uint64(s.Frames*page.PageSize)), s.Pinned, s.Dirty)
}

// Pool is the buffer pool manager. All exported methods are safe for
// concurrent use.
type Pool struct {
	mu       sync.Mutex
	capacity int
	pager    Pager
	frames   map[int64]*page.Page
	lru      []int64 // most-recently-used at the end
	log      *logrus.Logger
}

// NewPool creates a buffer pool of the given frame capacity over pager. A
// nil logger installs a discard logger, matching the teacher's quiet
// default.
func NewPool(capacity int, pager Pager, log *logrus.Logger) *Pool {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Pool{
		capacity: capacity,
		pager:    pager,
		frames:   make(map[int64]*page.Page, capacity),
		log:      log,
	}
}

// FetchPage pins and returns the page for pageID, loading it from the
// pager on a cache miss.
func (bp *Pool) FetchPage(pageID int64) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if fr, ok := bp.frames[pageID]; ok {
		fr.Pin()
		bp.touch(pageID)
		return fr, nil
	}

	data, err := bp.pager.ReadPage(pageID)
	if err != nil {
		return nil, errors.Wrapf(err, "buffer: fetch page %d", pageID)
	}
	fr, err := bp.admit(pageID)
	if err != nil {
		return nil, err
	}
	copy(fr.GetData()[:], data)
	fr.Pin()
	return fr, nil
}

// NewPage allocates a fresh page from the pager, pins it, and returns it
// along with its id.
func (bp *Pool) NewPage() (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	id, err := bp.pager.AllocatePage()
	if err != nil {
		return nil, errors.Wrap(err, "buffer: allocate page")
	}
	fr, err := bp.admit(id)
	if err != nil {
		return nil, err
	}
	fr.Pin()
	fr.MarkDirty(true)
	return fr, nil
}

// UnpinPage releases one pin on pageID. isDirty, if true, marks the frame
// dirty (a frame once dirtied stays dirty until flushed).
func (bp *Pool) UnpinPage(pageID int64, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fr, ok := bp.frames[pageID]
	if !ok {
		return false
	}
	fr.Unpin()
	if isDirty {
		fr.MarkDirty(true)
	}
	return true
}

// DeletePage evicts pageID from the pool (flushing first if dirty) and asks
// the pager to reclaim its slot. Fails if the page is still pinned.
func (bp *Pool) DeletePage(pageID int64) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fr, ok := bp.frames[pageID]
	if !ok {
		if err := bp.pager.DeallocatePage(pageID); err != nil {
			bp.log.WithError(err).Warn("buffer: deallocate unpooled page")
		}
		return true
	}
	if fr.PinCount() > 0 {
		return false
	}
	bp.flush(fr)
	delete(bp.frames, pageID)
	bp.removeFromLRU(pageID)
	if err := bp.pager.DeallocatePage(pageID); err != nil {
		bp.log.WithError(err).Warn("buffer: deallocate page")
	}
	return true
}

// FlushPage writes pageID back through the pager if dirty, without
// evicting it.
func (bp *Pool) FlushPage(pageID int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	fr, ok := bp.frames[pageID]
	if !ok {
		return errors.Errorf("buffer: page %d not resident", pageID)
	}
	return bp.flush(fr)
}

// Stats reports current occupancy.
func (bp *Pool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	s := Stats{Frames: len(bp.frames), Capacity: bp.capacity}
	for _, fr := range bp.frames {
		if fr.PinCount() > 0 {
			s.Pinned++
		}
		if fr.IsDirty() {
			s.Dirty++
		}
	}
	return s
}

// admit returns a resident frame for id, evicting an unpinned LRU victim if
// the pool is at capacity. Caller holds bp.mu.
func (bp *Pool) admit(id int64) (*page.Page, error) {
	if len(bp.frames) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}
	fr := page.NewPage(id)
	bp.frames[id] = fr
	bp.touch(id)
	return fr, nil
}

func (bp *Pool) evictLocked() error {
	for i, id := range bp.lru {
		fr, ok := bp.frames[id]
		if !ok {
			bp.lru = append(bp.lru[:i], bp.lru[i+1:]...)
			continue
		}
		if fr.PinCount() > 0 {
			continue
		}
		if err := bp.flush(fr); err != nil {
			return err
		}
		delete(bp.frames, id)
		bp.lru = append(bp.lru[:i], bp.lru[i+1:]...)
		bp.log.WithField("page_id", id).Debug("buffer: evicted frame")
		return nil
	}
	return errors.New("buffer: pool exhausted, all frames pinned")
}

func (bp *Pool) flush(fr *page.Page) error {
	if !fr.IsDirty() {
		return nil
	}
	if err := bp.pager.WritePage(fr.GetPageId(), fr.GetData()[:]); err != nil {
		return errors.Wrapf(err, "buffer: flush page %d", fr.GetPageId())
	}
	fr.MarkDirty(false)
	return nil
}

func (bp *Pool) touch(id int64) {
	bp.removeFromLRU(id)
	bp.lru = append(bp.lru, id)
}

func (bp *Pool) removeFromLRU(id int64) {
	for i, x := range bp.lru {
		if x == id {
			bp.lru = append(bp.lru[:i], bp.lru[i+1:]...)
			return
		}
	}
}

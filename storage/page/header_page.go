package page

import (
	"encoding/binary"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// HeaderPage lives at HeaderPageID and maps an index name to its current
// root page id, per spec.md §3.2/§6. It is msgpack-encoded into the page's
// fixed byte buffer: a 4-byte length prefix followed by the encoded
// map[string]int64.
type HeaderPage struct {
	mu      sync.RWMutex
	records map[string]int64
	cache   *ristretto.Cache[string, int64]
}

// NewHeaderPage builds an empty header page backed by a small read-through
// cache, so repeated root-id lookups by name don't require re-decoding the
// page (spec.md §9 Open Question 1's "callers needing a stable root id must
// hold the guard themselves" is about the B+Tree's own root pointer; this
// cache is purely a read accelerator over the header page's *persisted*
// record set and is invalidated on every write).
func NewHeaderPage() (*HeaderPage, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters: 1e4,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "header page: new cache")
	}
	return &HeaderPage{records: make(map[string]int64), cache: cache}, nil
}

// InsertRecord adds a brand new (name, rootID) mapping.
func (h *HeaderPage) InsertRecord(name string, rootID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[name] = rootID
	h.cache.Set(name, rootID, 1)
}

// UpdateRecord overwrites the root id for an existing name (or inserts it,
// matching the teacher's HeaderPage semantics: Update is idempotent with
// Insert for this purpose).
func (h *HeaderPage) UpdateRecord(name string, rootID int64) {
	h.InsertRecord(name, rootID)
}

// GetRootID returns the root page id for name, consulting the hot cache
// before the authoritative map.
func (h *HeaderPage) GetRootID(name string) (int64, bool) {
	if v, ok := h.cache.Get(name); ok {
		return v, true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.records[name]
	if ok {
		h.cache.Set(name, v, 1)
	}
	return v, ok
}

// DeleteRecord removes a name's mapping, e.g. when an index is dropped.
func (h *HeaderPage) DeleteRecord(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.records, name)
	h.cache.Del(name)
}

// Encode serializes the record set into a HeaderPageID frame's byte buffer.
func (h *HeaderPage) Encode(dst *[PageSize]byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	body, err := msgpack.Marshal(h.records)
	if err != nil {
		return errors.Wrap(err, "header page: marshal")
	}
	if len(body)+4 > PageSize {
		return errors.Errorf("header page: record set too large for one page (%d bytes)", len(body))
	}
	binary.BigEndian.PutUint32(dst[0:4], uint32(len(body)))
	copy(dst[4:], body)
	return nil
}

// DecodeHeaderPage reconstructs a HeaderPage from a HeaderPageID frame's
// byte buffer.
func DecodeHeaderPage(src *[PageSize]byte) (*HeaderPage, error) {
	h, err := NewHeaderPage()
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(src[0:4])
	if n == 0 {
		return h, nil
	}
	if int(n) > PageSize-4 {
		return nil, errors.Errorf("header page: corrupt length prefix %d", n)
	}
	if err := msgpack.Unmarshal(src[4:4+n], &h.records); err != nil {
		return nil, errors.Wrap(err, "header page: unmarshal")
	}
	for name, id := range h.records {
		h.cache.Set(name, id, 1)
	}
	return h, nil
}

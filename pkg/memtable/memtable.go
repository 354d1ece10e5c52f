package memtable

import (
	"bytes"

	"github.com/zhangyunhao116/skipmap"

	"asynckv/pkg/types"
)

type orderedMap = skipmap.FuncMap[[]byte, *versionList]

// versionList holds every live version of one key, newest first. Only the
// owner goroutine mutates it, so no synchronization is needed.
type versionList struct {
	items []Item
}

// Memtable is a sorted in-memory write buffer. Unlike a plain key-value map
// it retains every version written since the last flush, so snapshot reads
// can observe older states. Access is single-owner by construction: all
// mutations and reads are funneled through one goroutine.
type Memtable struct {
	flushThreshold int64

	size  int64
	count int

	underlying *orderedMap
}

func New(flushThresholdBytes int64) *Memtable {
	return &Memtable{
		flushThreshold: flushThresholdBytes,
		underlying:     newOrderedMap(),
	}
}

func newOrderedMap() *orderedMap {
	return skipmap.NewFunc[[]byte, *versionList](func(a, b []byte) bool {
		return bytes.Compare(a, b) < 0
	})
}

// Upsert records a new version of key at seq. The key and value are copied
// so callers may reuse their buffers.
func (mt *Memtable) Upsert(key types.Key, value types.Value, seq types.SeqN, meta uint64) {
	it := Item{
		Key:   bytes.Clone(key),
		Value: bytes.Clone(value),
		SeqN:  seq,
		Meta:  meta,
	}

	vl, ok := mt.underlying.Load(it.Key)
	if !ok {
		vl = &versionList{}
		mt.underlying.Store(it.Key, vl)
	}
	vl.items = append([]Item{it}, vl.items...)

	mt.size += it.size()
	mt.count++
}

// Get returns the newest version of key with sequence <= at. A returned
// tombstone item still counts as found; the caller decides visibility.
func (mt *Memtable) Get(key types.Key, at types.SeqN) (Item, bool) {
	vl, ok := mt.underlying.Load(key)
	if !ok {
		return Item{}, false
	}

	for _, it := range vl.items {
		if it.SeqN <= at {
			return it, true
		}
	}

	return Item{}, false
}

// Sorted returns all versions ordered by key ascending, and newest first
// within one key. The result is the flush image of the table.
func (mt *Memtable) Sorted() []Item {
	result := make([]Item, 0, mt.count)
	mt.underlying.Range(func(key []byte, vl *versionList) bool {
		result = append(result, vl.items...)
		return true
	})

	return result
}

// ApproximateSize returns the buffered payload size in bytes.
func (mt *Memtable) ApproximateSize() int64 {
	return mt.size
}

// Full reports whether the table has reached its flush threshold.
func (mt *Memtable) Full() bool {
	return mt.size >= mt.flushThreshold
}

// Len returns the number of buffered versions across all keys.
func (mt *Memtable) Len() int {
	return mt.count
}

// Reset discards all buffered versions after a flush.
func (mt *Memtable) Reset() {
	mt.underlying = newOrderedMap()
	mt.size = 0
	mt.count = 0
}

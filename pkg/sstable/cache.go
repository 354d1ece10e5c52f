package sstable

import (
	"container/list"
	"fmt"
)

// ReadCache is an LRU cache of row values keyed by table id and row offset.
// Tables are immutable, so entries never need invalidation; they only age
// out. The cache is shared across all tables of one level manager and is
// touched by a single goroutine, so there is no locking.
type ReadCache struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key   string
	value []byte
}

func NewReadCache(capacity int) *ReadCache {
	return &ReadCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func cacheKey(tableID uint64, offset int64) string {
	return fmt.Sprintf("%d:%d", tableID, offset)
}

// Get retrieves a cached value and marks it most recently used.
func (rc *ReadCache) Get(key string) ([]byte, bool) {
	el, found := rc.items[key]
	if !found {
		return nil, false
	}

	rc.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

// Set stores a value, evicting the least recently used entry when over
// capacity.
func (rc *ReadCache) Set(key string, value []byte) {
	if rc.capacity <= 0 {
		return
	}

	if el, found := rc.items[key]; found {
		el.Value.(*cacheEntry).value = value
		rc.order.MoveToFront(el)
		return
	}

	el := rc.order.PushFront(&cacheEntry{key: key, value: value})
	rc.items[key] = el

	if rc.order.Len() > rc.capacity {
		oldest := rc.order.Back()
		if oldest != nil {
			rc.order.Remove(oldest)
			delete(rc.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached values.
func (rc *ReadCache) Len() int {
	return rc.order.Len()
}

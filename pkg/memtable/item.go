package memtable

import (
	"asynckv/pkg/types"
)

// Item is a single key version held by the memtable.
type Item struct {
	Key   types.Key
	Value types.Value
	SeqN  types.SeqN
	Meta  uint64
}

func (it Item) size() int64 {
	const overhead = 8 + 8 // seq + meta
	return int64(len(it.Key)) + int64(len(it.Value)) + overhead
}

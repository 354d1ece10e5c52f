package engine

import "asynckv/pkg/types"

// WriteBatch collects updates that are applied atomically by DB.Write: the
// whole batch reaches the write-ahead log together and is assigned
// consecutive sequence numbers.
type WriteBatch struct {
	ops []batchOp
}

type batchOp struct {
	key    types.Key
	value  types.Value
	delete bool
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// Put queues an insert or overwrite of key.
func (b *WriteBatch) Put(key types.Key, value types.Value) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

// Delete queues a deletion of key.
func (b *WriteBatch) Delete(key types.Key) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

// Len returns the number of queued updates.
func (b *WriteBatch) Len() int {
	return len(b.ops)
}

// Clear empties the batch for reuse.
func (b *WriteBatch) Clear() {
	b.ops = b.ops[:0]
}

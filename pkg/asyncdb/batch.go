package asyncdb

// WriteBatch collects updates that travel in a single writeRequest and are
// applied atomically by the worker.
type WriteBatch struct {
	ops []batchOp
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// Put queues an insert or overwrite of key.
func (b *WriteBatch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

// Delete queues a deletion of key.
func (b *WriteBatch) Delete(key []byte) {
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

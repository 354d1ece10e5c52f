package engine

import "asynckv/pkg/types"

// Snapshot pins a point in the store's history. Reads through DB.GetAt see
// exactly the versions with sequence <= Seq. A snapshot holds no resources
// and needs no release; it merely names a sequence number.
type Snapshot struct {
	seq types.SeqN
}

// Seq returns the pinned sequence number.
func (s Snapshot) Seq() types.SeqN {
	return s.seq
}

package types

// Key is an immutable byte slice type alias used for clarity.
type Key = []byte

// Value is an immutable byte slice type alias used for clarity.
type Value = []byte

// SeqN is a monotonically increasing sequence number used for MVCC reads
// and WAL ordering.
type SeqN = uint64

// MaxSeqN pins a read to the latest version of every key.
const MaxSeqN SeqN = ^SeqN(0)

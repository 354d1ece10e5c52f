package record

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"asynckv/pkg/types"
)

// MetaTombstone marks a record as a deletion marker.
const MetaTombstone uint64 = 1

// Record is the binary row format shared by the WAL and SSTable files:
// seq (8) | meta (8) | keyLen (4) | key | valLen (4) | value, little-endian.
type Record struct {
	Seq   types.SeqN
	Meta  uint64
	Key   types.Key
	Value types.Value
}

// Tombstone reports whether the record marks a deletion.
func (r Record) Tombstone() bool {
	return r.Meta&MetaTombstone != 0
}

// Size returns the encoded length of the record in bytes.
func (r Record) Size() int64 {
	return 8 + 8 + 4 + int64(len(r.Key)) + 4 + int64(len(r.Value))
}

// Write encodes a single record to w.
func Write(w io.Writer, r Record) error {
	if len(r.Key) > math.MaxUint32 {
		return fmt.Errorf("key too large: %d", len(r.Key))
	}
	if len(r.Value) > math.MaxUint32 {
		return fmt.Errorf("value too large: %d", len(r.Value))
	}

	if err := binary.Write(w, binary.LittleEndian, r.Seq); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, r.Meta); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(r.Key))); err != nil {
		return err
	}
	if _, err := w.Write(r.Key); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(r.Value))); err != nil {
		return err
	}
	if _, err := w.Write(r.Value); err != nil {
		return err
	}

	return nil
}

// Read decodes a single record from r. A clean end of stream is reported as
// io.EOF; a truncated record is an error.
func Read(r io.Reader) (Record, error) {
	var rec Record

	if err := binary.Read(r, binary.LittleEndian, &rec.Seq); err != nil {
		// EOF before the first field means the previous record was the last.
		return rec, err
	}
	if err := binary.Read(r, binary.LittleEndian, &rec.Meta); err != nil {
		return rec, truncated(err)
	}

	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return rec, truncated(err)
	}
	rec.Key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, rec.Key); err != nil {
		return rec, truncated(err)
	}

	var valLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valLen); err != nil {
		return rec, truncated(err)
	}
	rec.Value = make([]byte, valLen)
	if _, err := io.ReadFull(r, rec.Value); err != nil {
		return rec, truncated(err)
	}

	return rec, nil
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("truncated record: %w", io.ErrUnexpectedEOF)
	}
	return err
}

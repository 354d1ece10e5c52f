package sstable

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"asynckv/pkg/record"
	"asynckv/pkg/types"
)

// rowRef locates one row inside the table file. The index keeps rows in
// (key ascending, sequence descending) order, mirroring the file layout.
type rowRef struct {
	key    types.Key
	seq    types.SeqN
	meta   uint64
	valOff int64
	valLen int
}

// SSTable is an immutable, sorted on-disk table. The full row index lives in
// memory; values are read on demand through the shared read cache.
type SSTable struct {
	id       uint64
	filePath string
	reader   *os.File

	bloom *BloomFilter
	cache *ReadCache
	index []rowRef

	size int64
}

// WriteTable writes rows to path. Rows must already be sorted by key
// ascending and sequence descending within one key, which is the order
// produced by the memtable flush image and by compaction merges.
func WriteTable(path string, rows []record.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create SSTable file: %w", err)
	}

	writer := bufio.NewWriter(file)
	for _, row := range rows {
		if err := record.Write(writer, row); err != nil {
			file.Close()
			return fmt.Errorf("failed to write SSTable row: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush SSTable: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync SSTable: %w", err)
	}

	return file.Close()
}

// OpenTable opens a table file, scanning it once to build the row index and
// the bloom filter.
func OpenTable(id uint64, path string, bloomFPRate float64, cache *ReadCache) (*SSTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SSTable file: %w", err)
	}

	s := &SSTable{
		id:       id,
		filePath: path,
		reader:   file,
		cache:    cache,
	}
	if err := s.loadIndex(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	s.bloom = NewBloomFilter(uint32(len(s.index)), bloomFPRate)
	for _, ref := range s.index {
		s.bloom.Add(ref.key)
	}

	return s, nil
}

func (s *SSTable) loadIndex() error {
	if _, err := s.reader.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek file: %w", err)
	}

	s.index = s.index[:0]
	s.size = 0

	reader := bufio.NewReader(s.reader)
	offset := int64(0)
	for {
		rec, err := record.Read(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read SSTable row: %w", err)
		}

		rowSize := rec.Size()
		s.index = append(s.index, rowRef{
			key:  rec.Key,
			seq:  rec.Seq,
			meta: rec.Meta,
			// value is the trailing field of the row
			valOff: offset + rowSize - int64(len(rec.Value)),
			valLen: len(rec.Value),
		})

		offset += rowSize
	}
	s.size = offset

	return nil
}

// Get returns the newest version of key with sequence <= at. Tombstone rows
// are returned as found; the caller decides visibility.
func (s *SSTable) Get(key types.Key, at types.SeqN) (record.Record, bool, error) {
	if !s.bloom.MayContain(key) {
		return record.Record{}, false, nil
	}

	i := sort.Search(len(s.index), func(i int) bool {
		return bytes.Compare(s.index[i].key, key) >= 0
	})
	for ; i < len(s.index) && bytes.Equal(s.index[i].key, key); i++ {
		ref := s.index[i]
		if ref.seq > at {
			continue
		}

		value, err := s.readValue(ref)
		if err != nil {
			return record.Record{}, false, err
		}
		return record.Record{
			Seq:   ref.seq,
			Meta:  ref.meta,
			Key:   ref.key,
			Value: value,
		}, true, nil
	}

	return record.Record{}, false, nil
}

func (s *SSTable) readValue(ref rowRef) ([]byte, error) {
	if ref.valLen == 0 {
		return nil, nil
	}

	ck := cacheKey(s.id, ref.valOff)
	if s.cache != nil {
		if value, found := s.cache.Get(ck); found {
			return value, nil
		}
	}

	value := make([]byte, ref.valLen)
	if _, err := s.reader.ReadAt(value, ref.valOff); err != nil {
		return nil, fmt.Errorf("failed to read SSTable value: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(ck, value)
	}

	return value, nil
}

// Rows reads back every row of the table in index order, for compaction.
func (s *SSTable) Rows() ([]record.Record, error) {
	if _, err := s.reader.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek file: %w", err)
	}

	rows := make([]record.Record, 0, len(s.index))
	reader := bufio.NewReader(s.reader)
	for {
		rec, err := record.Read(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read SSTable row: %w", err)
		}
		rows = append(rows, rec)
	}

	return rows, nil
}

func (s *SSTable) ID() uint64 {
	return s.id
}

func (s *SSTable) FilePath() string {
	return s.filePath
}

// ApproximateSize returns the table file size in bytes.
func (s *SSTable) ApproximateSize() int64 {
	return s.size
}

// Len returns the number of rows.
func (s *SSTable) Len() int {
	return len(s.index)
}

// MinKey returns the smallest key in the table, or nil when empty.
func (s *SSTable) MinKey() types.Key {
	if len(s.index) == 0 {
		return nil
	}
	return s.index[0].key
}

// MaxKey returns the largest key in the table, or nil when empty.
func (s *SSTable) MaxKey() types.Key {
	if len(s.index) == 0 {
		return nil
	}
	return s.index[len(s.index)-1].key
}

// Overlaps reports whether the table's key span intersects [from, to].
// A nil bound is unbounded on that side.
func (s *SSTable) Overlaps(from, to types.Key) bool {
	if len(s.index) == 0 {
		return false
	}
	if len(from) > 0 && bytes.Compare(s.MaxKey(), from) < 0 {
		return false
	}
	if len(to) > 0 && bytes.Compare(s.MinKey(), to) > 0 {
		return false
	}
	return true
}

func (s *SSTable) Close() error {
	if s.reader != nil {
		err := s.reader.Close()
		s.reader = nil
		return err
	}
	return nil
}

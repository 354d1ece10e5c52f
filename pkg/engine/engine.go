package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"asynckv/pkg/dberrors"
	"asynckv/pkg/memtable"
	"asynckv/pkg/record"
	"asynckv/pkg/sstable"
	"asynckv/pkg/types"
	"asynckv/pkg/wal"
)

// Options tunes a DB. Zero values are replaced by defaults in Open.
type Options struct {
	// MemtableFlushBytes is the buffered payload size at which the memtable
	// is flushed to a level 0 table.
	MemtableFlushBytes int64
	// L0CompactThreshold is the level 0 table count that triggers an
	// automatic compaction into level 1.
	L0CompactThreshold int
	// BloomFPRate is the target false positive rate of per-table filters.
	BloomFPRate float64
	// CacheCapacity is the number of values held by the shared read cache.
	CacheCapacity int
	// SyncWrites makes every single-record write fsync the log.
	SyncWrites bool
}

const (
	defaultFlushBytes    = 4 << 20
	defaultL0Threshold   = 4
	defaultBloomFP       = 0.01
	defaultCacheCapacity = 1024
)

func (o Options) withDefaults() Options {
	if o.MemtableFlushBytes <= 0 {
		o.MemtableFlushBytes = defaultFlushBytes
	}
	if o.L0CompactThreshold <= 0 {
		o.L0CompactThreshold = defaultL0Threshold
	}
	if o.BloomFPRate <= 0 || o.BloomFPRate >= 1 {
		o.BloomFPRate = defaultBloomFP
	}
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = defaultCacheCapacity
	}
	return o
}

// DB is a single-owner versioned key-value store: a write-ahead log in front
// of an MVCC memtable, backed by leveled immutable tables. It performs no
// internal locking; exactly one goroutine may use it at a time. Concurrent
// callers go through the asyncdb bridge instead.
type DB struct {
	path string
	opts Options

	seq    types.SeqN
	mt     *memtable.Memtable
	wal    *wal.WAL
	levels *sstable.LevelManager

	closed bool
}

// Open loads (or creates) a store at path, replaying any log entries newer
// than the last flushed table.
func Open(path string, opts Options) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", dberrors.ErrInvalidArgument)
	}
	opts = opts.withDefaults()

	path = filepath.Clean(path)
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	levels, err := sstable.NewLevelManager(path, opts.BloomFPRate, opts.CacheCapacity)
	if err != nil {
		return nil, err
	}

	log, err := wal.New(path)
	if err != nil {
		levels.Close()
		return nil, err
	}

	db := &DB{
		path:   path,
		opts:   opts,
		seq:    levels.PersistedSeq(),
		mt:     memtable.New(opts.MemtableFlushBytes),
		wal:    log,
		levels: levels,
	}

	replayed := 0
	err = log.Replay(levels.PersistedSeq(), func(rec record.Record) error {
		db.mt.Upsert(rec.Key, rec.Value, rec.Seq, rec.Meta)
		if rec.Seq > db.seq {
			db.seq = rec.Seq
		}
		replayed++
		return nil
	})
	if err != nil {
		log.Close()
		levels.Close()
		return nil, fmt.Errorf("WAL replay failed: %w", err)
	}
	if replayed > 0 {
		slog.Info("recovered WAL entries", "count", replayed, "seq", db.seq)
	}

	return db, nil
}

// Put inserts or overwrites key.
func (d *DB) Put(key types.Key, value types.Value) error {
	if err := d.checkWritable(key); err != nil {
		return err
	}
	return d.apply([]record.Record{{Key: key, Value: value}}, d.opts.SyncWrites)
}

// Delete removes key. Deleting an absent key succeeds.
func (d *DB) Delete(key types.Key) error {
	if err := d.checkWritable(key); err != nil {
		return err
	}
	return d.apply([]record.Record{{Key: key, Meta: record.MetaTombstone}}, d.opts.SyncWrites)
}

// Write applies a batch atomically. The whole batch reaches the log in one
// flush; with sync it is fsynced before Write returns.
func (d *DB) Write(batch *WriteBatch, sync bool) error {
	if d.closed {
		return dberrors.ErrClosed
	}
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	recs := make([]record.Record, 0, batch.Len())
	for _, op := range batch.ops {
		if len(op.key) == 0 {
			return fmt.Errorf("%w: empty key", dberrors.ErrInvalidArgument)
		}
		rec := record.Record{Key: op.key, Value: op.value}
		if op.delete {
			rec.Meta = record.MetaTombstone
			rec.Value = nil
		}
		recs = append(recs, rec)
	}

	return d.apply(recs, sync || d.opts.SyncWrites)
}

func (d *DB) checkWritable(key types.Key) error {
	if d.closed {
		return dberrors.ErrClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", dberrors.ErrInvalidArgument)
	}
	return nil
}

// apply assigns sequence numbers, logs, and buffers a group of records.
func (d *DB) apply(recs []record.Record, sync bool) error {
	for i := range recs {
		d.seq++
		recs[i].Seq = d.seq
	}

	if err := d.wal.AppendBatch(recs, sync); err != nil {
		// The log rejected the group; roll the counter back so sequence
		// numbers stay dense.
		d.seq -= types.SeqN(len(recs))
		return err
	}

	for _, rec := range recs {
		d.mt.Upsert(rec.Key, rec.Value, rec.Seq, rec.Meta)
	}

	return d.maybeFlush()
}

func (d *DB) maybeFlush() error {
	if !d.mt.Full() {
		return nil
	}
	return d.Flush()
}

// Flush writes the memtable image to a level 0 table and truncates the log.
// A level 0 overflow triggers an automatic compaction into level 1.
func (d *DB) Flush() error {
	if d.closed {
		return dberrors.ErrClosed
	}
	if d.mt.Len() == 0 {
		return nil
	}

	items := d.mt.Sorted()
	rows := make([]record.Record, 0, len(items))
	for _, it := range items {
		rows = append(rows, record.Record{
			Seq:   it.SeqN,
			Meta:  it.Meta,
			Key:   it.Key,
			Value: it.Value,
		})
	}

	table, err := d.levels.AddTable(rows, 0)
	if err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	if err := d.levels.SetPersistedSeq(d.seq); err != nil {
		return fmt.Errorf("failed to record flushed seq: %w", err)
	}

	d.mt.Reset()
	if err := d.wal.Reset(); err != nil {
		return fmt.Errorf("failed to reset WAL after flush: %w", err)
	}
	slog.Debug("flushed memtable", "table", table.ID(), "rows", len(rows), "seq", d.seq)

	if d.levels.L0Count() >= d.opts.L0CompactThreshold {
		if err := d.levels.CompactL0(); err != nil {
			return fmt.Errorf("automatic compaction failed: %w", err)
		}
	}

	return nil
}

// Get returns the current value of key. Lookups are infallible: a read error
// in a table is logged and treated as a miss.
func (d *DB) Get(key types.Key) (types.Value, bool) {
	value, found, err := d.GetAt(key, types.MaxSeqN)
	if err != nil {
		slog.Warn("table read failed during get", "error", err)
		return nil, false
	}
	return value, found
}

// GetAt returns the value of key as of sequence at, skipping any newer
// versions. Tombstones are masked.
func (d *DB) GetAt(key types.Key, at types.SeqN) (types.Value, bool, error) {
	if d.closed {
		return nil, false, dberrors.ErrClosed
	}
	if len(key) == 0 {
		return nil, false, fmt.Errorf("%w: empty key", dberrors.ErrInvalidArgument)
	}

	if it, found := d.mt.Get(key, at); found {
		if it.Meta&record.MetaTombstone != 0 {
			return nil, false, nil
		}
		return it.Value, true, nil
	}

	rec, found, err := d.levels.Get(key, at)
	if err != nil {
		return nil, false, err
	}
	if !found || rec.Tombstone() {
		return nil, false, nil
	}

	return rec.Value, true, nil
}

// GetSnapshot pins the current state. Later writes are invisible to reads
// made through the snapshot.
func (d *DB) GetSnapshot() Snapshot {
	return Snapshot{seq: d.seq}
}

// CompactRange merges all tables overlapping [from, to], keeping only the
// newest version of each key in the range and dropping tombstones. A nil or
// empty bound is unbounded on that side. The memtable is flushed first so
// the compaction sees every write.
func (d *DB) CompactRange(from, to types.Key) error {
	if d.closed {
		return dberrors.ErrClosed
	}

	if err := d.Flush(); err != nil {
		return err
	}
	return d.levels.CompactRange(from, to)
}

// Seq returns the sequence number of the most recent write.
func (d *DB) Seq() types.SeqN {
	return d.seq
}

// Close flushes buffered writes and releases the store. Further calls fail
// with ErrClosed.
func (d *DB) Close() error {
	if d.closed {
		return dberrors.ErrClosed
	}

	flushErr := d.Flush()
	d.closed = true

	if err := d.wal.Close(); err != nil {
		slog.Warn("failed to close WAL", "error", err)
	}
	if err := d.levels.Close(); err != nil {
		slog.Warn("failed to close tables", "error", err)
	}

	return flushErr
}

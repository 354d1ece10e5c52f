package sstable

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"asynckv/pkg/record"
	"asynckv/pkg/types"
)

// LevelManager owns every on-disk table, grouped by level. Level 0 holds raw
// memtable flushes whose key ranges overlap; reads search its tables newest
// first. Deeper levels are produced by compaction.
type LevelManager struct {
	dataDir     string
	bloomFPRate float64
	cache       *ReadCache
	manifest    *Manifest

	// levels[0] is ordered oldest to newest; lookups walk it backwards.
	levels map[int][]*SSTable
}

// NewLevelManager loads the manifest and opens every recorded table. Tables
// that fail to open are skipped with a warning so a damaged file cannot keep
// the store from starting.
func NewLevelManager(dataDir string, bloomFPRate float64, cacheCapacity int) (*LevelManager, error) {
	manifest := NewManifest(dataDir)
	if err := manifest.Load(); err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	lm := &LevelManager{
		dataDir:     dataDir,
		bloomFPRate: bloomFPRate,
		cache:       NewReadCache(cacheCapacity),
		manifest:    manifest,
		levels:      make(map[int][]*SSTable),
	}

	for level, infos := range manifest.AllTables() {
		for _, info := range infos {
			table, err := OpenTable(info.ID, info.FilePath, bloomFPRate, lm.cache)
			if err != nil {
				slog.Warn("skipping unreadable SSTable",
					"id", info.ID, "path", info.FilePath, "error", err)
				continue
			}
			lm.levels[level] = append(lm.levels[level], table)
		}
		sort.Slice(lm.levels[level], func(i, j int) bool {
			return lm.levels[level][i].ID() < lm.levels[level][j].ID()
		})
	}

	return lm, nil
}

// AddTable writes rows as a new table at the given level and registers it.
func (lm *LevelManager) AddTable(rows []record.Record, level int) (*SSTable, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	id, err := lm.manifest.NextTableID()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate table id: %w", err)
	}

	path := filepath.Join(lm.dataDir, fmt.Sprintf("L%d_%06d.sst", level, id))
	if err := WriteTable(path, rows); err != nil {
		return nil, err
	}

	table, err := OpenTable(id, path, lm.bloomFPRate, lm.cache)
	if err != nil {
		return nil, err
	}

	info := TableInfo{
		ID:       id,
		FilePath: path,
		Level:    level,
		Size:     table.ApproximateSize(),
	}
	if err := lm.manifest.AddTable(info); err != nil {
		table.Close()
		return nil, fmt.Errorf("failed to record table: %w", err)
	}

	lm.levels[level] = append(lm.levels[level], table)
	return table, nil
}

// Get returns the newest version of key with sequence <= at across all
// tables. Level 0 tables are searched newest first; a hit there wins over any
// deeper level.
func (lm *LevelManager) Get(key types.Key, at types.SeqN) (record.Record, bool, error) {
	maxLevel := 0
	for level := range lm.levels {
		if level > maxLevel {
			maxLevel = level
		}
	}

	for level := 0; level <= maxLevel; level++ {
		tables := lm.levels[level]
		var (
			best      record.Record
			bestFound bool
		)
		for i := len(tables) - 1; i >= 0; i-- {
			rec, found, err := tables[i].Get(key, at)
			if err != nil {
				return record.Record{}, false, err
			}
			if found && (!bestFound || rec.Seq > best.Seq) {
				best, bestFound = rec, true
			}
		}
		if bestFound {
			return best, true, nil
		}
	}

	return record.Record{}, false, nil
}

// L0Count returns the number of level 0 tables, the trigger for automatic
// compaction.
func (lm *LevelManager) L0Count() int {
	return len(lm.levels[0])
}

// CompactL0 merges every level 0 table into one level 1 table. All versions
// are preserved, so open snapshots keep reading the same history.
func (lm *LevelManager) CompactL0() error {
	inputs := lm.levels[0]
	if len(inputs) < 2 {
		return nil
	}
	inputs = append(inputs, lm.levels[1]...)

	rows, err := mergeRows(inputs)
	if err != nil {
		return err
	}

	return lm.replaceTables(inputs, rows, 1)
}

// CompactRange merges every table overlapping [from, to] into one table one
// level below the deepest input. Within the range only the newest version of
// each key survives, and tombstones are dropped; snapshots taken before the
// compaction may lose older versions inside the range.
func (lm *LevelManager) CompactRange(from, to types.Key) error {
	var (
		inputs   []*SSTable
		maxLevel int
	)
	for level, tables := range lm.levels {
		for _, table := range tables {
			if table.Overlaps(from, to) {
				inputs = append(inputs, table)
				if level > maxLevel {
					maxLevel = level
				}
			}
		}
	}
	if len(inputs) == 0 {
		return nil
	}

	rows, err := mergeRows(inputs)
	if err != nil {
		return err
	}

	kept := rows[:0]
	var prevKey types.Key
	for _, row := range rows {
		if !inRange(row.Key, from, to) {
			kept = append(kept, row)
			prevKey = nil
			continue
		}
		// rows are newest first per key, so the first occurrence wins
		if prevKey != nil && bytes.Equal(row.Key, prevKey) {
			continue
		}
		prevKey = row.Key
		if row.Tombstone() {
			continue
		}
		kept = append(kept, row)
	}

	return lm.replaceTables(inputs, kept, maxLevel+1)
}

// replaceTables writes rows as one table at level and retires the inputs.
func (lm *LevelManager) replaceTables(inputs []*SSTable, rows []record.Record, level int) error {
	var (
		added   []TableInfo
		removed []uint64
	)
	retire := make(map[uint64]bool, len(inputs))
	for _, table := range inputs {
		removed = append(removed, table.ID())
		retire[table.ID()] = true
	}

	var output *SSTable
	if len(rows) > 0 {
		id, err := lm.manifest.NextTableID()
		if err != nil {
			return fmt.Errorf("failed to allocate table id: %w", err)
		}
		path := filepath.Join(lm.dataDir, fmt.Sprintf("L%d_%06d.sst", level, id))
		if err := WriteTable(path, rows); err != nil {
			return err
		}
		output, err = OpenTable(id, path, lm.bloomFPRate, lm.cache)
		if err != nil {
			return err
		}
		added = append(added, TableInfo{
			ID:       id,
			FilePath: path,
			Level:    level,
			Size:     output.ApproximateSize(),
		})
	}

	if err := lm.manifest.Apply(added, removed); err != nil {
		if output != nil {
			output.Close()
		}
		return fmt.Errorf("failed to commit compaction: %w", err)
	}

	for lvl, tables := range lm.levels {
		kept := tables[:0]
		for _, table := range tables {
			if !retire[table.ID()] {
				kept = append(kept, table)
				continue
			}
			path := table.FilePath()
			if err := table.Close(); err != nil {
				slog.Warn("failed to close compacted SSTable", "path", path, "error", err)
			}
			if err := os.Remove(path); err != nil {
				slog.Warn("failed to remove compacted SSTable", "path", path, "error", err)
			}
		}
		lm.levels[lvl] = kept
	}
	if output != nil {
		lm.levels[level] = append(lm.levels[level], output)
	}

	return nil
}

// mergeRows reads back every input table and merges the rows into key
// ascending, sequence descending order. Every version is kept.
func mergeRows(inputs []*SSTable) ([]record.Record, error) {
	var rows []record.Record
	for _, table := range inputs {
		tableRows, err := table.Rows()
		if err != nil {
			return nil, fmt.Errorf("failed to read table %d: %w", table.ID(), err)
		}
		rows = append(rows, tableRows...)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if c := bytes.Compare(rows[i].Key, rows[j].Key); c != 0 {
			return c < 0
		}
		return rows[i].Seq > rows[j].Seq
	})

	return rows, nil
}

func inRange(key, from, to types.Key) bool {
	if len(from) > 0 && bytes.Compare(key, from) < 0 {
		return false
	}
	if len(to) > 0 && bytes.Compare(key, to) > 0 {
		return false
	}
	return true
}

// PersistedSeq returns the highest sequence durable in tables.
func (lm *LevelManager) PersistedSeq() types.SeqN {
	return lm.manifest.PersistedSeq()
}

// SetPersistedSeq records seq as durable in tables.
func (lm *LevelManager) SetPersistedSeq(seq types.SeqN) error {
	return lm.manifest.SetPersistedSeq(seq)
}

// TableCount returns the total number of open tables across all levels.
func (lm *LevelManager) TableCount() int {
	n := 0
	for _, tables := range lm.levels {
		n += len(tables)
	}
	return n
}

// Close closes every open table.
func (lm *LevelManager) Close() error {
	var firstErr error
	for _, tables := range lm.levels {
		for _, table := range tables {
			if err := table.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	lm.levels = make(map[int][]*SSTable)

	return firstErr
}

package sstable

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"asynckv/pkg/types"
)

// Manifest persists table metadata and the highest sequence number known to
// be durable in tables. Like everything below the worker it is single-owner
// and needs no locking.
type Manifest struct {
	filePath string
	metadata manifestData
}

type manifestData struct {
	NextTableID  uint64              `json:"next_table_id"`
	Levels       map[int][]TableInfo `json:"levels"`
	PersistedSeq types.SeqN          `json:"persisted_seq"`
	Version      int                 `json:"version"`
}

// TableInfo describes one SSTable on disk.
type TableInfo struct {
	ID       uint64 `json:"id"`
	FilePath string `json:"file_path"`
	Level    int    `json:"level"`
	Size     int64  `json:"size"`
}

func NewManifest(dataDir string) *Manifest {
	return &Manifest{
		filePath: filepath.Join(dataDir, "MANIFEST"),
		metadata: manifestData{
			NextTableID: 1,
			Levels:      make(map[int][]TableInfo),
			Version:     1,
		},
	}
}

// Load reads the manifest from disk, creating a fresh one when missing.
func (m *Manifest) Load() error {
	if _, err := os.Stat(m.filePath); os.IsNotExist(err) {
		return m.save()
	}

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m.metadata); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.metadata.Levels == nil {
		m.metadata.Levels = make(map[int][]TableInfo)
	}

	return nil
}

func (m *Manifest) save() error {
	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// NextTableID allocates a table id and persists the bump.
func (m *Manifest) NextTableID() (uint64, error) {
	id := m.metadata.NextTableID
	m.metadata.NextTableID++
	return id, m.save()
}

// AddTable records a new table.
func (m *Manifest) AddTable(info TableInfo) error {
	m.metadata.Levels[info.Level] = append(m.metadata.Levels[info.Level], info)
	return m.save()
}

// Apply atomically (with respect to the saved file) removes and adds tables,
// as one compaction edit.
func (m *Manifest) Apply(added []TableInfo, removedIDs []uint64) error {
	remove := make(map[uint64]bool, len(removedIDs))
	for _, id := range removedIDs {
		remove[id] = true
	}

	for level, tables := range m.metadata.Levels {
		kept := tables[:0]
		for _, t := range tables {
			if !remove[t.ID] {
				kept = append(kept, t)
			}
		}
		m.metadata.Levels[level] = kept
	}
	for _, info := range added {
		m.metadata.Levels[info.Level] = append(m.metadata.Levels[info.Level], info)
	}

	return m.save()
}

// AllTables returns all tables keyed by level, in recording order.
func (m *Manifest) AllTables() map[int][]TableInfo {
	result := make(map[int][]TableInfo, len(m.metadata.Levels))
	for level, tables := range m.metadata.Levels {
		result[level] = append([]TableInfo(nil), tables...)
	}
	return result
}

// PersistedSeq returns the highest sequence durable in tables; WAL replay
// starts after it.
func (m *Manifest) PersistedSeq() types.SeqN {
	return m.metadata.PersistedSeq
}

// SetPersistedSeq records seq as durable and saves.
func (m *Manifest) SetPersistedSeq(seq types.SeqN) error {
	if seq <= m.metadata.PersistedSeq {
		return nil
	}
	m.metadata.PersistedSeq = seq
	return m.save()
}

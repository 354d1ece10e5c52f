package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"asynckv/pkg/record"
	"asynckv/pkg/types"
)

const fileName = "wal.log"

// WAL implements write-ahead logging. Appends are synchronous: the entry is
// buffered, flushed to the OS, and optionally fsynced before Append returns.
// The log is owned by a single goroutine, so there is no internal locking.
type WAL struct {
	dir      string
	filePath string
	file     *os.File
	writer   *bufio.Writer
}

// New opens (or creates) the log under dir.
func New(dir string) (*WAL, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty WAL dir")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	w := &WAL{
		dir:      dir,
		filePath: filepath.Join(dir, fileName),
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *WAL) open() error {
	file, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %w", err)
	}

	w.file = file
	w.writer = bufio.NewWriter(file)

	return nil
}

// Append durably records a single entry. With sync the entry is fsynced
// before returning; otherwise it is only flushed to the OS.
func (w *WAL) Append(rec record.Record, sync bool) error {
	return w.AppendBatch([]record.Record{rec}, sync)
}

// AppendBatch records a group of entries with a single flush (and fsync, if
// requested) at the end, so the group reaches the OS together.
func (w *WAL) AppendBatch(recs []record.Record, sync bool) error {
	if w.writer == nil {
		return fmt.Errorf("WAL is closed")
	}

	for _, rec := range recs {
		if err := record.Write(w.writer, rec); err != nil {
			return fmt.Errorf("failed to write WAL entry: %w", err)
		}
	}

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}
	if sync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync WAL: %w", err)
		}
	}

	return nil
}

// Replay invokes callback for every entry with sequence > afterSeq, in file
// order. A truncated trailing entry (torn write on crash) ends the replay
// without error.
func (w *WAL) Replay(afterSeq types.SeqN, callback func(record.Record) error) error {
	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush WAL before replay: %w", err)
		}
	}

	file, err := os.Open(w.filePath)
	if err != nil {
		return fmt.Errorf("failed to open WAL for reading: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("failed to close WAL read file", "error", cerr)
		}
	}()

	reader := bufio.NewReader(file)
	for {
		rec, err := record.Read(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("WAL ends with a truncated entry, discarding tail", "path", w.filePath)
				break
			}
			return fmt.Errorf("failed to read WAL entry: %w", err)
		}
		if rec.Seq <= afterSeq {
			continue
		}

		if err := callback(rec); err != nil {
			return fmt.Errorf("WAL replay callback failed: %w", err)
		}
	}

	return nil
}

// Reset discards the log contents. Called after the memtable image has been
// flushed to a table, at which point the entries are redundant.
func (w *WAL) Reset() error {
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.Remove(w.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove WAL file: %w", err)
	}

	return w.open()
}

func (w *WAL) Close() error {
	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush WAL on close: %w", err)
		}
		w.writer = nil
	}

	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close WAL file: %w", err)
		}
		w.file = nil
	}

	return nil
}

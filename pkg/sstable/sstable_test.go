package sstable

import (
	"bytes"
	"path/filepath"
	"testing"

	"asynckv/pkg/record"
	"asynckv/pkg/types"
)

func writeTestTable(t *testing.T, rows []record.Record) *SSTable {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sst")
	if err := WriteTable(path, rows); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}

	table, err := OpenTable(1, path, 0.01, NewReadCache(16))
	if err != nil {
		t.Fatalf("failed to open table: %v", err)
	}
	t.Cleanup(func() { table.Close() })

	return table
}

func TestWriteAndGet(t *testing.T) {
	table := writeTestTable(t, []record.Record{
		{Seq: 1, Key: []byte("a"), Value: []byte("va")},
		{Seq: 2, Key: []byte("b"), Value: []byte("vb")},
		{Seq: 3, Key: []byte("c"), Value: []byte("vc")},
	})

	rec, found, err := table.Get([]byte("b"), types.MaxSeqN)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found || !bytes.Equal(rec.Value, []byte("vb")) {
		t.Fatalf("expected vb, got found=%v value=%q", found, rec.Value)
	}

	if _, found, _ := table.Get([]byte("missing"), types.MaxSeqN); found {
		t.Fatalf("expected missing key to be absent")
	}
}

func TestGetRespectsSequence(t *testing.T) {
	table := writeTestTable(t, []record.Record{
		{Seq: 9, Key: []byte("k"), Value: []byte("v3")},
		{Seq: 5, Key: []byte("k"), Value: []byte("v2")},
		{Seq: 1, Key: []byte("k"), Value: []byte("v1")},
	})

	rec, found, err := table.Get([]byte("k"), 6)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found || !bytes.Equal(rec.Value, []byte("v2")) {
		t.Fatalf("expected v2 at seq 6, got found=%v value=%q", found, rec.Value)
	}

	if _, found, _ := table.Get([]byte("k"), 0); found {
		t.Fatalf("expected no version at seq 0")
	}
}

func TestTombstoneRowIsFound(t *testing.T) {
	table := writeTestTable(t, []record.Record{
		{Seq: 2, Meta: record.MetaTombstone, Key: []byte("k")},
		{Seq: 1, Key: []byte("k"), Value: []byte("v")},
	})

	rec, found, err := table.Get([]byte("k"), types.MaxSeqN)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found || !rec.Tombstone() {
		t.Fatalf("expected tombstone, got found=%v meta=%d", found, rec.Meta)
	}
}

func TestCachedReadsMatch(t *testing.T) {
	table := writeTestTable(t, []record.Record{
		{Seq: 1, Key: []byte("k"), Value: []byte("cached-value")},
	})

	for i := 0; i < 3; i++ {
		rec, found, err := table.Get([]byte("k"), types.MaxSeqN)
		if err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
		if !found || !bytes.Equal(rec.Value, []byte("cached-value")) {
			t.Fatalf("get %d: unexpected result found=%v value=%q", i, found, rec.Value)
		}
	}
}

func TestRowsRoundTrip(t *testing.T) {
	in := []record.Record{
		{Seq: 2, Key: []byte("a"), Value: []byte("1")},
		{Seq: 1, Key: []byte("b"), Value: []byte("2")},
	}
	table := writeTestTable(t, in)

	rows, err := table.Rows()
	if err != nil {
		t.Fatalf("rows failed: %v", err)
	}
	if len(rows) != len(in) {
		t.Fatalf("expected %d rows, got %d", len(in), len(rows))
	}
	for i := range rows {
		if !bytes.Equal(rows[i].Key, in[i].Key) || rows[i].Seq != in[i].Seq {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, rows[i], in[i])
		}
	}
}

func TestOverlaps(t *testing.T) {
	table := writeTestTable(t, []record.Record{
		{Seq: 1, Key: []byte("c"), Value: []byte("1")},
		{Seq: 2, Key: []byte("m"), Value: []byte("2")},
	})

	cases := []struct {
		from, to string
		want     bool
	}{
		{"", "", true},
		{"a", "b", false},
		{"n", "z", false},
		{"a", "c", true},
		{"m", "z", true},
		{"d", "f", true},
		{"", "b", false},
		{"n", "", false},
	}
	for _, c := range cases {
		var from, to types.Key
		if c.from != "" {
			from = []byte(c.from)
		}
		if c.to != "" {
			to = []byte(c.to)
		}
		if got := table.Overlaps(from, to); got != c.want {
			t.Fatalf("overlaps(%q, %q): got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestBloomFilter(t *testing.T) {
	bf := NewBloomFilter(100, 0.01)

	keys := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	for _, k := range keys {
		bf.Add(k)
	}
	for _, k := range keys {
		if !bf.MayContain(k) {
			t.Fatalf("expected %q to be present", k)
		}
	}
}

func TestReadCacheEviction(t *testing.T) {
	cache := NewReadCache(2)

	cache.Set("a", []byte("1"))
	cache.Set("b", []byte("2"))
	// touch a so b is the eviction candidate
	if _, found := cache.Get("a"); !found {
		t.Fatalf("expected a to be cached")
	}
	cache.Set("c", []byte("3"))

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if _, found := cache.Get("b"); found {
		t.Fatalf("expected b to be evicted")
	}
	if _, found := cache.Get("a"); !found {
		t.Fatalf("expected a to survive")
	}
}

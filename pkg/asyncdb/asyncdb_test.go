package asyncdb

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, opts Options) *AsyncDB {
	t.Helper()

	db, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Close(ctx)
	})

	return db
}

func TestPutGetDelete(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v")))

	value, found, err := db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, db.Delete(ctx, []byte("k")))

	_, found, err = db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetAbsentKeyIsNotAnError(t *testing.T) {
	db := openTestDB(t, Options{})

	_, found, err := db.Get(context.Background(), []byte("never-written"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLastWriteWins(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, db.Put(ctx, []byte("k"), []byte(fmt.Sprintf("v%d", i))))
	}

	value, found, err := db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v9"), value)
}

func TestWriteBatch(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	batch := NewWriteBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("a"))
	require.Equal(t, 3, batch.Len())

	require.NoError(t, db.Write(ctx, batch, true))

	_, found, err := db.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	value, found, err := db.Get(ctx, []byte("b"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("2"), value)

	// nil and empty batches are no-ops
	require.NoError(t, db.Write(ctx, nil, false))
	require.NoError(t, db.Write(ctx, NewWriteBatch(), false))
}

func TestSnapshotIsolation(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, []byte("k"), []byte("before")))

	ref, err := db.GetSnapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, db.Put(ctx, []byte("k"), []byte("after")))

	value, found, err := db.GetAt(ctx, ref, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("before"), value)

	value, found, err = db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("after"), value)
}

func TestSnapshotRefsAreDistinct(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	seen := make(map[SnapshotRef]bool)
	for i := 0; i < 5; i++ {
		ref, err := db.GetSnapshot(ctx)
		require.NoError(t, err)
		assert.False(t, seen[ref], "snapshot ref %d issued twice", ref)
		seen[ref] = true
	}
}

func TestDroppedSnapshotIsUnknown(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v")))

	ref, err := db.GetSnapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, db.DropSnapshot(ctx, ref))

	_, _, err = db.GetAt(ctx, ref, []byte("k"))
	assert.ErrorIs(t, err, ErrUnknownSnapshot)

	// dropping again is a no-op, not an error
	assert.NoError(t, db.DropSnapshot(ctx, ref))
}

func TestGetAtNeverIssuedRef(t *testing.T) {
	db := openTestDB(t, Options{})

	_, _, err := db.GetAt(context.Background(), SnapshotRef(12345), []byte("k"))
	assert.ErrorIs(t, err, ErrUnknownSnapshot)
}

func TestFlushAndCompact(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v1")))
	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v2")))
	require.NoError(t, db.Flush(ctx))
	require.NoError(t, db.CompactRange(ctx, nil, nil))

	value, found, err := db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v2"), value)
}

func TestCompactEmptyStore(t *testing.T) {
	db := openTestDB(t, Options{})

	assert.NoError(t, db.CompactRange(context.Background(), nil, nil))
}

func TestOperationsAfterClose(t *testing.T) {
	db, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, db.Close(ctx))

	assert.ErrorIs(t, db.Put(ctx, []byte("k"), []byte("v")), ErrShutdown)
	_, _, err = db.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, ErrShutdown)
	_, err = db.GetSnapshot(ctx)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.ErrorIs(t, db.Flush(ctx), ErrShutdown)
	assert.ErrorIs(t, db.Close(ctx), ErrShutdown)
}

func TestCloseFlushesDurably(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, []byte("durable"), []byte("yes")))
	require.NoError(t, db.Close(ctx))

	db2, err := Open(dir, Options{})
	require.NoError(t, err)
	defer db2.Close(ctx)

	value, found, err := db2.Get(ctx, []byte("durable"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("yes"), value)
}

func TestConcurrentCallersDistinctKeys(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	const callers = 16
	const opsPerCaller = 50

	var wg sync.WaitGroup
	errCh := make(chan error, callers)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(caller int) {
			defer wg.Done()
			for i := 0; i < opsPerCaller; i++ {
				key := []byte(fmt.Sprintf("caller-%02d-key-%03d", caller, i))
				want := []byte(fmt.Sprintf("value-%02d-%03d", caller, i))
				if err := db.Put(ctx, key, want); err != nil {
					errCh <- err
					return
				}
				got, found, err := db.Get(ctx, key)
				if err != nil {
					errCh <- err
					return
				}
				if !found || string(got) != string(want) {
					errCh <- fmt.Errorf("caller %d: key %q: got %q, want %q", caller, key, got, want)
					return
				}
			}
		}(c)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestBackpressureWithTinyQueue(t *testing.T) {
	db := openTestDB(t, Options{QueueCapacity: 1})
	ctx := context.Background()

	var wg sync.WaitGroup
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func(caller int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				key := []byte(fmt.Sprintf("c%d-k%d", caller, i))
				assert.NoError(t, db.Put(ctx, key, []byte("v")))
			}
		}(c)
	}
	wg.Wait()
}

func TestContextCancellationWhileSending(t *testing.T) {
	db := openTestDB(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.Put(ctx, []byte("k"), []byte("v"))
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestOrderingPerHandle(t *testing.T) {
	db := openTestDB(t, Options{})
	ctx := context.Background()

	// a blind overwrite sequence from one goroutine must land in call order
	for i := 0; i < 100; i++ {
		require.NoError(t, db.Put(ctx, []byte("seq"), []byte(fmt.Sprintf("%03d", i))))
	}
	value, found, err := db.Get(ctx, []byte("seq"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("099"), value)
}

func TestResponseValidation(t *testing.T) {
	// replies of the wrong kind map to ErrUnexpectedResponse
	err := statusFromResponse(valueResponse{})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	_, _, err = valueFromResponse(okResponse{})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	_, err = snapshotFromResponse(okResponse{})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	// matching kinds pass through
	assert.NoError(t, statusFromResponse(okResponse{}))

	value, found, err := valueFromResponse(valueResponse{value: []byte("v"), found: true})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)

	ref, err := snapshotFromResponse(snapshotResponse{ref: 7})
	require.NoError(t, err)
	assert.Equal(t, SnapshotRef(7), ref)

	// a store error surfaces unchanged
	boom := fmt.Errorf("boom")
	assert.ErrorIs(t, statusFromResponse(errorResponse{status: boom}), boom)
}

// Package asyncdb bridges the single-owner store in pkg/engine to concurrent
// callers. A dedicated worker goroutine owns the store; callers describe
// operations as typed request messages, send them over a bounded mailbox and
// wait on a per-request reply channel. The mailbox bound is the only flow
// control: when the worker falls behind, senders block.
package asyncdb

import (
	"context"
	"fmt"
	"sync"

	"asynckv/pkg/engine"
	"asynckv/pkg/metrics"
)

// DefaultQueueCapacity bounds the mailbox when Options leaves it zero.
const DefaultQueueCapacity = 32

// Options tunes the bridge and the store behind it.
type Options struct {
	// Engine configures the underlying store.
	Engine engine.Options
	// QueueCapacity bounds the request mailbox.
	QueueCapacity int
	// Collector receives bridge counters. Defaults to a fresh Registry.
	Collector metrics.Collector
}

// AsyncDB is the concurrent handle to a store. All methods are safe for use
// from any number of goroutines. Operations are applied in the order their
// messages enter the mailbox.
type AsyncDB struct {
	mbox      *mailbox
	collector metrics.Collector

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store at path and starts its worker.
func Open(path string, opts Options) (*AsyncDB, error) {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.Collector == nil {
		opts.Collector = metrics.NewRegistry()
	}

	store, err := engine.Open(path, opts.Engine)
	if err != nil {
		return nil, err
	}

	db := &AsyncDB{
		mbox:      newMailbox(opts.QueueCapacity),
		collector: opts.Collector,
	}

	w := &worker{
		store:     store,
		mbox:      db.mbox,
		snapshots: newSnapshotRegistry(),
		collector: opts.Collector,
	}
	spawn(w.run)

	return db, nil
}

// Collector returns the bridge's metrics collector.
func (db *AsyncDB) Collector() metrics.Collector {
	return db.collector
}

// Put inserts or overwrites key.
func (db *AsyncDB) Put(ctx context.Context, key, value []byte) error {
	resp, err := db.call(ctx, putRequest{key: key, value: value})
	if err != nil {
		return err
	}
	return statusFromResponse(resp)
}

// Delete removes key. Deleting an absent key succeeds.
func (db *AsyncDB) Delete(ctx context.Context, key []byte) error {
	resp, err := db.call(ctx, deleteRequest{key: key})
	if err != nil {
		return err
	}
	return statusFromResponse(resp)
}

// Write applies a batch atomically, in one mailbox message. With sync the
// batch is fsynced before the reply.
func (db *AsyncDB) Write(ctx context.Context, batch *WriteBatch, sync bool) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	resp, err := db.call(ctx, writeRequest{ops: batch.ops, sync: sync})
	if err != nil {
		return err
	}
	return statusFromResponse(resp)
}

// Flush forces the memtable to disk.
func (db *AsyncDB) Flush(ctx context.Context) error {
	resp, err := db.call(ctx, flushRequest{})
	if err != nil {
		return err
	}
	return statusFromResponse(resp)
}

// Get returns the current value of key. An absent key is not an error:
// found is false.
func (db *AsyncDB) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	resp, err := db.call(ctx, getRequest{key: key})
	if err != nil {
		return nil, false, err
	}
	return valueFromResponse(resp)
}

// GetSnapshot pins the current state and returns a reference to it. The
// snapshot lives until DropSnapshot or Close.
func (db *AsyncDB) GetSnapshot(ctx context.Context) (SnapshotRef, error) {
	resp, err := db.call(ctx, getSnapshotRequest{})
	if err != nil {
		return 0, err
	}
	return snapshotFromResponse(resp)
}

// GetAt returns the value of key as of the referenced snapshot. An unknown
// or dropped reference fails with ErrUnknownSnapshot.
func (db *AsyncDB) GetAt(ctx context.Context, ref SnapshotRef, key []byte) ([]byte, bool, error) {
	resp, err := db.call(ctx, getAtRequest{ref: ref, key: key})
	if err != nil {
		return nil, false, err
	}
	return valueFromResponse(resp)
}

// DropSnapshot releases a snapshot reference. Dropping an unknown or
// already-dropped reference is a no-op.
func (db *AsyncDB) DropSnapshot(ctx context.Context, ref SnapshotRef) error {
	resp, err := db.call(ctx, dropSnapshotRequest{ref: ref})
	if err != nil {
		return err
	}
	return statusFromResponse(resp)
}

// CompactRange merges and rewrites all tables overlapping [from, to]. Nil
// bounds are unbounded; CompactRange(ctx, nil, nil) compacts everything.
func (db *AsyncDB) CompactRange(ctx context.Context, from, to []byte) error {
	resp, err := db.call(ctx, compactRangeRequest{from: from, to: to})
	if err != nil {
		return err
	}
	return statusFromResponse(resp)
}

// Close shuts the bridge down. Requests already in the mailbox ahead of the
// Close are still served; anything arriving after it fails with ErrShutdown.
// Close waits for the store to be flushed and released.
func (db *AsyncDB) Close(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrShutdown
	}

	msg := message{req: closeRequest{}, reply: make(chan response, 1)}
	if err := db.mbox.Send(ctx, msg); err != nil {
		return err
	}
	db.closed = true

	resp, ok := <-msg.reply
	db.mbox.Close()
	if !ok {
		return ErrShutdown
	}
	return statusFromResponse(resp)
}

// call sends one request and waits for its reply. The read lock spans the
// send so Close cannot close the mailbox under an in-flight Send.
func (db *AsyncDB) call(ctx context.Context, req request) (response, error) {
	msg := message{req: req, reply: make(chan response, 1)}

	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, ErrShutdown
	}
	err := db.mbox.Send(ctx, msg)
	db.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-msg.reply:
		if !ok {
			// The worker dropped the message while shutting down.
			return nil, ErrShutdown
		}
		return resp, nil
	case <-ctx.Done():
		// The worker will still fulfill the buffered reply; nothing leaks.
		return nil, ctx.Err()
	}
}

// statusFromResponse reduces a reply to its status. A reply of the wrong
// kind is a bridge bug and maps to ErrUnexpectedResponse.
func statusFromResponse(resp response) error {
	switch r := resp.(type) {
	case okResponse:
		return nil
	case errorResponse:
		return r.status
	default:
		return fmt.Errorf("%w: got %T", ErrUnexpectedResponse, resp)
	}
}

func valueFromResponse(resp response) ([]byte, bool, error) {
	switch r := resp.(type) {
	case valueResponse:
		return r.value, r.found, nil
	case errorResponse:
		return nil, false, r.status
	default:
		return nil, false, fmt.Errorf("%w: got %T", ErrUnexpectedResponse, resp)
	}
}

func snapshotFromResponse(resp response) (SnapshotRef, error) {
	switch r := resp.(type) {
	case snapshotResponse:
		return r.ref, nil
	case errorResponse:
		return 0, r.status
	default:
		return 0, fmt.Errorf("%w: got %T", ErrUnexpectedResponse, resp)
	}
}

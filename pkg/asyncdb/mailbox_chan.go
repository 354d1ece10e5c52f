//go:build !zenq

package asyncdb

import "context"

// mailbox is the bounded queue between callers and the worker. This default
// backend is a plain buffered channel; build with -tags zenq for the
// lock-free ring variant.
type mailbox struct {
	ch chan message
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{ch: make(chan message, capacity)}
}

// Send enqueues msg, blocking while the queue is full. The block is the only
// flow control between callers and the worker.
func (m *mailbox) Send(ctx context.Context, msg message) error {
	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv dequeues the next message. ok is false once the mailbox is closed and
// drained.
func (m *mailbox) Recv() (message, bool) {
	msg, ok := <-m.ch
	return msg, ok
}

// Close stops accepting messages. The sender side must guarantee no Send is
// in flight.
func (m *mailbox) Close() {
	close(m.ch)
}

// spawn starts the worker goroutine.
func spawn(fn func()) {
	go fn()
}

//go:build zenq

package asyncdb

import (
	"context"
	"log/slog"

	"github.com/alphadose/zenq/v2"
	"github.com/panjf2000/ants/v2"
)

// mailbox is the bounded queue between callers and the worker, backed by a
// lock-free ring. Selected with -tags zenq.
type mailbox struct {
	q *zenq.ZenQ[message]
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{q: zenq.New[message](uint32(capacity))}
}

// Send enqueues msg, blocking while the ring is full. The ring has no
// cancellation hook, so ctx is only checked before the write.
func (m *mailbox) Send(ctx context.Context, msg message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if closed := m.q.Write(msg); closed {
		return ErrShutdown
	}
	return nil
}

// Recv dequeues the next message. ok is false once the ring is closed and
// drained.
func (m *mailbox) Recv() (message, bool) {
	return m.q.Read()
}

// Close stops accepting messages.
func (m *mailbox) Close() {
	m.q.Close()
}

// spawn starts the worker on the shared goroutine pool, falling back to a
// plain goroutine if the pool refuses.
func spawn(fn func()) {
	if err := ants.Submit(fn); err != nil {
		slog.Warn("goroutine pool rejected worker, spawning directly", "error", err)
		go fn()
	}
}

package asyncdb

import (
	"errors"
	"fmt"
	"log/slog"

	"asynckv/pkg/dberrors"
	"asynckv/pkg/engine"
	"asynckv/pkg/metrics"
)

// worker owns the store. It is the only goroutine that ever touches it, so
// the store runs without any locking and observes requests in arrival order.
type worker struct {
	store     *engine.DB
	mbox      *mailbox
	snapshots *snapshotRegistry
	collector metrics.Collector
}

// run processes messages until the mailbox is closed. After a Close request
// has been answered the loop keeps draining, closing each reply channel
// unanswered so late callers observe the shutdown.
func (w *worker) run() {
	defer func() {
		if err := w.store.Close(); err != nil && !errors.Is(err, dberrors.ErrClosed) {
			slog.Error("failed to close store on worker exit", "error", err)
		}
	}()

	closing := false
	for {
		msg, ok := w.mbox.Recv()
		if !ok {
			return
		}

		if closing {
			w.collector.Inc("bridge_replies_dropped", 1)
			close(msg.reply)
			continue
		}

		if _, isClose := msg.req.(closeRequest); isClose {
			closing = true
			w.reply(msg, w.statusResponse(w.store.Close()))
			slog.Info("store closed, draining remaining requests")
			continue
		}

		w.collector.Inc("bridge_ops_processed", 1)
		w.reply(msg, w.dispatch(msg.req))
	}
}

// reply fulfills a message exactly once and closes the channel.
func (w *worker) reply(msg message, resp response) {
	msg.reply <- resp
	close(msg.reply)
}

func (w *worker) dispatch(req request) response {
	switch r := req.(type) {
	case putRequest:
		return w.statusResponse(w.store.Put(r.key, r.value))

	case deleteRequest:
		return w.statusResponse(w.store.Delete(r.key))

	case writeRequest:
		batch := engine.NewWriteBatch()
		for _, op := range r.ops {
			if op.delete {
				batch.Delete(op.key)
			} else {
				batch.Put(op.key, op.value)
			}
		}
		return w.statusResponse(w.store.Write(batch, r.sync))

	case flushRequest:
		return w.statusResponse(w.store.Flush())

	case getRequest:
		value, found := w.store.Get(r.key)
		return valueResponse{value: value, found: found}

	case getAtRequest:
		snap, ok := w.snapshots.lookup(r.ref)
		if !ok {
			return errorResponse{status: ErrUnknownSnapshot}
		}
		value, found, err := w.store.GetAt(r.key, snap.Seq())
		if err != nil {
			return errorResponse{status: err}
		}
		return valueResponse{value: value, found: found}

	case getSnapshotRequest:
		ref := w.snapshots.add(w.store.GetSnapshot())
		w.collector.Inc("bridge_snapshots_taken", 1)
		return snapshotResponse{ref: ref}

	case dropSnapshotRequest:
		// idempotent: dropping an absent ref is not an error
		w.snapshots.drop(r.ref)
		return okResponse{}

	case compactRangeRequest:
		return w.statusResponse(w.store.CompactRange(r.from, r.to))

	default:
		// Unreachable while the request set stays closed.
		return errorResponse{status: fmt.Errorf("%w: %T", ErrUnexpectedResponse, req)}
	}
}

func (w *worker) statusResponse(err error) response {
	if err != nil {
		return errorResponse{status: err}
	}
	return okResponse{}
}

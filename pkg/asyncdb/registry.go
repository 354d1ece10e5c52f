package asyncdb

import "asynckv/pkg/engine"

// snapshotRegistry maps refs to live snapshots. It lives inside the worker
// goroutine and is never shared, so no locking.
type snapshotRegistry struct {
	snapshots map[SnapshotRef]engine.Snapshot
	nextRef   SnapshotRef
}

func newSnapshotRegistry() *snapshotRegistry {
	return &snapshotRegistry{snapshots: make(map[SnapshotRef]engine.Snapshot)}
}

// add registers snap under a fresh ref. Refs are never reused.
func (r *snapshotRegistry) add(snap engine.Snapshot) SnapshotRef {
	r.nextRef++
	r.snapshots[r.nextRef] = snap
	return r.nextRef
}

// lookup resolves a ref to its snapshot.
func (r *snapshotRegistry) lookup(ref SnapshotRef) (engine.Snapshot, bool) {
	snap, ok := r.snapshots[ref]
	return snap, ok
}

// drop forgets a ref. Dropping an unknown ref reports false.
func (r *snapshotRegistry) drop(ref SnapshotRef) bool {
	if _, ok := r.snapshots[ref]; !ok {
		return false
	}
	delete(r.snapshots, ref)
	return true
}

// len returns the number of live snapshots.
func (r *snapshotRegistry) len() int {
	return len(r.snapshots)
}

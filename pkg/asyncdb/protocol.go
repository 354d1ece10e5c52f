package asyncdb

// SnapshotRef names a snapshot held by the worker. Refs are opaque handles:
// the snapshot itself never crosses the channel.
type SnapshotRef uint64

// request is a closed set of operation messages. Each variant carries the
// arguments of exactly one store operation.
type request interface{ isRequest() }

type (
	closeRequest  struct{}
	putRequest    struct{ key, value []byte }
	deleteRequest struct{ key []byte }
	writeRequest  struct {
		ops  []batchOp
		sync bool
	}
	flushRequest struct{}
	getRequest   struct{ key []byte }
	getAtRequest struct {
		ref SnapshotRef
		key []byte
	}
	getSnapshotRequest  struct{}
	dropSnapshotRequest struct{ ref SnapshotRef }
	compactRangeRequest struct{ from, to []byte }
)

func (closeRequest) isRequest()        {}
func (putRequest) isRequest()          {}
func (deleteRequest) isRequest()       {}
func (writeRequest) isRequest()        {}
func (flushRequest) isRequest()        {}
func (getRequest) isRequest()          {}
func (getAtRequest) isRequest()        {}
func (getSnapshotRequest) isRequest()  {}
func (dropSnapshotRequest) isRequest() {}
func (compactRangeRequest) isRequest() {}

// batchOp is one update inside a writeRequest.
type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// response is the closed set of worker answers.
type response interface{ isResponse() }

type (
	okResponse    struct{}
	errorResponse struct{ status error }
	valueResponse struct {
		value []byte
		found bool
	}
	snapshotResponse struct{ ref SnapshotRef }
)

func (okResponse) isResponse()       {}
func (errorResponse) isResponse()    {}
func (valueResponse) isResponse()    {}
func (snapshotResponse) isResponse() {}

// message pairs a request with its reply channel. The worker fulfills the
// reply exactly once and then closes it; a receive from a closed reply
// channel is how the caller learns the worker went away.
type message struct {
	req   request
	reply chan response
}

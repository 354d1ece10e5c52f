package asyncdb

import "errors"

var (
	// ErrShutdown is returned when the worker is no longer accepting or
	// answering requests. An operation that got ErrShutdown after Close may
	// or may not have been applied.
	ErrShutdown = errors.New("asynckv: database is shut down")

	// ErrUnexpectedResponse is returned when the worker answers a request
	// with a response of the wrong kind. It indicates a bug in the bridge,
	// not a store failure.
	ErrUnexpectedResponse = errors.New("asynckv: unexpected response kind")

	// ErrUnknownSnapshot is returned for a snapshot reference that was never
	// issued or has been dropped.
	ErrUnknownSnapshot = errors.New("asynckv: unknown snapshot")
)

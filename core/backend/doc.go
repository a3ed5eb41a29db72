// Package backend defines the capability contract every storage backend
// offers to the synchronization core, the event sink the core offers back,
// and the error codes backends use to report failures.
//
// # Storage
//
// A Storage reads, writes, deletes, creates directories and moves items,
// lists its full tree and pushes change events to an EventSink. Version IDs
// are opaque strings; a write or delete carries the version the caller
// expects to replace so the backend can refuse lost updates with
// ErrVersionMismatch.
//
// # Errors
//
// Backends wrap failures in *Error with a Code. The worker pool maps codes
// to task states; CodeCurrentlyNotPossible is the only code that is retried.
//
//	if errors.Is(err, backend.ErrNotFound) { ... }
//	return backend.E(backend.CodeUnauthorized, "write", path, err)
//
// # Polling
//
// Backends without push notifications embed a Poller, which periodically
// lists the storage and turns listing differences into events.
package backend

// Package reconcile keeps the storages of a synchronization link convergent
// on one file tree.
//
// The package has two parts:
//
// 1. State machine: every node of the namespace tree carries a state
// (Unknown, Synced, Uploading, Downloading, Deleting, Comparing, Resolving,
// Cancelling). Events are looked up in a fixed transition table; undefined
// pairs fail with ErrInvalidTransition. Event side effects (issuing tasks)
// run before the state changes, the on-enter handler of the destination
// runs after. Self transitions re-run the on-enter handler.
//
// 2. Engine: the single writer of the tree. Storage events, task acks,
// lifecycle calls and queries are serialized through one mailbox consumed
// by one goroutine, so no handler needs locking. Synchronous snapshots use a
// bounded priority lane that is drained ahead of the mailbox.
//
// # Decision procedure
//
// Entering Synced compares, per node:
//   - current: the version each storage reports,
//   - desired: the storages the item must exist on,
//   - equivalents: the (storage, version) pairs last known to be equal,
//
// and issues at most one kind of work: an upload, a download, deletes, or a
// compare when more than one storage changed independently. A compare that
// finds different content renames every copy not grouped with the local
// file to "name (Conflicting copy).ext".
//
// # Usage
//
//	e := reconcile.NewEngine(reconcile.Config{
//	    LinkID:   "local::s3",
//	    RemoteID: "s3",
//	}, sink, notifier, logger)
//	e.Start(ctx)
//	if err := e.Init(ctx); err != nil {
//	    return err
//	}
//
// The sink receives every task the engine issues; whoever executes them
// must pass the finished task back through AckTask.
package reconcile

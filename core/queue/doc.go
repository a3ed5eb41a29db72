// Package queue implements the task queue between the reconciliation engine
// and the worker pool.
//
// The queue keeps pending tasks in FIFO order, indexes them by task key
// (link, path), tracks the tasks workers are running and registers Cancel
// tasks until every task sharing their key has been acked.
//
// # Cancellation protocol
//
// Putting a CancelTask does not enqueue it. Instead every running and every
// pending task with the same key is flagged cancelled. When no task matched,
// the Cancel is acked immediately as successful; otherwise it is acked right
// after the last matching task is acked.
//
// # Signals
//
// OnSubmitted observers receive every non-cancel task after it was enqueued,
// on the goroutine calling Put. OnAcked observers receive every task right
// after its ack callback ran, on the goroutine calling Ack. Observers run in
// registration order and outside the queue lock.
package queue

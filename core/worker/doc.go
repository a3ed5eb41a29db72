// Package worker executes synchronization tasks against storage backends.
//
// A Pool runs a fixed number of workers. Each worker blocks on the queue,
// executes the task it received and acks it with a terminal state. Backend
// failures are classified by their backend.Code:
//
//   - CurrentlyNotPossible is retried with exponential backoff until
//     MaxRetries attempts were made.
//   - Policy violations end as Blocked (rewritten to InvalidOperation by the
//     queue) and raise a notification.
//   - Every other failure maps to a terminal state without retry.
//
// Tasks whose ExecuteAfter lies in the future are put back into the queue
// after a short wait, so a deferred retry never occupies a worker.
//
// Transfers are read through a reader that checks the task's cancel flag on
// every chunk; cancellation is cooperative.
package worker

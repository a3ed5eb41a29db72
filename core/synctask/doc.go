// Package synctask defines the commands the reconciliation engine issues to
// the worker pool.
//
// Every task embeds Base, which carries the node path, the link it belongs
// to, the retry bookkeeping and the ack callback. The (link, path) pair is
// the task Key used by the queue to deduplicate and cancel work.
//
// # Variants
//
//   - UploadTask, DownloadTask, CreateDirTask: copy content (or a directory)
//     from a source storage to a target storage.
//   - DeleteTask: remove an item from one storage.
//   - MoveTask: rename an item inside one storage (conflict copies).
//   - CompareTask: hash the content held by several storages and group them.
//   - FetchTreeTask: list a storage and start its event source.
//   - CancelTask: cancel every task sharing its key; never executed.
//
// The ack callback runs exactly once, whichever goroutine reaches a terminal
// state first.
package synctask

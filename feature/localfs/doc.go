// Package localfs is the storage backend of the local sync directory.
//
// Content operations are those of folderstore on the host filesystem, so
// local versions are content digests like on a network share. Instead of
// polling, the store watches the directory tree with fsnotify:
//
//   - Create stats the new item and reports it; a new directory is watched
//     and its existing content reported too
//   - Write reports a modification
//   - Remove and Rename report a deletion
//
// Chmod events and in-flight temporary files are ignored. When the kernel
// queue overflows the store falls back to a full listing and reports the
// differences.
package localfs
